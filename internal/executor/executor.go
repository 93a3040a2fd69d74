// Package executor runs one scheduled firing of one job: fetch, extract,
// dedup, persist, report. Execute never lets a failure escape its boundary;
// every outcome becomes a CrawlRun.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/domain"
	"github.com/sitewatch/sitewatch/internal/events"
	"github.com/sitewatch/sitewatch/internal/extract"
	"github.com/sitewatch/sitewatch/internal/fetch"
	"github.com/sitewatch/sitewatch/internal/logger"
)

// statusUpdateMaxElapsed bounds retries of the final job status update. A
// lost status update would leave run history and job status inconsistent,
// so it is the one store failure retried independently of the job's own
// schedule.
const statusUpdateMaxElapsed = 30 * time.Second

// Fetcher is the transport dependency of the executor.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Document, error)
}

// Executor executes crawl runs.
type Executor struct {
	fetcher   Fetcher
	jobs      database.JobStore
	runs      database.RunStore
	content   database.ContentStore
	publisher events.Publisher
	log       logger.Interface
	// maxConsecutiveFailures is the streak length at which a job is
	// flagged for operator attention.
	maxConsecutiveFailures int
}

// New creates a run executor.
func New(
	fetcher Fetcher,
	jobs database.JobStore,
	runs database.RunStore,
	content database.ContentStore,
	publisher events.Publisher,
	log logger.Interface,
	maxConsecutiveFailures int,
) *Executor {
	return &Executor{
		fetcher:                fetcher,
		jobs:                   jobs,
		runs:                   runs,
		content:                content,
		publisher:              publisher,
		log:                    log.WithComponent("executor"),
		maxConsecutiveFailures: maxConsecutiveFailures,
	}
}

// runResult accumulates the outcome of the pipeline stages.
type runResult struct {
	outcome  domain.RunOutcome
	inserted int
	detail   string // empty on clean success
	// needsReconfiguration marks a selector that cannot compile. The job
	// is pulled off the schedule until an operator changes its rules.
	needsReconfiguration bool
}

// Execute performs one run of the job and records it. The returned CrawlRun
// is what was appended to history.
func (e *Executor) Execute(ctx context.Context, job *domain.CrawlJob) *domain.CrawlRun {
	started := time.Now()
	log := e.log.With("job_id", job.ID, "entry_url", job.EntryURL)

	result := e.runPipeline(ctx, job, log)
	ended := time.Now()

	// The run's own context may already be cancelled (operator disable,
	// shutdown). History and status writes must still land, so everything
	// after the pipeline runs on a detached context.
	recordCtx, cancelRecord := context.WithTimeout(context.Background(), statusUpdateMaxElapsed)
	defer cancelRecord()

	streak := 0
	if result.outcome != domain.RunOutcomeSuccess {
		prev, err := e.runs.ConsecutiveFailures(recordCtx, job.ID)
		if err != nil {
			log.Error("failure streak lookup failed", "error", err)
		}
		streak = prev + 1
	}

	run := &domain.CrawlRun{
		ID:                  uuid.NewString(),
		JobID:               job.ID,
		StartedAt:           started,
		EndedAt:             ended,
		Outcome:             result.outcome,
		RecordsProduced:     result.inserted,
		ConsecutiveFailures: streak,
	}
	if result.detail != "" {
		run.FailureDetail = &result.detail
	}

	e.record(recordCtx, job, run, result.needsReconfiguration, log)

	if streak >= e.maxConsecutiveFailures {
		log.Warn("job needs operator attention",
			"consecutive_failures", streak,
			"reason", result.detail)
	}

	e.publisher.RunCompleted(run)
	return run
}

// runPipeline performs fetch, extraction, and ingestion.
func (e *Executor) runPipeline(ctx context.Context, job *domain.CrawlJob, log logger.Interface) runResult {
	rules, err := extract.CompileRules(job.Rules())
	if err != nil {
		// A selector that does not parse cannot be fixed by retrying;
		// the job is flagged and skipped by the schedule until an
		// operator changes its rules.
		return runResult{
			outcome:              domain.RunOutcomeFailure,
			detail:               "Malformed selector: " + err.Error(),
			needsReconfiguration: true,
		}
	}

	doc, err := e.fetcher.Fetch(ctx, job.EntryURL)
	if err != nil {
		return fetchFailure(err)
	}

	items, err := extract.ExtractList(doc.Body, job.EntryURL, rules)
	if errors.Is(err, extract.ErrSelectorNotFound) {
		// A deliberately empty page is not an operator-visible failure.
		log.Info("rules produced no matches")
		return runResult{outcome: domain.RunOutcomeSuccess}
	}
	if err != nil {
		return runResult{outcome: domain.RunOutcomeFailure, detail: "Extraction failed: " + err.Error()}
	}

	inserted := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return runResult{
				outcome:  domain.RunOutcomeCancelled,
				inserted: inserted,
				detail:   "Cancelled",
			}
		}

		ok, ingestErr := e.ingestItem(ctx, job, rules, item, log)
		if ingestErr != nil {
			log.Warn("item skipped", "detail_url", item.DetailURL, "error", ingestErr)
			continue
		}
		if ok {
			inserted++
		}
	}

	return runResult{outcome: domain.RunOutcomeSuccess, inserted: inserted}
}

// ingestItem processes one extracted list entry. Returns true when a new
// record was inserted, false when the item was a duplicate or unusable.
func (e *Executor) ingestItem(
	ctx context.Context,
	job *domain.CrawlJob,
	rules *extract.CompiledRules,
	item extract.Item,
	log logger.Interface,
) (bool, error) {
	if item.DetailURL == "" || item.Title == "" {
		return false, nil
	}

	fingerprint := domain.Fingerprint(item.DetailURL, item.Title)

	// Skip the detail fetch for documents we have already stored. The
	// insert below still runs conflict-free if another run races us.
	if exists, err := e.content.ExistsByFingerprint(ctx, fingerprint); err == nil && exists {
		return false, nil
	}

	body := item.BodySnippet
	detailDoc, fetchErr := e.fetcher.Fetch(ctx, item.DetailURL)
	if fetchErr != nil {
		var fe *fetch.Error
		if errors.As(fetchErr, &fe) && fe.Kind == fetch.KindCancelled {
			return false, fetchErr
		}
		// Detail fetch failures degrade to the list snippet rather than
		// dropping the document.
		log.Debug("detail fetch failed, keeping snippet", "url", item.DetailURL, "error", fetchErr)
	} else {
		text, extractErr := extract.ExtractDetail(detailDoc.Body, item.DetailURL, rules)
		if extractErr == nil && text != "" {
			body = text
		}
	}

	rec := &domain.ContentRecord{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		Fingerprint: fingerprint,
		Title:       item.Title,
		Source:      job.Name,
		SourceURL:   item.DetailURL,
		PublishDate: item.PublishDate,
		Type:        classify(item.Title),
		Status:      domain.ContentStatusDraft,
		Body:        body,
	}

	if err := e.content.InsertIfAbsent(ctx, rec); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			// Another run got there first. Not an error.
			return false, nil
		}
		return false, err
	}

	e.publisher.RecordCreated(rec)
	return true, nil
}

// record appends the run to history and updates the job row. ctx must be
// detached from the run's own context: a cancelled run is still recorded,
// and losing the status update would leave history and status inconsistent.
func (e *Executor) record(
	ctx context.Context,
	job *domain.CrawlJob,
	run *domain.CrawlRun,
	needsReconfiguration bool,
	log logger.Interface,
) {
	if err := e.runs.Append(ctx, run); err != nil {
		log.Error("append run failed", "run_id", run.ID, "error", err)
	}

	status := domain.JobStatusNormal
	if !run.Succeeded() {
		status = domain.JobStatusFailed
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(statusUpdateMaxElapsed),
	), ctx)

	err := backoff.Retry(func() error {
		updateErr := e.jobs.UpdateRunResult(ctx, job.ID, status, run.EndedAt, run.FailureDetail, needsReconfiguration)
		if errors.Is(updateErr, database.ErrNotFound) {
			// Job disabled or gone mid-run; nothing to update.
			return backoff.Permanent(updateErr)
		}
		return updateErr
	}, policy)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Error("job status update failed after retries", "error", err)
	}
}

// fetchFailure maps a classified fetch error to a run result.
func fetchFailure(err error) runResult {
	var fe *fetch.Error
	if !errors.As(err, &fe) {
		return runResult{outcome: domain.RunOutcomeFailure, detail: err.Error()}
	}

	switch fe.Kind {
	case fetch.KindTimeout:
		return runResult{outcome: domain.RunOutcomeTimeout, detail: fe.Reason()}
	case fetch.KindCancelled:
		return runResult{outcome: domain.RunOutcomeCancelled, detail: fe.Reason()}
	default:
		return runResult{outcome: domain.RunOutcomeFailure, detail: fe.Reason()}
	}
}

// Title keyword sets for content classification, checked in order.
var classifierKeywords = []struct {
	contentType domain.ContentType
	keywords    []string
}{
	{domain.ContentTypeRecruitment, []string{"recruit", "hiring", "채용", "모집"}},
	{domain.ContentTypeTender, []string{"tender", "bid", "procurement", "입찰"}},
	{domain.ContentTypeNews, []string{"news", "press", "보도"}},
}

// classify buckets a document by title keywords, defaulting to notice.
func classify(title string) domain.ContentType {
	lower := strings.ToLower(title)
	for _, c := range classifierKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.contentType
			}
		}
	}
	return domain.ContentTypeNotice
}
