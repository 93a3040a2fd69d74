package database

import (
	"context"
	"time"

	"github.com/sitewatch/sitewatch/internal/domain"
)

// JobStore is the narrow interface over crawl job state consumed by the
// scheduler, executor, and API.
type JobStore interface {
	Create(ctx context.Context, job *domain.CrawlJob) error
	GetByID(ctx context.Context, id string) (*domain.CrawlJob, error)
	GetByEntryURL(ctx context.Context, entryURL string) (*domain.CrawlJob, error)
	List(ctx context.Context, status domain.JobStatus, limit, offset int) ([]*domain.CrawlJob, error)
	ListSchedulable(ctx context.Context) ([]*domain.CrawlJob, error)
	Update(ctx context.Context, job *domain.CrawlJob) error
	// UpdateRunResult records the outcome of one run on the job row.
	// needsReconfiguration marks a provably broken selector; such jobs
	// are excluded from scheduling until their rules change.
	UpdateRunResult(ctx context.Context, id string, status domain.JobStatus, endedAt time.Time, failReason *string, needsReconfiguration bool) error
	Disable(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}

// RunStore is the narrow interface over run history.
type RunStore interface {
	Append(ctx context.Context, run *domain.CrawlRun) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]*domain.CrawlRun, error)
	// ConsecutiveFailures returns the job's trailing failure streak.
	ConsecutiveFailures(ctx context.Context, jobID string) (int, error)
	// Prune removes runs beyond depth per job, oldest first.
	Prune(ctx context.Context, depth int) (int64, error)
}

// ContentStore is the narrow interface over extracted content records.
type ContentStore interface {
	// InsertIfAbsent atomically inserts the record unless its fingerprint
	// already exists. Returns ErrDuplicate on conflict.
	InsertIfAbsent(ctx context.Context, rec *domain.ContentRecord) error
	// ExistsByFingerprint reports whether a record with the fingerprint is
	// already stored. Advisory only; InsertIfAbsent remains the authority.
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.ContentRecord, error)
	// Search matches free text against title and source.
	Search(ctx context.Context, query string, limit, offset int) ([]*domain.ContentRecord, error)
	// Update persists editorial changes to the editable fields only.
	Update(ctx context.Context, rec *domain.ContentRecord) error
	CountByStatus(ctx context.Context) (map[domain.ContentStatus]int, error)
}
