package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sitewatch/sitewatch/internal/domain"
)

const jobColumns = `id, name, entry_url, frequency, list_selector, detail_selector,
	status, last_success_at, last_run_end_at, fail_reason, needs_reconfiguration,
	created_at, updated_at`

// JobRepository implements JobStore on PostgreSQL.
type JobRepository struct {
	db *sqlx.DB
}

var _ JobStore = (*JobRepository)(nil)

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, job *domain.CrawlJob) error {
	query := `
		INSERT INTO crawl_jobs (id, name, entry_url, frequency, list_selector, detail_selector, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		job.ID,
		job.Name,
		job.EntryURL,
		int64(job.Frequency),
		job.ListSelector,
		job.DetailSelector,
		job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create job: %w", ErrDuplicate)
		}
		return fmt.Errorf("create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.CrawlJob, error) {
	var job domain.CrawlJob
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE id = $1`

	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	return &job, nil
}

// GetByEntryURL retrieves a job by its entry URL. Used by bulk import to
// reject duplicate targets.
func (r *JobRepository) GetByEntryURL(ctx context.Context, entryURL string) (*domain.CrawlJob, error) {
	var job domain.CrawlJob
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE entry_url = $1 LIMIT 1`

	if err := r.db.GetContext(ctx, &job, query, entryURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job with entry url %s: %w", entryURL, ErrNotFound)
		}
		return nil, fmt.Errorf("get job by entry url: %w", err)
	}

	return &job, nil
}

// List retrieves jobs with optional status filtering, most recently updated
// first.
func (r *JobRepository) List(
	ctx context.Context,
	status domain.JobStatus,
	limit, offset int,
) ([]*domain.CrawlJob, error) {
	var jobs []*domain.CrawlJob
	var err error

	if status != "" {
		query := `SELECT ` + jobColumns + `
			FROM crawl_jobs WHERE status = $1
			ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
		err = r.db.SelectContext(ctx, &jobs, query, status, limit, offset)
	} else {
		query := `SELECT ` + jobColumns + `
			FROM crawl_jobs
			ORDER BY updated_at DESC LIMIT $1 OFFSET $2`
		err = r.db.SelectContext(ctx, &jobs, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.CrawlJob{}
	}
	return jobs, nil
}

// ListSchedulable returns every job the due-check loop should consider:
// normal and failed jobs. Pending jobs lack rules; disabled is terminal;
// jobs flagged for reconfiguration wait for an operator to fix their rules.
func (r *JobRepository) ListSchedulable(ctx context.Context) ([]*domain.CrawlJob, error) {
	var jobs []*domain.CrawlJob
	query := `SELECT ` + jobColumns + `
		FROM crawl_jobs WHERE status IN ($1, $2) AND NOT needs_reconfiguration`

	err := r.db.SelectContext(ctx, &jobs, query, domain.JobStatusNormal, domain.JobStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("list schedulable jobs: %w", err)
	}
	return jobs, nil
}

// Update rewrites a job's configurable fields.
func (r *JobRepository) Update(ctx context.Context, job *domain.CrawlJob) error {
	query := `
		UPDATE crawl_jobs
		SET name = $1, entry_url = $2, frequency = $3, list_selector = $4,
		    detail_selector = $5, status = $6, needs_reconfiguration = $7,
		    updated_at = now()
		WHERE id = $8
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		job.Name,
		job.EntryURL,
		int64(job.Frequency),
		job.ListSelector,
		job.DetailSelector,
		job.Status,
		job.NeedsReconfiguration,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	return checkAffected(result, job.ID)
}

// UpdateRunResult records one run's outcome on the job row. Success clears
// the failure reason, the reconfiguration flag, and advances the
// last-success timestamp.
func (r *JobRepository) UpdateRunResult(
	ctx context.Context,
	id string,
	status domain.JobStatus,
	endedAt time.Time,
	failReason *string,
	needsReconfiguration bool,
) error {
	var result sql.Result
	var err error

	if status == domain.JobStatusNormal {
		query := `
			UPDATE crawl_jobs
			SET status = $1, last_run_end_at = $2, last_success_at = $2,
			    fail_reason = NULL, needs_reconfiguration = FALSE, updated_at = now()
			WHERE id = $3 AND status != $4
		`
		result, err = r.db.ExecContext(ctx, query, status, endedAt, id, domain.JobStatusDisabled)
	} else {
		query := `
			UPDATE crawl_jobs
			SET status = $1, last_run_end_at = $2, fail_reason = $3,
			    needs_reconfiguration = $4, updated_at = now()
			WHERE id = $5 AND status != $6
		`
		result, err = r.db.ExecContext(ctx, query, status, endedAt, failReason, needsReconfiguration, id, domain.JobStatusDisabled)
	}

	if err != nil {
		return fmt.Errorf("update run result: %w", err)
	}
	return checkAffected(result, id)
}

// Disable marks a job disabled. Disabled is terminal; the row is kept for
// audit.
func (r *JobRepository) Disable(ctx context.Context, id string) error {
	query := `UPDATE crawl_jobs SET status = $1, updated_at = now() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, domain.JobStatusDisabled, id)
	if err != nil {
		return fmt.Errorf("disable job: %w", err)
	}
	return checkAffected(result, id)
}

// CountByStatus returns job counts grouped by status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM crawl_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("scan job count: %w", scanErr)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func checkAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
