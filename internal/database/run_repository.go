package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sitewatch/sitewatch/internal/domain"
)

// RunRepository implements RunStore on PostgreSQL.
type RunRepository struct {
	db *sqlx.DB
}

var _ RunStore = (*RunRepository)(nil)

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Append inserts a finished run. Runs are read-only after this.
func (r *RunRepository) Append(ctx context.Context, run *domain.CrawlRun) error {
	query := `
		INSERT INTO crawl_runs
			(id, job_id, started_at, ended_at, outcome, records_produced, failure_detail, consecutive_failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		run.ID,
		run.JobID,
		run.StartedAt,
		run.EndedAt,
		run.Outcome,
		run.RecordsProduced,
		run.FailureDetail,
		run.ConsecutiveFailures,
	)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	return nil
}

// ListByJob returns the most recent runs for a job, newest first.
func (r *RunRepository) ListByJob(ctx context.Context, jobID string, limit int) ([]*domain.CrawlRun, error) {
	var runs []*domain.CrawlRun
	query := `
		SELECT id, job_id, started_at, ended_at, outcome, records_produced,
		       failure_detail, consecutive_failures
		FROM crawl_runs
		WHERE job_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	if err := r.db.SelectContext(ctx, &runs, query, jobID, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []*domain.CrawlRun{}
	}
	return runs, nil
}

// ConsecutiveFailures returns the length of the job's trailing streak of
// non-success runs. A successful run resets the streak to zero.
func (r *RunRepository) ConsecutiveFailures(ctx context.Context, jobID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM crawl_runs
		WHERE job_id = $1
		  AND started_at > COALESCE(
			(SELECT MAX(started_at) FROM crawl_runs
			 WHERE job_id = $1 AND outcome = $2),
			'-infinity'::timestamptz)
	`

	if err := r.db.GetContext(ctx, &count, query, jobID, domain.RunOutcomeSuccess); err != nil {
		return 0, fmt.Errorf("consecutive failures: %w", err)
	}
	return count, nil
}

// Prune deletes runs beyond depth per job, oldest first, and returns the
// number of rows removed.
func (r *RunRepository) Prune(ctx context.Context, depth int) (int64, error) {
	query := `
		DELETE FROM crawl_runs
		WHERE id IN (
			SELECT id FROM (
				SELECT id,
				       ROW_NUMBER() OVER (PARTITION BY job_id ORDER BY started_at DESC) AS rn
				FROM crawl_runs
			) ranked
			WHERE ranked.rn > $1
		)
	`

	result, err := r.db.ExecContext(ctx, query, depth)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: rows affected: %w", err)
	}
	return affected, nil
}
