package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sitewatch/sitewatch/internal/domain"
)

const contentColumns = `id, job_id, fingerprint, title, source, source_url, publish_date,
	type, status, body, region, exam_type, created_at, updated_at`

// ContentRepository implements ContentStore on PostgreSQL.
type ContentRepository struct {
	db *sqlx.DB
}

var _ ContentStore = (*ContentRepository)(nil)

// NewContentRepository creates a new content repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// InsertIfAbsent inserts the record unless its fingerprint already exists.
// The uniqueness check and the insert are a single statement, so the
// no-twins invariant holds under concurrent runs that discover the same
// document. Returns ErrDuplicate when the fingerprint is already present;
// the existing row is never touched, which keeps editorial edits
// crawl-immune.
func (r *ContentRepository) InsertIfAbsent(ctx context.Context, rec *domain.ContentRecord) error {
	query := `
		INSERT INTO content_records
			(id, job_id, fingerprint, title, source, source_url, publish_date,
			 type, status, body, region, exam_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (fingerprint) DO NOTHING
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.JobID,
		rec.Fingerprint,
		rec.Title,
		rec.Source,
		rec.SourceURL,
		rec.PublishDate,
		rec.Type,
		rec.Status,
		rec.Body,
		rec.Region,
		rec.ExamType,
	)
	if err != nil {
		return fmt.Errorf("insert content record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert content record: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}

// ExistsByFingerprint reports whether a record with the fingerprint exists.
// Lets the executor skip detail fetches for already-seen documents; the
// insert still goes through ON CONFLICT for correctness under races.
func (r *ContentRepository) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM content_records WHERE fingerprint = $1)`

	if err := r.db.GetContext(ctx, &exists, query, fingerprint); err != nil {
		return false, fmt.Errorf("fingerprint lookup: %w", err)
	}
	return exists, nil
}

// GetByID retrieves a content record by its ID.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	query := `SELECT ` + contentColumns + ` FROM content_records WHERE id = $1`

	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get content record: %w", err)
	}
	return &rec, nil
}

// Search matches free text against title and source, newest first. An empty
// query lists everything.
func (r *ContentRepository) Search(
	ctx context.Context,
	query string,
	limit, offset int,
) ([]*domain.ContentRecord, error) {
	var recs []*domain.ContentRecord
	var err error

	if query != "" {
		stmt := `SELECT ` + contentColumns + `
			FROM content_records
			WHERE title ILIKE '%' || $1 || '%' OR source ILIKE '%' || $1 || '%'
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		err = r.db.SelectContext(ctx, &recs, stmt, query, limit, offset)
	} else {
		stmt := `SELECT ` + contentColumns + `
			FROM content_records
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		err = r.db.SelectContext(ctx, &recs, stmt, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	if recs == nil {
		recs = []*domain.ContentRecord{}
	}
	return recs, nil
}

// Update persists an editorial change. Only the editable fields move;
// identity, fingerprint, and provenance are fixed at insert.
func (r *ContentRepository) Update(ctx context.Context, rec *domain.ContentRecord) error {
	query := `
		UPDATE content_records
		SET title = $1, publish_date = $2, type = $3, status = $4, body = $5,
		    region = $6, exam_type = $7, updated_at = now()
		WHERE id = $8
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		rec.Title,
		rec.PublishDate,
		rec.Type,
		rec.Status,
		rec.Body,
		rec.Region,
		rec.ExamType,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update content record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update content record: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("content record %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// CountByStatus returns content record counts grouped by editorial status.
func (r *ContentRepository) CountByStatus(ctx context.Context) (map[domain.ContentStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM content_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count content records: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ContentStatus]int)
	for rows.Next() {
		var status domain.ContentStatus
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("scan content count: %w", scanErr)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
