package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ContentType classifies an extracted document.
type ContentType string

const (
	ContentTypeRecruitment ContentType = "recruitment"
	ContentTypeNotice      ContentType = "notice"
	ContentTypeNews        ContentType = "news"
	ContentTypeTender      ContentType = "tender"
)

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeRecruitment, ContentTypeNotice, ContentTypeNews, ContentTypeTender:
		return true
	}
	return false
}

// ContentStatus is the editorial status of a record. Crawl runs only ever
// create records in draft; published and archived are editorial decisions.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusArchived  ContentStatus = "archived"
)

// Valid reports whether s is a known content status.
func (s ContentStatus) Valid() bool {
	switch s {
	case ContentStatusDraft, ContentStatusPublished, ContentStatusArchived:
		return true
	}
	return false
}

// ContentRecord is one extracted document.
type ContentRecord struct {
	ID          string        `db:"id"           json:"id"`
	JobID       string        `db:"job_id"       json:"job_id"`
	Fingerprint string        `db:"fingerprint"  json:"fingerprint"`
	Title       string        `db:"title"        json:"title"`
	Source      string        `db:"source"       json:"source"`
	SourceURL   string        `db:"source_url"   json:"source_url"`
	PublishDate *time.Time    `db:"publish_date" json:"publish_date,omitempty"`
	Type        ContentType   `db:"type"         json:"type"`
	Status      ContentStatus `db:"status"       json:"status"`
	Body        string        `db:"body"         json:"body"`
	Region      string        `db:"region"       json:"region"`
	ExamType    *string       `db:"exam_type"    json:"exam_type,omitempty"`
	CreatedAt   time.Time     `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"   json:"updated_at"`
}

// Fingerprint derives the stable dedup key for a source document. The same
// (sourceURL, title) pair always yields the same fingerprint, so re-fetching
// a page never creates a twin record.
func Fingerprint(sourceURL, title string) string {
	h := sha256.New()
	h.Write([]byte(sourceURL))
	h.Write([]byte{0})
	h.Write([]byte(title))
	return hex.EncodeToString(h.Sum(nil))
}
