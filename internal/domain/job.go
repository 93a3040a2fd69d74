// Package domain provides domain models used across the application.
package domain

import (
	"errors"
	"time"
)

// MinFrequency is the lowest polling frequency a job may be configured
// with. It bounds how often third-party sites are hit.
const MinFrequency = time.Hour

// JobStatus represents the lifecycle status of a crawl job.
type JobStatus string

const (
	// JobStatusPending means the job is awaiting configuration; it has
	// passed a connection test but may not have extraction rules yet.
	JobStatusPending JobStatus = "pending"
	// JobStatusNormal means the most recent run succeeded.
	JobStatusNormal JobStatus = "normal"
	// JobStatusFailed means the most recent run errored. Failed jobs are
	// still scheduled on their regular cycle.
	JobStatusFailed JobStatus = "failed"
	// JobStatusDisabled is terminal. Disabled jobs are retained for audit
	// and never scheduled again.
	JobStatusDisabled JobStatus = "disabled"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusNormal, JobStatusFailed, JobStatusDisabled:
		return true
	}
	return false
}

// Rules is the per-job extraction rule pair. ListSelector identifies the
// entry nodes on the listing page; DetailSelector identifies the body text
// on each detail page.
type Rules struct {
	ListSelector   string `db:"list_selector"   json:"list_selector"`
	DetailSelector string `db:"detail_selector" json:"detail_selector"`
}

// Complete reports whether both selectors are set.
func (r Rules) Complete() bool {
	return r.ListSelector != "" && r.DetailSelector != ""
}

// CrawlJob is a configured monitoring target.
type CrawlJob struct {
	ID             string        `db:"id"              json:"id"`
	Name           string        `db:"name"            json:"name"`
	EntryURL       string        `db:"entry_url"       json:"entry_url"`
	Frequency      time.Duration `db:"frequency"       json:"frequency"`
	ListSelector   string        `db:"list_selector"   json:"list_selector"`
	DetailSelector string        `db:"detail_selector" json:"detail_selector"`
	Status         JobStatus     `db:"status"          json:"status"`
	LastSuccessAt  *time.Time    `db:"last_success_at" json:"last_success_at,omitempty"`
	LastRunEndAt   *time.Time    `db:"last_run_end_at" json:"last_run_end_at,omitempty"`
	FailReason     *string       `db:"fail_reason"     json:"fail_reason,omitempty"`
	// NeedsReconfiguration is set when a run fails on a selector that
	// does not compile. Retrying cannot help, so the job is held off the
	// schedule until its rules are changed.
	NeedsReconfiguration bool `db:"needs_reconfiguration" json:"needs_reconfiguration"`
	CreatedAt      time.Time     `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"      json:"updated_at"`
}

// Rules returns the job's extraction rule pair.
func (j *CrawlJob) Rules() Rules {
	return Rules{ListSelector: j.ListSelector, DetailSelector: j.DetailSelector}
}

// Due reports whether the job is due for a scheduled run at now.
// A job that has never run is immediately due.
func (j *CrawlJob) Due(now time.Time) bool {
	if j.Status == JobStatusDisabled || j.Status == JobStatusPending {
		return false
	}
	if j.NeedsReconfiguration {
		return false
	}
	if j.LastRunEndAt == nil {
		return true
	}
	return now.Sub(*j.LastRunEndAt) >= j.Frequency
}

// Overdue returns how far past its schedule the job is at now.
// Jobs that have never run report their full frequency as overdue-ness so
// they sort ahead of recently run jobs.
func (j *CrawlJob) Overdue(now time.Time) time.Duration {
	if j.LastRunEndAt == nil {
		return j.Frequency
	}
	return now.Sub(*j.LastRunEndAt) - j.Frequency
}

// Validation errors for job configuration.
var (
	ErrFrequencyBelowMinimum = errors.New("frequency below minimum")
	ErrEmptyName             = errors.New("name is required")
	ErrInvalidEntryURL       = errors.New("invalid entry URL")
	ErrRulesRequired         = errors.New("extraction rules required")
)

// Validate checks the invariants that hold for every stored job.
func (j *CrawlJob) Validate() error {
	if j.Name == "" {
		return ErrEmptyName
	}
	if j.Frequency < MinFrequency {
		return ErrFrequencyBelowMinimum
	}
	// A job may lack rules only while pending.
	if j.Status != JobStatusPending && !j.Rules().Complete() {
		return ErrRulesRequired
	}
	return nil
}
