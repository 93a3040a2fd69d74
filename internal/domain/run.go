package domain

import "time"

// RunOutcome classifies one execution attempt of a job.
type RunOutcome string

const (
	RunOutcomeSuccess   RunOutcome = "success"
	RunOutcomeFailure   RunOutcome = "failure"
	RunOutcomeTimeout   RunOutcome = "timeout"
	RunOutcomeCancelled RunOutcome = "cancelled"
)

// CrawlRun is the audit record of one execution attempt. Appended at the end
// of every attempt and read-only thereafter.
type CrawlRun struct {
	ID        string     `db:"id"         json:"id"`
	JobID     string     `db:"job_id"     json:"job_id"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   time.Time  `db:"ended_at"   json:"ended_at"`
	Outcome   RunOutcome `db:"outcome"    json:"outcome"`
	// RecordsProduced counts genuinely new records inserted by this run.
	// Zero is a valid success.
	RecordsProduced int     `db:"records_produced" json:"records_produced"`
	FailureDetail   *string `db:"failure_detail"   json:"failure_detail,omitempty"`
	// ConsecutiveFailures is the job's trailing failure streak including
	// this run. It makes "auto-retried" vs "needs a human" observable in
	// run history rather than only in the live status field.
	ConsecutiveFailures int `db:"consecutive_failures" json:"consecutive_failures"`
}

// Succeeded reports whether the run completed without error.
func (r *CrawlRun) Succeeded() bool {
	return r.Outcome == RunOutcomeSuccess
}
