package api

import (
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitewatch/sitewatch/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// pagination extracts limit/offset query parameters with sane bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}

	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// errorResponse writes a JSON error body.
func errorResponse(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// validEntryURL reports whether raw is an absolute http(s) URL.
func validEntryURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// parseFrequency parses a frequency like "1h" or "24h" and enforces the
// minimum.
func parseFrequency(raw string) (time.Duration, error) {
	freq, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if freq < domain.MinFrequency {
		return 0, domain.ErrFrequencyBelowMinimum
	}
	return freq, nil
}

// jobResponse is the wire shape of a job. Frequency goes out as a duration
// string ("24h") to match what operators configure.
type jobResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	EntryURL       string     `json:"entry_url"`
	Frequency      string     `json:"frequency"`
	ListSelector   string     `json:"list_selector"`
	DetailSelector string     `json:"detail_selector"`
	Status         string     `json:"status"`
	LastSuccessAt  *time.Time `json:"last_success_at,omitempty"`
	LastRunEndAt   *time.Time `json:"last_run_end_at,omitempty"`
	FailReason     *string    `json:"fail_reason,omitempty"`
	NeedsAttention bool       `json:"needs_attention"`
	// NeedsReconfiguration flags a selector that cannot compile; the job
	// sits out the schedule until its rules are edited.
	NeedsReconfiguration bool `json:"needs_reconfiguration"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toJobResponse(job *domain.CrawlJob, needsAttention bool) jobResponse {
	return jobResponse{
		ID:             job.ID,
		Name:           job.Name,
		EntryURL:       job.EntryURL,
		Frequency:      job.Frequency.String(),
		ListSelector:   job.ListSelector,
		DetailSelector: job.DetailSelector,
		Status:         string(job.Status),
		LastSuccessAt:  job.LastSuccessAt,
		LastRunEndAt:   job.LastRunEndAt,
		FailReason:           job.FailReason,
		NeedsAttention:       needsAttention,
		NeedsReconfiguration: job.NeedsReconfiguration,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}
