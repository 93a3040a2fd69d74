package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/domain"
	"github.com/sitewatch/sitewatch/internal/scheduler"
)

func isAlreadyRunning(err error) bool {
	return errors.Is(err, scheduler.ErrAlreadyRunning)
}

// runHistoryPageSize caps the run history returned per job.
const runHistoryPageSize = 20

// SchedulerControl is the scheduler surface the API needs.
type SchedulerControl interface {
	RunNow(ctx context.Context, jobID string) error
	CancelRun(jobID string) bool
	IsRunning(jobID string) bool
}

// JobsHandler handles job configuration and control requests.
type JobsHandler struct {
	jobs  database.JobStore
	runs  database.RunStore
	sched SchedulerControl
	// attentionThreshold is the consecutive-failure count at which a job
	// is surfaced as needing an operator.
	attentionThreshold int
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(
	jobs database.JobStore,
	runs database.RunStore,
	sched SchedulerControl,
	attentionThreshold int,
) *JobsHandler {
	return &JobsHandler{
		jobs:               jobs,
		runs:               runs,
		sched:              sched,
		attentionThreshold: attentionThreshold,
	}
}

// CreateJobRequest is the payload for POST /jobs.
type CreateJobRequest struct {
	Name           string `json:"name" binding:"required"`
	EntryURL       string `json:"entry_url" binding:"required"`
	Frequency      string `json:"frequency" binding:"required"`
	ListSelector   string `json:"list_selector"`
	DetailSelector string `json:"detail_selector"`
}

// CreateJob handles POST /api/v1/jobs.
func (h *JobsHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	job, reason := jobFromCreateRequest(req)
	if reason != "" {
		errorResponse(c, http.StatusBadRequest, reason)
		return
	}

	if err := h.jobs.Create(c.Request.Context(), job); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			errorResponse(c, http.StatusConflict, "duplicate entry URL")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to create job")
		return
	}

	// New runnable jobs jump the due-queue instead of waiting for the
	// next tick. Best effort: if dispatch fails, the due-check loop picks
	// the job up on its regular cycle.
	if job.Status == domain.JobStatusNormal {
		_ = h.sched.RunNow(c.Request.Context(), job.ID)
	}

	c.JSON(http.StatusCreated, toJobResponse(job, false))
}

// jobFromCreateRequest validates a create payload. Returns a rejection
// reason, empty when valid. Shared with bulk import so both paths reject
// identically.
func jobFromCreateRequest(req CreateJobRequest) (*domain.CrawlJob, string) {
	if req.Name == "" {
		return nil, "name is required"
	}
	if !validEntryURL(req.EntryURL) {
		return nil, "invalid URL"
	}

	freq, err := parseFrequency(req.Frequency)
	if err != nil {
		if errors.Is(err, domain.ErrFrequencyBelowMinimum) {
			return nil, "frequency below minimum"
		}
		return nil, "invalid frequency"
	}

	job := &domain.CrawlJob{
		ID:             uuid.NewString(),
		Name:           req.Name,
		EntryURL:       req.EntryURL,
		Frequency:      freq,
		ListSelector:   req.ListSelector,
		DetailSelector: req.DetailSelector,
		Status:         domain.JobStatusPending,
	}
	// A job only leaves pending once both selectors are configured.
	if job.Rules().Complete() {
		job.Status = domain.JobStatusNormal
	}
	return job, ""
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobsHandler) ListJobs(c *gin.Context) {
	status := domain.JobStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		errorResponse(c, http.StatusBadRequest, "invalid status filter")
		return
	}

	limit, offset := pagination(c)

	jobs, err := h.jobs.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobResponse(job, h.needsAttention(c.Request.Context(), job)))
	}

	c.JSON(http.StatusOK, gin.H{"jobs": out, "count": len(out)})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobsHandler) GetJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job, h.needsAttention(c.Request.Context(), job)))
}

// UpdateJobRequest is the payload for PUT /jobs/:id. Nil fields are left
// unchanged.
type UpdateJobRequest struct {
	Name           *string `json:"name"`
	EntryURL       *string `json:"entry_url"`
	Frequency      *string `json:"frequency"`
	ListSelector   *string `json:"list_selector"`
	DetailSelector *string `json:"detail_selector"`
}

// UpdateJob handles PUT /api/v1/jobs/:id.
func (h *JobsHandler) UpdateJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	if job.Status == domain.JobStatusDisabled {
		errorResponse(c, http.StatusConflict, "job is disabled")
		return
	}

	var req UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if reason := applyJobUpdate(job, req); reason != "" {
		errorResponse(c, http.StatusBadRequest, reason)
		return
	}

	if err := h.jobs.Update(c.Request.Context(), job); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to update job")
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job, h.needsAttention(c.Request.Context(), job)))
}

func applyJobUpdate(job *domain.CrawlJob, req UpdateJobRequest) string {
	if req.Name != nil {
		if *req.Name == "" {
			return "name is required"
		}
		job.Name = *req.Name
	}
	if req.EntryURL != nil {
		if !validEntryURL(*req.EntryURL) {
			return "invalid URL"
		}
		job.EntryURL = *req.EntryURL
	}
	if req.Frequency != nil {
		freq, err := parseFrequency(*req.Frequency)
		if err != nil {
			if errors.Is(err, domain.ErrFrequencyBelowMinimum) {
				return "frequency below minimum"
			}
			return "invalid frequency"
		}
		job.Frequency = freq
	}
	// Changing either selector counts as reconfiguration and puts the job
	// back on the schedule.
	if req.ListSelector != nil {
		job.ListSelector = *req.ListSelector
		job.NeedsReconfiguration = false
	}
	if req.DetailSelector != nil {
		job.DetailSelector = *req.DetailSelector
		job.NeedsReconfiguration = false
	}

	// Completing the rule pair promotes a pending job; removing a
	// selector demotes it back.
	if job.Status == domain.JobStatusPending && job.Rules().Complete() {
		job.Status = domain.JobStatusNormal
	}
	if !job.Rules().Complete() {
		job.Status = domain.JobStatusPending
	}
	return ""
}

// DisableJob handles DELETE /api/v1/jobs/:id. Jobs are never physically
// deleted; disabled is terminal and kept for audit.
func (h *JobsHandler) DisableJob(c *gin.Context) {
	id := c.Param("id")

	if err := h.jobs.Disable(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "job not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to disable job")
		return
	}

	// Stop an in-flight run, if any.
	h.sched.CancelRun(id)

	c.Status(http.StatusNoContent)
}

// RunNow handles POST /api/v1/jobs/:id/run.
func (h *JobsHandler) RunNow(c *gin.Context) {
	id := c.Param("id")

	err := h.sched.RunNow(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	case errors.Is(err, database.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "job not found")
	case isAlreadyRunning(err):
		c.JSON(http.StatusConflict, gin.H{"status": "already_running"})
	default:
		errorResponse(c, http.StatusConflict, err.Error())
	}
}

// ListRuns handles GET /api/v1/jobs/:id/runs.
func (h *JobsHandler) ListRuns(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	runs, err := h.runs.ListByJob(c.Request.Context(), job.ID, runHistoryPageSize)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list runs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// loadJob fetches the job from the path id, writing the error response on
// failure.
func (h *JobsHandler) loadJob(c *gin.Context) (*domain.CrawlJob, bool) {
	id := c.Param("id")
	if id == "" {
		errorResponse(c, http.StatusBadRequest, "invalid job ID")
		return nil, false
	}

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "job not found")
			return nil, false
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load job")
		return nil, false
	}
	return job, true
}

// needsAttention reports whether the job's failure streak has reached the
// operator-attention threshold.
func (h *JobsHandler) needsAttention(ctx context.Context, job *domain.CrawlJob) bool {
	if job.Status != domain.JobStatusFailed {
		return false
	}
	streak, err := h.runs.ConsecutiveFailures(ctx, job.ID)
	if err != nil {
		return false
	}
	return streak >= h.attentionThreshold
}
