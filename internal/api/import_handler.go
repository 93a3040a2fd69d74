package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitewatch/sitewatch/internal/database"
)

// ImportRequest is the payload for POST /jobs/import.
type ImportRequest struct {
	Jobs []CreateJobRequest `json:"jobs" binding:"required"`
}

// ImportError describes one rejected entry.
type ImportError struct {
	Index    int    `json:"index"`
	EntryURL string `json:"entry_url"`
	Reason   string `json:"reason"`
}

// ImportJobs handles POST /api/v1/jobs/import. Each entry is validated
// independently; valid entries are created even when others are rejected.
func (h *JobsHandler) ImportJobs(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	created := 0
	importErrors := []ImportError{}
	seen := make(map[string]bool, len(req.Jobs))

	for i, entry := range req.Jobs {
		reject := func(reason string) {
			importErrors = append(importErrors, ImportError{
				Index:    i,
				EntryURL: entry.EntryURL,
				Reason:   reason,
			})
		}

		job, reason := jobFromCreateRequest(entry)
		if reason != "" {
			reject(reason)
			continue
		}

		if seen[job.EntryURL] {
			reject("duplicate entry URL")
			continue
		}
		if _, err := h.jobs.GetByEntryURL(ctx, job.EntryURL); err == nil {
			reject("duplicate entry URL")
			continue
		} else if !errors.Is(err, database.ErrNotFound) {
			reject("lookup failed")
			continue
		}

		if err := h.jobs.Create(ctx, job); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				reject("duplicate entry URL")
			} else {
				reject("create failed")
			}
			continue
		}

		seen[job.EntryURL] = true
		created++
	}

	c.JSON(http.StatusOK, gin.H{
		"created": created,
		"errors":  importErrors,
	})
}
