package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/identity"
)

// StatsHandler serves the dashboard summary counts.
type StatsHandler struct {
	jobs    database.JobStore
	content database.ContentStore
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(jobs database.JobStore, content database.ContentStore) *StatsHandler {
	return &StatsHandler{jobs: jobs, content: content}
}

// GetStats handles GET /api/v1/stats.
func (h *StatsHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	jobCounts, err := h.jobs.CountByStatus(ctx)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to count jobs")
		return
	}

	contentCounts, err := h.content.CountByStatus(ctx)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to count content")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":    jobCounts,
		"content": contentCounts,
	})
}

// IdentityHandler proxies identity verification to the external provider.
type IdentityHandler struct {
	verifier identity.Verifier
}

// NewIdentityHandler creates an identity handler.
func NewIdentityHandler(verifier identity.Verifier) *IdentityHandler {
	return &IdentityHandler{verifier: verifier}
}

// VerifyRequest is the payload for POST /identity/verify.
type VerifyRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// Verify handles POST /api/v1/identity/verify.
func (h *IdentityHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	accepted, err := h.verifier.Verify(c.Request.Context(), req.Phone)
	if err != nil {
		if errors.Is(err, identity.ErrUnavailable) {
			errorResponse(c, http.StatusServiceUnavailable, "identity verification unavailable")
			return
		}
		errorResponse(c, http.StatusBadGateway, "identity verification failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}
