package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/domain"
)

// ContentHandler serves the content-management read path and editorial
// updates.
type ContentHandler struct {
	content database.ContentStore
}

// NewContentHandler creates a content handler.
func NewContentHandler(content database.ContentStore) *ContentHandler {
	return &ContentHandler{content: content}
}

// ListContent handles GET /api/v1/content. The q parameter searches title
// and source.
func (h *ContentHandler) ListContent(c *gin.Context) {
	limit, offset := pagination(c)

	records, err := h.content.Search(c.Request.Context(), c.Query("q"), limit, offset)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list content")
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// GetContent handles GET /api/v1/content/:id.
func (h *ContentHandler) GetContent(c *gin.Context) {
	rec, err := h.content.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "content record not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load content record")
		return
	}

	c.JSON(http.StatusOK, rec)
}

// UpdateContentRequest is the payload for PUT /content/:id. Only
// editorial fields are editable; provenance and identity are fixed at
// insert. Every edit requires an explicit call.
type UpdateContentRequest struct {
	Title       *string    `json:"title"`
	PublishDate *time.Time `json:"publish_date"`
	Type        *string    `json:"type"`
	Status      *string    `json:"status"`
	Body        *string    `json:"body"`
	Region      *string    `json:"region"`
	ExamType    *string    `json:"exam_type"`
}

// UpdateContent handles PUT /api/v1/content/:id.
func (h *ContentHandler) UpdateContent(c *gin.Context) {
	rec, err := h.content.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "content record not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load content record")
		return
	}

	var req UpdateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if reason := applyContentUpdate(rec, req); reason != "" {
		errorResponse(c, http.StatusBadRequest, reason)
		return
	}

	if err := h.content.Update(c.Request.Context(), rec); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "content record not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to update content record")
		return
	}

	c.JSON(http.StatusOK, rec)
}

func applyContentUpdate(rec *domain.ContentRecord, req UpdateContentRequest) string {
	if req.Title != nil {
		if *req.Title == "" {
			return "title is required"
		}
		rec.Title = *req.Title
	}
	if req.PublishDate != nil {
		rec.PublishDate = req.PublishDate
	}
	if req.Type != nil {
		contentType := domain.ContentType(*req.Type)
		if !contentType.Valid() {
			return "invalid content type"
		}
		rec.Type = contentType
	}
	if req.Status != nil {
		status := domain.ContentStatus(*req.Status)
		if !status.Valid() {
			return "invalid content status"
		}
		rec.Status = status
	}
	if req.Body != nil {
		rec.Body = *req.Body
	}
	if req.Region != nil {
		rec.Region = *req.Region
	}
	if req.ExamType != nil {
		rec.ExamType = req.ExamType
	}
	return ""
}
