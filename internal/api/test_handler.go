package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitewatch/sitewatch/internal/domain"
	"github.com/sitewatch/sitewatch/internal/extract"
	"github.com/sitewatch/sitewatch/internal/fetch"
)

// rulePreviewCap limits how many sample items a rule test returns.
const rulePreviewCap = 1

// Fetcher is the transport dependency of the wizard test endpoints.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Document, error)
	TestConnection(ctx context.Context, url string) error
}

// TestHandler backs the configuration wizard: a live connection check and a
// capped rule preview against a one-off fetch. Same fetcher and extraction
// engine as production runs, no simulation.
type TestHandler struct {
	fetcher Fetcher
}

// NewTestHandler creates a test handler.
func NewTestHandler(fetcher Fetcher) *TestHandler {
	return &TestHandler{fetcher: fetcher}
}

// TestConnectionRequest is the payload for POST /test/connection.
type TestConnectionRequest struct {
	URL string `json:"url" binding:"required"`
}

// TestConnection handles POST /api/v1/test/connection.
func (h *TestHandler) TestConnection(c *gin.Context) {
	var req TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if !validEntryURL(req.URL) {
		errorResponse(c, http.StatusBadRequest, "invalid URL")
		return
	}

	if err := h.fetcher.TestConnection(c.Request.Context(), req.URL); err != nil {
		reason := err.Error()
		var fe *fetch.Error
		if errors.As(err, &fe) {
			reason = fe.Reason()
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TestRulesRequest is the payload for POST /test/rules.
type TestRulesRequest struct {
	URL            string `json:"url" binding:"required"`
	ListSelector   string `json:"list_selector" binding:"required"`
	DetailSelector string `json:"detail_selector" binding:"required"`
}

// RulePreviewItem is one sample extraction result.
type RulePreviewItem struct {
	Title       string     `json:"title"`
	DetailURL   string     `json:"detail_url"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	Preview     string     `json:"preview"`
}

// TestRules handles POST /api/v1/test/rules.
func (h *TestHandler) TestRules(c *gin.Context) {
	var req TestRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	rules, err := extract.CompileRules(domain.Rules{
		ListSelector:   req.ListSelector,
		DetailSelector: req.DetailSelector,
	})
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "malformed selector")
		return
	}

	ctx := c.Request.Context()

	doc, err := h.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		reason := err.Error()
		var fe *fetch.Error
		if errors.As(err, &fe) {
			reason = fe.Reason()
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": reason})
		return
	}

	items, err := extract.ExtractList(doc.Body, req.URL, rules)
	if errors.Is(err, extract.ErrSelectorNotFound) {
		c.JSON(http.StatusOK, gin.H{"success": true, "items": []RulePreviewItem{}})
		return
	}
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": err.Error()})
		return
	}

	if len(items) > rulePreviewCap {
		items = items[:rulePreviewCap]
	}

	preview := make([]RulePreviewItem, 0, len(items))
	for _, item := range items {
		out := RulePreviewItem{
			Title:       item.Title,
			DetailURL:   item.DetailURL,
			PublishDate: item.PublishDate,
			Preview:     item.BodySnippet,
		}
		if item.DetailURL != "" {
			if detail, fetchErr := h.fetcher.Fetch(ctx, item.DetailURL); fetchErr == nil {
				if body, extractErr := extract.ExtractDetail(detail.Body, item.DetailURL, rules); extractErr == nil {
					out.Preview = snippetOf(body)
				}
			}
		}
		preview = append(preview, out)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "items": preview})
}

const previewMaxRunes = 300

func snippetOf(text string) string {
	runes := []rune(text)
	if len(runes) <= previewMaxRunes {
		return text
	}
	return string(runes[:previewMaxRunes])
}
