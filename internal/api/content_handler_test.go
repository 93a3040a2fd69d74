package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/sitewatch/internal/api"
	"github.com/sitewatch/sitewatch/internal/domain"
)

func storedRecord(id string) *domain.ContentRecord {
	return &domain.ContentRecord{
		ID:          id,
		JobID:       "job-1",
		Fingerprint: domain.Fingerprint("https://example.gov/news/"+id, "Notice "+id),
		Title:       "Notice " + id,
		Source:      "city portal",
		SourceURL:   "https://example.gov/news/" + id,
		Type:        domain.ContentTypeNotice,
		Status:      domain.ContentStatusDraft,
		Body:        "body",
		CreatedAt:   time.Now(),
	}
}

func TestListContent(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.content.InsertIfAbsent(context.Background(), storedRecord("a")))
	require.NoError(t, e.content.InsertIfAbsent(context.Background(), storedRecord("b")))

	rec := e.do(t, http.MethodGet, "/api/v1/content", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)
}

func TestGetContent(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.content.InsertIfAbsent(context.Background(), storedRecord("a")))

	rec := e.do(t, http.MethodGet, "/api/v1/content/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.ContentRecord
	decode(t, rec, &resp)
	assert.Equal(t, "Notice a", resp.Title)

	rec = e.do(t, http.MethodGet, "/api/v1/content/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateContentEditorialFields(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.content.InsertIfAbsent(context.Background(), storedRecord("a")))

	title := "Corrected title"
	status := "published"
	contentType := "recruitment"
	region := "north"

	rec := e.do(t, http.MethodPut, "/api/v1/content/a", api.UpdateContentRequest{
		Title:  &title,
		Status: &status,
		Type:   &contentType,
		Region: &region,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := e.content.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Corrected title", updated.Title)
	assert.Equal(t, domain.ContentStatusPublished, updated.Status)
	assert.Equal(t, domain.ContentTypeRecruitment, updated.Type)
	assert.Equal(t, "north", updated.Region)

	// Provenance fields are untouched by editorial updates.
	assert.Equal(t, "https://example.gov/news/a", updated.SourceURL)
	assert.Equal(t, "job-1", updated.JobID)
}

func TestUpdateContentPublishedStaysPublished(t *testing.T) {
	e := newEnv()
	published := storedRecord("a")
	published.Status = domain.ContentStatusPublished
	require.NoError(t, e.content.InsertIfAbsent(context.Background(), published))

	// An edit that does not name status leaves it alone.
	body := "revised body"
	rec := e.do(t, http.MethodPut, "/api/v1/content/a", api.UpdateContentRequest{Body: &body})
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := e.content.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentStatusPublished, updated.Status)
	assert.Equal(t, "revised body", updated.Body)
}

func TestUpdateContentValidation(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.content.InsertIfAbsent(context.Background(), storedRecord("a")))

	badStatus := "deleted"
	rec := e.do(t, http.MethodPut, "/api/v1/content/a", api.UpdateContentRequest{Status: &badStatus})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	badType := "gossip"
	rec = e.do(t, http.MethodPut, "/api/v1/content/a", api.UpdateContentRequest{Type: &badType})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty := ""
	rec = e.do(t, http.MethodPut, "/api/v1/content/a", api.UpdateContentRequest{Title: &empty})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateContentNotFound(t *testing.T) {
	e := newEnv()
	title := "x"
	rec := e.do(t, http.MethodPut, "/api/v1/content/ghost", api.UpdateContentRequest{Title: &title})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
