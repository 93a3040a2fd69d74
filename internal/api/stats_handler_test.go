package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/sitewatch/internal/api"
	"github.com/sitewatch/sitewatch/internal/domain"
	"github.com/sitewatch/sitewatch/internal/identity"
)

func TestGetStats(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.jobs.Create(context.Background(), storedJob("a")))
	failed := storedJob("b")
	failed.Status = domain.JobStatusFailed
	require.NoError(t, e.jobs.Create(context.Background(), failed))
	require.NoError(t, e.content.InsertIfAbsent(context.Background(), storedRecord("r1")))

	rec := e.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs    map[string]int `json:"jobs"`
		Content map[string]int `json:"content"`
	}
	decode(t, rec, &resp)

	assert.Equal(t, 1, resp.Jobs["normal"])
	assert.Equal(t, 1, resp.Jobs["failed"])
	assert.Equal(t, 1, resp.Content["draft"])
}

func TestIdentityVerify(t *testing.T) {
	e := newEnv()
	e.ident.accepted = true

	rec := e.do(t, http.MethodPost, "/api/v1/identity/verify", api.VerifyRequest{Phone: "01012345600"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Accepted)
}

func TestIdentityVerifyUnavailable(t *testing.T) {
	e := newEnv()
	e.ident.err = identity.ErrUnavailable

	rec := e.do(t, http.MethodPost, "/api/v1/identity/verify", api.VerifyRequest{Phone: "01012345600"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIdentityVerifyRequiresPhone(t *testing.T) {
	e := newEnv()
	rec := e.do(t, http.MethodPost, "/api/v1/identity/verify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	e := newEnv()
	rec := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
