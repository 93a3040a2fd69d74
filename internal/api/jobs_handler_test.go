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

func validCreatePayload() api.CreateJobRequest {
	return api.CreateJobRequest{
		Name:           "city portal",
		EntryURL:       "https://example.gov/news",
		Frequency:      "24h",
		ListSelector:   "ul.news li",
		DetailSelector: "div.article",
	}
}

func storedJob(id string) *domain.CrawlJob {
	return &domain.CrawlJob{
		ID:             id,
		Name:           "city portal",
		EntryURL:       "https://example.gov/" + id,
		Frequency:      24 * time.Hour,
		ListSelector:   "ul.news li",
		DetailSelector: "div.article",
		Status:         domain.JobStatusNormal,
	}
}

func TestCreateJob(t *testing.T) {
	e := newEnv()

	rec := e.do(t, http.MethodPost, "/api/v1/jobs", validCreatePayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Frequency string `json:"frequency"`
	}
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "normal", resp.Status, "complete rules activate the job immediately")
	assert.Equal(t, "24h0m0s", resp.Frequency)

	// New runnable jobs get a priority run rather than waiting for the
	// next due-check tick.
	require.Len(t, e.sched.ranNow, 1)
	assert.Equal(t, resp.ID, e.sched.ranNow[0])
}

func TestCreateJobWithoutRulesIsPending(t *testing.T) {
	e := newEnv()

	payload := validCreatePayload()
	payload.ListSelector = ""
	payload.DetailSelector = ""

	rec := e.do(t, http.MethodPost, "/api/v1/jobs", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "pending", resp.Status)
	assert.Empty(t, e.sched.ranNow, "a job without rules has nothing to run")
}

func TestCreateJobValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*api.CreateJobRequest)
		reason string
	}{
		{
			name:   "frequency below minimum",
			mutate: func(r *api.CreateJobRequest) { r.Frequency = "30m" },
			reason: "frequency below minimum",
		},
		{
			name:   "unparseable frequency",
			mutate: func(r *api.CreateJobRequest) { r.Frequency = "often" },
			reason: "invalid frequency",
		},
		{
			name:   "relative URL",
			mutate: func(r *api.CreateJobRequest) { r.EntryURL = "/news" },
			reason: "invalid URL",
		},
		{
			name:   "unsupported scheme",
			mutate: func(r *api.CreateJobRequest) { r.EntryURL = "ftp://example.gov/news" },
			reason: "invalid URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			payload := validCreatePayload()
			tt.mutate(&payload)

			rec := e.do(t, http.MethodPost, "/api/v1/jobs", payload)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Error string `json:"error"`
			}
			decode(t, rec, &resp)
			assert.Equal(t, tt.reason, resp.Error)
		})
	}
}

func TestCreateJobDuplicateEntryURL(t *testing.T) {
	e := newEnv()

	first := e.do(t, http.MethodPost, "/api/v1/jobs", validCreatePayload())
	require.Equal(t, http.StatusCreated, first.Code)

	second := e.do(t, http.MethodPost, "/api/v1/jobs", validCreatePayload())
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestListJobs(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.jobs.Create(context.Background(), storedJob("a")))
	failed := storedJob("b")
	failed.Status = domain.JobStatusFailed
	require.NoError(t, e.jobs.Create(context.Background(), failed))

	rec := e.do(t, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)

	rec = e.do(t, http.MethodGet, "/api/v1/jobs?status=failed", nil)
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)

	rec = e.do(t, http.MethodGet, "/api/v1/jobs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobNeedsAttention(t *testing.T) {
	e := newEnv()
	failing := storedJob("a")
	failing.Status = domain.JobStatusFailed
	require.NoError(t, e.jobs.Create(context.Background(), failing))
	e.runs.streaks["a"] = 5

	rec := e.do(t, http.MethodGet, "/api/v1/jobs/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		NeedsAttention bool `json:"needs_attention"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.NeedsAttention)

	// Below the threshold the flag stays off.
	e.runs.streaks["a"] = 4
	rec = e.do(t, http.MethodGet, "/api/v1/jobs/a", nil)
	decode(t, rec, &resp)
	assert.False(t, resp.NeedsAttention)
}

func TestGetJobNotFound(t *testing.T) {
	e := newEnv()
	rec := e.do(t, http.MethodGet, "/api/v1/jobs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateJobPromotesPending(t *testing.T) {
	e := newEnv()
	pending := storedJob("a")
	pending.Status = domain.JobStatusPending
	pending.ListSelector = ""
	pending.DetailSelector = ""
	require.NoError(t, e.jobs.Create(context.Background(), pending))

	list, detail := "ul li", "div.article"
	rec := e.do(t, http.MethodPut, "/api/v1/jobs/a", api.UpdateJobRequest{
		ListSelector:   &list,
		DetailSelector: &detail,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "normal", resp.Status)
}

func TestUpdateJobDemotesOnIncompleteRules(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.jobs.Create(context.Background(), storedJob("a")))

	empty := ""
	rec := e.do(t, http.MethodPut, "/api/v1/jobs/a", api.UpdateJobRequest{
		DetailSelector: &empty,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "pending", resp.Status)
}

func TestUpdateJobClearsReconfigurationFlag(t *testing.T) {
	e := newEnv()
	broken := storedJob("a")
	broken.Status = domain.JobStatusFailed
	broken.NeedsReconfiguration = true
	require.NoError(t, e.jobs.Create(context.Background(), broken))

	list := "ul.fixed li"
	rec := e.do(t, http.MethodPut, "/api/v1/jobs/a", api.UpdateJobRequest{
		ListSelector: &list,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		NeedsReconfiguration bool `json:"needs_reconfiguration"`
	}
	decode(t, rec, &resp)
	assert.False(t, resp.NeedsReconfiguration, "a rule change puts the job back on the schedule")

	stored, err := e.jobs.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, stored.NeedsReconfiguration)
}

func TestUpdateJobRejectsShortFrequency(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.jobs.Create(context.Background(), storedJob("a")))

	freq := "10m"
	rec := e.do(t, http.MethodPut, "/api/v1/jobs/a", api.UpdateJobRequest{Frequency: &freq})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateDisabledJobRejected(t *testing.T) {
	e := newEnv()
	disabled := storedJob("a")
	disabled.Status = domain.JobStatusDisabled
	require.NoError(t, e.jobs.Create(context.Background(), disabled))

	name := "renamed"
	rec := e.do(t, http.MethodPut, "/api/v1/jobs/a", api.UpdateJobRequest{Name: &name})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDisableJob(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.jobs.Create(context.Background(), storedJob("a")))

	rec := e.do(t, http.MethodDelete, "/api/v1/jobs/a", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	job, err := e.jobs.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDisabled, job.Status)

	// Any in-flight run is told to stop.
	assert.Equal(t, []string{"a"}, e.sched.cancelled)

	rec = e.do(t, http.MethodDelete, "/api/v1/jobs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunNow(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.jobs.Create(context.Background(), storedJob("a")))

	rec := e.do(t, http.MethodPost, "/api/v1/jobs/a/run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"a"}, e.sched.ranNow)
}

func TestRunNowAlreadyRunning(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.jobs.Create(context.Background(), storedJob("a")))
	e.sched.runNowErr = errAlreadyRunning

	rec := e.do(t, http.MethodPost, "/api/v1/jobs/a/run", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "already_running", resp.Status)
}

func TestListRuns(t *testing.T) {
	e := newEnv()
	require.NoError(t, e.jobs.Create(context.Background(), storedJob("a")))
	require.NoError(t, e.runs.Append(context.Background(), &domain.CrawlRun{
		ID: "run-1", JobID: "a", Outcome: domain.RunOutcomeSuccess,
	}))

	rec := e.do(t, http.MethodGet, "/api/v1/jobs/a/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)
}

func TestImportJobs(t *testing.T) {
	e := newEnv()
	existing := storedJob("existing")
	existing.EntryURL = "https://example.gov/existing"
	require.NoError(t, e.jobs.Create(context.Background(), existing))

	payload := api.ImportRequest{Jobs: []api.CreateJobRequest{
		{Name: "ok", EntryURL: "https://example.gov/a", Frequency: "24h"},
		{Name: "bad freq", EntryURL: "https://example.gov/b", Frequency: "5m"},
		{Name: "dup of store", EntryURL: "https://example.gov/existing", Frequency: "24h"},
		{Name: "dup in batch", EntryURL: "https://example.gov/a", Frequency: "24h"},
		{Name: "bad url", EntryURL: "nope", Frequency: "24h"},
	}}

	rec := e.do(t, http.MethodPost, "/api/v1/jobs/import", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Created int               `json:"created"`
		Errors  []api.ImportError `json:"errors"`
	}
	decode(t, rec, &resp)

	assert.Equal(t, 1, resp.Created)
	require.Len(t, resp.Errors, 4)

	byIndex := make(map[int]string)
	for _, impErr := range resp.Errors {
		byIndex[impErr.Index] = impErr.Reason
	}
	assert.Equal(t, "frequency below minimum", byIndex[1])
	assert.Equal(t, "duplicate entry URL", byIndex[2])
	assert.Equal(t, "duplicate entry URL", byIndex[3])
	assert.Equal(t, "invalid URL", byIndex[4])
}
