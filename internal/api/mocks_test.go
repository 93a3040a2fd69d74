package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/sitewatch/internal/api"
	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/domain"
	"github.com/sitewatch/sitewatch/internal/fetch"
	"github.com/sitewatch/sitewatch/internal/logger"
	"github.com/sitewatch/sitewatch/internal/scheduler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.CrawlJob
}

func newFakeJobStore(jobs ...*domain.CrawlJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*domain.CrawlJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) Create(_ context.Context, job *domain.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.EntryURL == job.EntryURL {
			return database.ErrDuplicate
		}
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) GetByID(_ context.Context, id string) (*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *fakeJobStore) GetByEntryURL(_ context.Context, entryURL string) (*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.EntryURL == entryURL {
			clone := *job
			return &clone, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeJobStore) List(_ context.Context, status domain.JobStatus, limit, offset int) ([]*domain.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.CrawlJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		clone := *job
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeJobStore) ListSchedulable(_ context.Context) ([]*domain.CrawlJob, error) {
	return s.List(context.Background(), "", 1000, 0)
}

func (s *fakeJobStore) Update(_ context.Context, job *domain.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return database.ErrNotFound
	}
	job.UpdatedAt = time.Now()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *fakeJobStore) UpdateRunResult(_ context.Context, id string, status domain.JobStatus, endedAt time.Time, failReason *string, needsReconfiguration bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status == domain.JobStatusDisabled {
		return database.ErrNotFound
	}
	job.Status = status
	job.LastRunEndAt = &endedAt
	job.FailReason = failReason
	job.NeedsReconfiguration = needsReconfiguration
	return nil
}

func (s *fakeJobStore) Disable(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	job.Status = domain.JobStatusDisabled
	return nil
}

func (s *fakeJobStore) CountByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

type fakeRunStore struct {
	mu      sync.Mutex
	runs    map[string][]*domain.CrawlRun // keyed by job id
	streaks map[string]int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:    make(map[string][]*domain.CrawlRun),
		streaks: make(map[string]int),
	}
}

func (s *fakeRunStore) Append(_ context.Context, run *domain.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.JobID] = append(s.runs[run.JobID], run)
	return nil
}

func (s *fakeRunStore) ListByJob(_ context.Context, jobID string, limit int) ([]*domain.CrawlRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := s.runs[jobID]
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *fakeRunStore) ConsecutiveFailures(_ context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaks[jobID], nil
}

func (s *fakeRunStore) Prune(_ context.Context, _ int) (int64, error) { return 0, nil }

type fakeContentStore struct {
	mu      sync.Mutex
	records map[string]*domain.ContentRecord // keyed by id
}

func newFakeContentStore(records ...*domain.ContentRecord) *fakeContentStore {
	s := &fakeContentStore{records: make(map[string]*domain.ContentRecord)}
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	return s
}

func (s *fakeContentStore) InsertIfAbsent(_ context.Context, rec *domain.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.Fingerprint == rec.Fingerprint {
			return database.ErrDuplicate
		}
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeContentStore) ExistsByFingerprint(_ context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Fingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeContentStore) GetByID(_ context.Context, id string) (*domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *fakeContentStore) Search(_ context.Context, _ string, limit, offset int) ([]*domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ContentRecord, 0, len(s.records))
	for _, rec := range s.records {
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeContentStore) Update(_ context.Context, rec *domain.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return database.ErrNotFound
	}
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *fakeContentStore) CountByStatus(_ context.Context) (map[domain.ContentStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.ContentStatus]int)
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// fakeSched records dispatch requests.
type fakeSched struct {
	mu        sync.Mutex
	runNowErr error
	ranNow    []string
	cancelled []string
	running   map[string]bool
}

func newFakeSched() *fakeSched {
	return &fakeSched{running: make(map[string]bool)}
}

func (s *fakeSched) RunNow(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runNowErr != nil {
		return s.runNowErr
	}
	s.ranNow = append(s.ranNow, jobID)
	return nil
}

func (s *fakeSched) CancelRun(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, jobID)
	return s.running[jobID]
}

func (s *fakeSched) IsRunning(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[jobID]
}

// fakeFetcher serves canned pages for the wizard endpoints.
type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string]string), errs: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Document, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &fetch.Error{Kind: fetch.KindHTTPStatus, URL: url, StatusCode: 404}
	}
	return &fetch.Document{URL: url, Body: []byte(body), FetchedAt: time.Now()}, nil
}

func (f *fakeFetcher) TestConnection(ctx context.Context, url string) error {
	_, err := f.Fetch(ctx, url)
	return err
}

// fakeVerifier answers identity checks with a fixed result.
type fakeVerifier struct {
	accepted bool
	err      error
}

func (v *fakeVerifier) Verify(_ context.Context, _ string) (bool, error) {
	return v.accepted, v.err
}

// env bundles the router and its fakes for a handler test.
type env struct {
	router  *gin.Engine
	jobs    *fakeJobStore
	runs    *fakeRunStore
	content *fakeContentStore
	sched   *fakeSched
	fetcher *fakeFetcher
	ident   *fakeVerifier
}

func newEnv() *env {
	e := &env{
		jobs:    newFakeJobStore(),
		runs:    newFakeRunStore(),
		content: newFakeContentStore(),
		sched:   newFakeSched(),
		fetcher: newFakeFetcher(),
		ident:   &fakeVerifier{},
	}
	e.router = api.NewRouter(api.Deps{
		Jobs:               e.jobs,
		Runs:               e.runs,
		Content:            e.content,
		Fetcher:            e.fetcher,
		Sched:              e.sched,
		Verifier:           e.ident,
		Log:                logger.NewNoOp(),
		AttentionThreshold: 5,
	})
	return e
}

func (e *env) do(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

var errAlreadyRunning = scheduler.ErrAlreadyRunning
