// Package scheduler owns the set of configured crawl jobs and decides when
// each runs. A single due-check loop feeds a bounded worker pool; a per-job
// run-lock guarantees at most one in-flight run per job id.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/domain"
	"github.com/sitewatch/sitewatch/internal/logger"
)

// dispatchBuffer sizes the regular dispatch queue. Due jobs that do not fit
// are simply retried next tick.
const dispatchBuffer = 64

// Dispatch errors returned to the API layer.
var (
	// ErrAlreadyRunning means the job's run-lock is held.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrNotSchedulable means the job cannot run in its current state.
	ErrNotSchedulable = errors.New("job is not schedulable")
	// ErrQueueFull means the priority queue cannot take more work.
	ErrQueueFull = errors.New("dispatch queue full")
)

// Runner executes a single run of a job. Satisfied by executor.Executor.
type Runner interface {
	Execute(ctx context.Context, job *domain.CrawlJob) *domain.CrawlRun
}

// Scheduler drives scheduled and manual job execution.
type Scheduler struct {
	log     logger.Interface
	jobs    database.JobStore
	runner  Runner
	metrics *Metrics

	checkInterval time.Duration
	workerCount   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dispatch chan *domain.CrawlJob
	priority chan *domain.CrawlJob

	// running holds the cancel func of each in-flight run, keyed by job
	// id. Presence of a key is the run-lock.
	running   map[string]context.CancelFunc
	runningMu sync.Mutex
}

// New creates a scheduler.
func New(
	log logger.Interface,
	jobs database.JobStore,
	runner Runner,
	metrics *Metrics,
	checkInterval time.Duration,
	workerCount int,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		log:           log.WithComponent("scheduler"),
		jobs:          jobs,
		runner:        runner,
		metrics:       metrics,
		checkInterval: checkInterval,
		workerCount:   workerCount,
		ctx:           ctx,
		cancel:        cancel,
		dispatch:      make(chan *domain.CrawlJob, dispatchBuffer),
		priority:      make(chan *domain.CrawlJob, dispatchBuffer),
		running:       make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool and the due-check loop. Non-blocking.
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler",
		"check_interval", s.checkInterval,
		"worker_count", s.workerCount)

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			s.worker(workerID)
		}(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dueCheckLoop()
	}()
}

// Stop cancels all in-flight runs and waits for the pool to drain.
func (s *Scheduler) Stop() {
	s.log.Info("stopping scheduler")
	s.cancel()

	s.runningMu.Lock()
	for id, cancelRun := range s.running {
		s.log.Info("cancelling in-flight run", "job_id", id)
		cancelRun()
	}
	s.runningMu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// RunNow dispatches a manual run with priority over the due-queue. Returns
// ErrAlreadyRunning when the job's run-lock is held.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == domain.JobStatusDisabled || !job.Rules().Complete() || job.NeedsReconfiguration {
		return ErrNotSchedulable
	}

	if s.isRunning(job.ID) {
		return ErrAlreadyRunning
	}

	select {
	case s.priority <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// CancelRun cancels the job's in-flight run, if any. The run is recorded as
// cancelled by the executor and the run-lock released, so the job becomes
// eligible again next cycle.
func (s *Scheduler) CancelRun(jobID string) bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	cancelRun, ok := s.running[jobID]
	if ok {
		cancelRun()
	}
	return ok
}

// IsRunning reports whether the job's run-lock is held.
func (s *Scheduler) IsRunning(jobID string) bool {
	return s.isRunning(jobID)
}

// dueCheckLoop ticks at the configured interval. It never blocks on
// dispatch: jobs that do not fit in the queue wait for the next tick.
func (s *Scheduler) dueCheckLoop() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("due-check loop stopped")
			return
		case <-ticker.C:
			s.dueCheck(time.Now())
		}
	}
}

// dueCheck enumerates schedulable jobs and enqueues the due ones,
// most-overdue first.
func (s *Scheduler) dueCheck(now time.Time) {
	jobs, err := s.jobs.ListSchedulable(s.ctx)
	if err != nil {
		s.log.Error("due check: list jobs failed", "error", err)
		return
	}

	due := dueJobs(jobs, now)
	if s.metrics != nil {
		s.metrics.DueJobs.Set(float64(len(due)))
	}
	if len(due) == 0 {
		return
	}

	s.log.Debug("due check", "schedulable", len(jobs), "due", len(due))

	for _, job := range due {
		if s.isRunning(job.ID) {
			// A previous run is still in flight; skip, never queue a
			// second run for the same job.
			if s.metrics != nil {
				s.metrics.DispatchSkipped.Inc()
			}
			continue
		}

		select {
		case s.dispatch <- job:
		default:
			// Queue full. The job stays due and is retried next tick.
			return
		}
	}
}

// worker consumes dispatched jobs, preferring the priority queue.
func (s *Scheduler) worker(workerID int) {
	log := s.log.With("worker_id", workerID)
	log.Debug("worker started")

	for {
		// Drain priority work first.
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.priority:
			s.runJob(job, log)
			continue
		default:
		}

		select {
		case <-s.ctx.Done():
			return
		case job := <-s.priority:
			s.runJob(job, log)
		case job := <-s.dispatch:
			s.runJob(job, log)
		}
	}
}

// runJob acquires the job's run-lock and executes one run. Dispatch paths
// race against each other, so acquisition here is the authoritative check.
func (s *Scheduler) runJob(job *domain.CrawlJob, log logger.Interface) {
	runCtx, ok := s.acquire(job.ID)
	if !ok {
		log.Debug("run-lock held, skipping", "job_id", job.ID)
		return
	}
	defer s.release(job.ID)

	if s.metrics != nil {
		s.metrics.RunningJobs.Inc()
		defer s.metrics.RunningJobs.Dec()
	}

	log.Info("run started", "job_id", job.ID)
	run := s.runner.Execute(runCtx, job)
	s.metrics.ObserveRun(run)
	log.Info("run finished",
		"job_id", job.ID,
		"outcome", run.Outcome,
		"records", run.RecordsProduced)
}

// acquire takes the run-lock for jobID, returning a cancellable run context.
func (s *Scheduler) acquire(jobID string) (context.Context, bool) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if _, held := s.running[jobID]; held {
		return nil, false
	}

	runCtx, cancelRun := context.WithCancel(s.ctx)
	s.running[jobID] = cancelRun
	return runCtx, true
}

func (s *Scheduler) release(jobID string) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if cancelRun, ok := s.running[jobID]; ok {
		cancelRun()
		delete(s.running, jobID)
	}
}

func (s *Scheduler) isRunning(jobID string) bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	_, held := s.running[jobID]
	return held
}
