package workers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/metrics"
	"github.com/phototag/catalog-service/internal/pkg/ids"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrAlreadyRunning is returned when a job already has a live worker
	ErrAlreadyRunning = errors.New("worker already running for job")
	// ErrShuttingDown is returned by Spawn after Shutdown was called
	ErrShuttingDown = errors.New("supervisor is shutting down")
	// ErrNotRunning is returned by Wait for a job with no live worker
	ErrNotRunning = errors.New("no worker running for job")
	// ErrNoEngine is returned for a job kind with no registered engine
	ErrNoEngine = errors.New("no engine registered for job kind")
)

// ProcessorFactory builds the processor for one worker run, e.g. loading
// the metadata table once per update job
type ProcessorFactory func(ctx context.Context, job jobs.Job) (Processor, error)

// WorkerInfo describes a live worker
type WorkerInfo struct {
	JobID     int64     `json:"job_id"`
	Kind      jobs.Kind `json:"kind"`
	WorkerID  string    `json:"worker_id"`
	StartedAt time.Time `json:"started_at"`
}

type handle struct {
	info   WorkerInfo
	cancel context.CancelFunc
	done   chan struct{}
	reason ExitReason
	err    error
}

type kindRunner struct {
	engine  *Engine
	factory ProcessorFactory
}

// Supervisor starts workers detached from the caller and keeps a registry of
// live workers keyed by job id, so liveness can be queried and a job never
// has two workers in this process
type Supervisor struct {
	mu      sync.Mutex
	runners map[jobs.Kind]kindRunner
	running map[int64]*handle
	closed  bool

	sem     *semaphore.Weighted
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  zerolog.Logger
	metrics *metrics.Recorder
}

// NewSupervisor creates a supervisor running at most maxWorkers jobs at once;
// further spawned workers wait for a slot
func NewSupervisor(maxWorkers int, logger zerolog.Logger) *Supervisor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		runners: make(map[jobs.Kind]kindRunner),
		running: make(map[int64]*handle),
		sem:     semaphore.NewWeighted(int64(maxWorkers)),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With().Str("component", "supervisor").Logger(),
		metrics: metrics.NewRecorder(),
	}
}

// Register sets the engine and processor factory for a job kind
func (s *Supervisor) Register(kind jobs.Kind, engine *Engine, factory ProcessorFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[kind] = kindRunner{engine: engine, factory: factory}
}

func (s *Supervisor) register(parent context.Context, job jobs.Job) (*handle, kindRunner, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kindRunner{}, nil, ErrShuttingDown
	}
	if _, ok := s.running[job.ID]; ok {
		return nil, kindRunner{}, nil, fmt.Errorf("%w: %d", ErrAlreadyRunning, job.ID)
	}
	runner, ok := s.runners[job.Kind]
	if !ok {
		return nil, kindRunner{}, nil, fmt.Errorf("%w: %s", ErrNoEngine, job.Kind)
	}

	ctx, cancel := context.WithCancel(parent)
	h := &handle{
		info: WorkerInfo{
			JobID:     job.ID,
			Kind:      job.Kind,
			WorkerID:  ids.Worker(string(job.Kind), job.ID),
			StartedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.running[job.ID] = h
	s.wg.Add(1)
	return h, runner, ctx, nil
}

// Spawn starts a worker for job in the background and returns immediately
func (s *Supervisor) Spawn(job jobs.Job) error {
	h, runner, ctx, err := s.register(s.ctx, job)
	if err != nil {
		return err
	}
	go s.run(ctx, h, runner, job)
	return nil
}

// Run runs a worker for job in the foreground. Cancelling ctx or calling
// Shutdown stops it without completing the job.
func (s *Supervisor) Run(ctx context.Context, job jobs.Job) (ExitReason, error) {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-s.ctx.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	h, runner, ctx, err := s.register(ctx, job)
	if err != nil {
		return "", err
	}
	s.run(ctx, h, runner, job)
	return h.reason, h.err
}

func (s *Supervisor) run(ctx context.Context, h *handle, runner kindRunner, job jobs.Job) {
	log := s.logger.With().
		Int64("job_id", job.ID).
		Str("job_kind", string(job.Kind)).
		Str("worker_id", h.info.WorkerID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Worker panicked")
			h.reason, h.err = ExitFailed, fmt.Errorf("worker panic: %v", r)
		}
		s.metrics.JobFinished(string(job.Kind), string(h.reason))
		h.cancel()
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
		close(h.done)
		s.wg.Done()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		h.reason = ExitCancelled
		return
	}
	defer s.sem.Release(1)

	s.metrics.WorkerStarted(string(job.Kind))
	defer s.metrics.WorkerStopped(string(job.Kind))

	p, err := runner.factory(ctx, job)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build processor")
		h.reason, h.err = ExitFailed, err
		return
	}

	h.reason, h.err = runner.engine.Run(ctx, job.ID, h.info.WorkerID, p)
}

// Wait blocks until the job's worker exits and returns its result
func (s *Supervisor) Wait(ctx context.Context, jobID int64) (ExitReason, error) {
	s.mu.Lock()
	h, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return "", ErrNotRunning
	}

	select {
	case <-h.done:
		return h.reason, h.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// IsRunning reports whether the job has a live worker in this process
func (s *Supervisor) IsRunning(jobID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[jobID]
	return ok
}

// Running lists live workers ordered by job id
func (s *Supervisor) Running() []WorkerInfo {
	s.mu.Lock()
	out := make([]WorkerInfo, 0, len(s.running))
	for _, h := range s.running {
		out = append(out, h.info)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// Shutdown cancels every worker and waits for them to return. Jobs are left
// in their current state so they can be resumed on the next start.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	n := len(s.running)
	s.mu.Unlock()

	s.logger.Info().Int("workers", n).Msg("Supervisor stopping workers")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All workers stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Timed out waiting for workers")
		return ctx.Err()
	}
}

// RunningCount returns the number of live workers
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
