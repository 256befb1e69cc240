package sweepers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/metrics"
	"github.com/rs/zerolog"
)

// ActiveLister lists jobs that are pending or running
type ActiveLister interface {
	ListActive(ctx context.Context) ([]jobs.Job, error)
}

// Spawner is the part of the worker supervisor the sweeper needs
type Spawner interface {
	IsRunning(jobID int64) bool
	Spawn(job jobs.Job) error
}

// JobSweeper periodically resumes orphaned jobs: active in the ledger but
// with no live worker in this process
type JobSweeper struct {
	ledger   ActiveLister
	spawner  Spawner
	logger   *zerolog.Logger
	interval time.Duration
	grace    time.Duration
	stopChan chan struct{}
	metrics  *metrics.Recorder
	now      func() time.Time
}

// NewJobSweeper creates a sweeper. Jobs younger than grace are left alone so
// a launch in progress is never double-spawned.
func NewJobSweeper(ledger ActiveLister, spawner Spawner, logger *zerolog.Logger, interval, grace time.Duration) *JobSweeper {
	return &JobSweeper{
		ledger:   ledger,
		spawner:  spawner,
		logger:   logger,
		interval: interval,
		grace:    grace,
		stopChan: make(chan struct{}),
		metrics:  metrics.NewRecorder(),
		now:      time.Now,
	}
}

// Start sweeps once, then on every tick until ctx ends or Stop is called
func (s *JobSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("grace", s.grace).
		Msg("Starting job sweeper")

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to resume orphaned jobs")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Job sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Job sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to resume orphaned jobs")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *JobSweeper) Stop() {
	close(s.stopChan)
}

// Sweep re-spawns every orphaned job and returns how many were resumed
func (s *JobSweeper) Sweep(ctx context.Context) (int, error) {
	s.logger.Debug().Msg("Running orphaned job sweep")

	active, err := s.ledger.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}

	cutoff := s.now().Add(-s.grace)
	resumed := 0
	var errs []error
	for _, job := range active {
		if s.spawner.IsRunning(job.ID) || job.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.spawner.Spawn(job); err != nil {
			errs = append(errs, fmt.Errorf("resume job %d: %w", job.ID, err))
			continue
		}
		resumed++
		s.metrics.OrphanResumed()
		s.logger.Info().
			Int64("job_id", job.ID).
			Str("job_kind", string(job.Kind)).
			Str("job_status", string(job.Status)).
			Msg("Resumed orphaned job")
	}

	return resumed, errors.Join(errs...)
}
