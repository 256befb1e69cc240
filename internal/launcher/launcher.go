// Package launcher starts background jobs: it checks the owner has no active
// job, seeds the work queue in one transaction and hands the job to a worker.
package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/phototag/catalog-service/internal/database"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/metrics"
	"github.com/phototag/catalog-service/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrInvalidOwner is returned for a missing or non-positive owner id
	ErrInvalidOwner = errors.New("invalid owner id")
	// ErrNothingQueued is returned when enumeration found nothing new; the
	// job row is still created and committed as completed
	ErrNothingQueued = errors.New("nothing to queue")
	// ErrUnknownKind is returned when no source is registered for a kind
	ErrUnknownKind = errors.New("no source registered for job kind")
)

// ConflictError is returned when the owner already has an active job
type ConflictError struct {
	Job jobs.Job
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("job %d already in progress (%s)", e.Job.ID, e.Job.Status)
}

func (e *ConflictError) Unwrap() error {
	return jobs.ErrActiveJobExists
}

// Ledger is the part of the job ledger the launcher needs
type Ledger interface {
	FindActive(ctx context.Context, ownerID int64) (*jobs.Job, error)
	Create(ctx context.Context, tx database.DBTX, kind jobs.Kind, ownerID int64) (*jobs.Job, error)
	CompleteTx(ctx context.Context, tx database.DBTX, id int64) error
	Complete(ctx context.Context, id int64) error
}

// Queue is the part of the work queue the launcher needs
type Queue interface {
	Seed(ctx context.Context, tx database.DBTX, kind string, jobID int64, payloads []string) (int, error)
	PurgeJob(ctx context.Context, jobID int64) (int64, error)
}

// Spawner starts a worker for a committed job without blocking on it
type Spawner interface {
	Spawn(job jobs.Job) error
}

// Result is returned for a successful launch, and for ErrNothingQueued
type Result struct {
	JobID  int64 `json:"job_id"`
	Queued int   `json:"queued"`
}

// Launcher creates jobs and starts their workers
type Launcher struct {
	ledger  Ledger
	queue   Queue
	tx      database.Transactor
	spawner Spawner
	sources map[jobs.Kind]Source
	logger  zerolog.Logger
	metrics *metrics.Recorder
}

// New creates a launcher with one source per job kind
func New(ledger Ledger, queue Queue, tx database.Transactor, spawner Spawner, logger zerolog.Logger, sources ...Source) *Launcher {
	l := &Launcher{
		ledger:  ledger,
		queue:   queue,
		tx:      tx,
		spawner: spawner,
		sources: make(map[jobs.Kind]Source, len(sources)),
		logger:  logger.With().Str("component", "launcher").Logger(),
		metrics: metrics.NewRecorder(),
	}
	for _, s := range sources {
		l.sources[s.Kind()] = s
	}
	return l
}

// Launch creates a job of the given kind for ownerID, seeds its queue and
// spawns its worker
func (l *Launcher) Launch(ctx context.Context, kind jobs.Kind, ownerID int64) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "launcher.Launch")
	defer span.End()
	span.SetAttributes(attribute.String("job.kind", string(kind)), attribute.Int64("job.owner_id", ownerID))

	res, err := l.launch(ctx, kind, ownerID)
	l.metrics.JobLaunched(string(kind), launchResult(err))
	if err != nil && !errors.Is(err, ErrNothingQueued) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int64("job.id", res.JobID), attribute.Int("job.queued", res.Queued))
	return res, err
}

func (l *Launcher) launch(ctx context.Context, kind jobs.Kind, ownerID int64) (Result, error) {
	if ownerID <= 0 {
		return Result{}, ErrInvalidOwner
	}
	source, ok := l.sources[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	log := l.logger.With().Str("job_kind", string(kind)).Int64("owner_id", ownerID).Logger()

	if active, err := l.ledger.FindActive(ctx, ownerID); err != nil {
		return Result{}, err
	} else if active != nil {
		log.Info().Int64("job_id", active.ID).Str("status", string(active.Status)).Msg("Launch rejected, job already active")
		return Result{}, &ConflictError{Job: *active}
	}

	var job *jobs.Job
	var queued int
	err := l.tx.InTx(ctx, func(tx database.DBTX) error {
		payloads, err := source.Enumerate(ctx)
		if err != nil {
			return fmt.Errorf("enumerate %s work: %w", kind, err)
		}

		job, err = l.ledger.Create(ctx, tx, kind, ownerID)
		if err != nil {
			return err
		}

		queued, err = l.queue.Seed(ctx, tx, string(kind), job.ID, payloads)
		if err != nil {
			return err
		}
		log.Debug().Int64("job_id", job.ID).Int("candidates", len(payloads)).Int("queued", queued).Msg("Queue seeded")

		if queued == 0 {
			return l.ledger.CompleteTx(ctx, tx, job.ID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, jobs.ErrActiveJobExists) {
			// lost a race with a concurrent launch for the same owner
			if active, ferr := l.ledger.FindActive(ctx, ownerID); ferr == nil && active != nil {
				return Result{}, &ConflictError{Job: *active}
			}
		}
		return Result{}, err
	}

	res := Result{JobID: job.ID, Queued: queued}
	if queued == 0 {
		log.Info().Int64("job_id", job.ID).Msg("Nothing new to queue, job completed")
		return res, ErrNothingQueued
	}

	if err := l.spawner.Spawn(*job); err != nil {
		log.Error().Err(err).Int64("job_id", job.ID).Msg("Worker spawn failed, rolling back job")
		l.compensate(job.ID)
		return res, fmt.Errorf("spawn worker for job %d: %w", job.ID, err)
	}

	log.Info().Int64("job_id", job.ID).Int("queued", queued).Msg("Job launched")
	return res, nil
}

// compensate undoes a committed launch whose worker never started. It runs
// on a fresh context because the request may already be gone.
func (l *Launcher) compensate(jobID int64) {
	ctx := context.Background()
	if err := l.ledger.Complete(ctx, jobID); err != nil {
		l.logger.Error().Err(err).Int64("job_id", jobID).Msg("Failed to complete job after spawn failure")
	}
	if _, err := l.queue.PurgeJob(ctx, jobID); err != nil {
		l.logger.Error().Err(err).Int64("job_id", jobID).Msg("Failed to purge queue after spawn failure")
	}
}

func launchResult(err error) string {
	var conflict *ConflictError
	switch {
	case err == nil:
		return "started"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.Is(err, ErrNothingQueued):
		return "empty"
	case errors.Is(err, ErrInvalidOwner):
		return "invalid"
	default:
		return "error"
	}
}
