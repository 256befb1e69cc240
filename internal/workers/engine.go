// Package workers runs background jobs: a polling engine that drains a job's
// work queue through a Processor, and a supervisor that tracks live workers.
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phototag/catalog-service/config"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/metrics"
	"github.com/phototag/catalog-service/internal/taskqueue"
	"github.com/phototag/catalog-service/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Settings tunes the polling loop
type Settings struct {
	BatchSize         int
	PollInterval      time.Duration
	StuckThreshold    time.Duration
	InactivityTimeout time.Duration
	AttemptLimit      int
}

// SettingsFor builds the loop settings of a job kind from configuration
func SettingsFor(cfg config.JobsConfig, kind jobs.Kind) Settings {
	batch := cfg.ImportBatchSize
	if kind == jobs.KindUpdate {
		batch = cfg.UpdateBatchSize
	}
	return Settings{
		BatchSize:         batch,
		PollInterval:      cfg.PollInterval,
		StuckThreshold:    cfg.StuckThreshold,
		InactivityTimeout: cfg.InactivityTimeout,
		AttemptLimit:      cfg.AttemptLimit,
	}
}

// JobStore is the part of the job ledger a worker needs
type JobStore interface {
	Get(ctx context.Context, id int64) (*jobs.Job, error)
	MarkRunning(ctx context.Context, id int64, workerID string) error
	Heartbeat(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64) error
}

// QueueStore is the part of the work queue a worker needs
type QueueStore interface {
	ClaimBatch(ctx context.Context, jobID int64, limit int) ([]taskqueue.WorkItem, error)
	ReclaimStuck(ctx context.Context, jobID int64, olderThan time.Duration) (int64, error)
	MarkProcessing(ctx context.Context, id int64) (bool, error)
	Resolve(ctx context.Context, id int64, outcome taskqueue.Outcome, attemptLimit int) (taskqueue.ItemStatus, int, error)
}

// Result is a processor's verdict on one item
type Result struct {
	Outcome taskqueue.Outcome
	Reason  string
}

// Processor handles one work item. Item-level problems are reported through
// Result; a returned error means the catalog is unreachable and stops the
// worker.
type Processor interface {
	Process(ctx context.Context, item taskqueue.WorkItem) (Result, error)
}

// ExitReason says why Run returned
type ExitReason string

const (
	ExitStopped   ExitReason = "stopped"
	ExitMissing   ExitReason = "missing"
	ExitInactive  ExitReason = "inactive"
	ExitFinished  ExitReason = "finished"
	ExitCancelled ExitReason = "cancelled"
	ExitFailed    ExitReason = "error"
)

// Engine runs the polling loop for one job at a time; it holds no per-job
// state and is safe to share between workers
type Engine struct {
	jobs     JobStore
	queue    QueueStore
	settings Settings
	logger   zerolog.Logger
	metrics  *metrics.Recorder
}

// NewEngine creates an engine
func NewEngine(jobStore JobStore, queue QueueStore, settings Settings, logger zerolog.Logger) *Engine {
	return &Engine{
		jobs:     jobStore,
		queue:    queue,
		settings: settings,
		logger:   logger,
		metrics:  metrics.NewRecorder(),
	}
}

// Settings returns the loop settings
func (e *Engine) Settings() Settings {
	return e.settings
}

// Run drains the job's queue until the job is stopped or deleted, or no
// item has been claimed for the inactivity timeout; the job is then marked
// completed. A store error returns immediately and leaves the job as it
// is. Cancelling ctx also returns without completing, so the job can be
// resumed later.
func (e *Engine) Run(ctx context.Context, jobID int64, workerID string, p Processor) (ExitReason, error) {
	log := e.logger.With().
		Str("component", "worker").
		Int64("job_id", jobID).
		Str("worker_id", workerID).
		Logger()

	reason, kind, err := e.loop(ctx, jobID, workerID, p, log)
	if kind != "" {
		log = log.With().Str("job_kind", string(kind)).Logger()
	}

	switch {
	case err != nil:
		if ctx.Err() != nil {
			log.Info().Msg("Worker cancelled")
			return ExitCancelled, nil
		}
		log.Error().Err(err).Msg("Worker aborted, job left unfinished")
		return ExitFailed, err
	case reason == ExitCancelled:
		log.Info().Msg("Worker cancelled")
		return reason, nil
	}

	// completion must not be skipped because the caller's context ended
	if err := e.jobs.Complete(context.WithoutCancel(ctx), jobID); err != nil {
		log.Error().Err(err).Msg("Failed to mark job completed")
		return ExitFailed, err
	}
	log.Info().Str("reason", string(reason)).Msg("Worker finished, job completed")
	return reason, nil
}

func (e *Engine) loop(ctx context.Context, jobID int64, workerID string, p Processor, log zerolog.Logger) (ExitReason, jobs.Kind, error) {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return ExitMissing, "", nil
		}
		return "", "", err
	}
	switch job.Status {
	case jobs.StatusStopped:
		return ExitStopped, job.Kind, nil
	case jobs.StatusCompleted:
		return ExitFinished, job.Kind, nil
	}

	if err := e.jobs.MarkRunning(ctx, jobID, workerID); err != nil {
		return "", job.Kind, err
	}
	log.Info().
		Str("job_kind", string(job.Kind)).
		Int("batch_size", e.settings.BatchSize).
		Dur("poll_interval", e.settings.PollInterval).
		Msg("Worker started")

	hb := &heartbeat{jobs: e.jobs, jobID: jobID, every: e.settings.PollInterval, last: time.Now()}
	lastProgress := time.Now()
	for {
		if ctx.Err() != nil {
			return ExitCancelled, job.Kind, nil
		}

		if reason, ok, err := e.checkJob(ctx, jobID); err != nil {
			return "", job.Kind, err
		} else if !ok {
			return reason, job.Kind, nil
		}
		if err := hb.beat(ctx); err != nil {
			return "", job.Kind, err
		}

		batch, err := e.queue.ClaimBatch(ctx, jobID, e.settings.BatchSize)
		if err != nil {
			return "", job.Kind, err
		}

		if len(batch) == 0 {
			reclaimed, err := e.queue.ReclaimStuck(ctx, jobID, e.settings.StuckThreshold)
			if err != nil {
				return "", job.Kind, err
			}
			if reclaimed > 0 {
				e.metrics.ItemsReclaimed(string(job.Kind), reclaimed)
				log.Warn().Int64("reclaimed", reclaimed).Msg("Reset stuck items to pending")
				if batch, err = e.queue.ClaimBatch(ctx, jobID, e.settings.BatchSize); err != nil {
					return "", job.Kind, err
				}
			}
		}

		if len(batch) == 0 {
			if idle := time.Since(lastProgress); idle >= e.settings.InactivityTimeout {
				log.Info().Dur("idle", idle).Msg("No work left, worker exiting")
				return ExitInactive, job.Kind, nil
			}
			if !sleep(ctx, e.settings.PollInterval) {
				return ExitCancelled, job.Kind, nil
			}
			continue
		}

		lastProgress = time.Now()
		stopped, err := e.processBatch(ctx, job, batch, p, hb, log)
		if err != nil {
			return "", job.Kind, err
		}
		if stopped != "" {
			return stopped, job.Kind, nil
		}

		if !sleep(ctx, e.settings.PollInterval) {
			return ExitCancelled, job.Kind, nil
		}
	}
}

// checkJob reports whether the job should keep running
func (e *Engine) checkJob(ctx context.Context, jobID int64) (ExitReason, bool, error) {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return ExitMissing, false, nil
		}
		return "", false, err
	}
	switch job.Status {
	case jobs.StatusStopped:
		return ExitStopped, false, nil
	case jobs.StatusCompleted:
		return ExitFinished, false, nil
	}
	return "", true, nil
}

func (e *Engine) processBatch(ctx context.Context, job *jobs.Job, batch []taskqueue.WorkItem, p Processor, hb *heartbeat, log zerolog.Logger) (ExitReason, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "worker.batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.Int("batch.size", len(batch)),
	)

	start := time.Now()
	defer func() { e.metrics.BatchProcessed(string(job.Kind), time.Since(start)) }()

	log.Debug().Int("items", len(batch)).Msg("Processing batch")

	for _, item := range batch {
		if reason, ok, err := e.checkJob(ctx, job.ID); err != nil {
			return "", err
		} else if !ok {
			log.Info().Str("reason", string(reason)).Msg("Stop observed mid-batch")
			return reason, nil
		}
		if err := hb.beat(ctx); err != nil {
			return "", err
		}
		if ctx.Err() != nil {
			return ExitCancelled, nil
		}

		if err := e.processItem(ctx, job, item, p, log); err != nil {
			span.RecordError(err)
			return "", err
		}
	}
	return "", nil
}

func (e *Engine) processItem(ctx context.Context, job *jobs.Job, item taskqueue.WorkItem, p Processor, log zerolog.Logger) error {
	ilog := log.With().
		Int64("item_id", item.ID).
		Str("payload", item.Payload).
		Int("attempts", item.Attempts).
		Logger()

	var res Result
	if item.Attempts >= e.settings.AttemptLimit {
		res = Result{Outcome: taskqueue.OutcomeExhausted, Reason: "attempt limit reached"}
	} else {
		claimed, err := e.queue.MarkProcessing(ctx, item.ID)
		if err != nil {
			return err
		}
		if !claimed {
			ilog.Debug().Msg("Item no longer pending, skipped")
			return nil
		}

		res, err = p.Process(ctx, item)
		if err != nil {
			return fmt.Errorf("process item %d: %w", item.ID, err)
		}
	}

	status, attempts, err := e.queue.Resolve(ctx, item.ID, res.Outcome, e.settings.AttemptLimit)
	if err != nil {
		if errors.Is(err, taskqueue.ErrItemGone) {
			ilog.Debug().Msg("Item purged while processing")
			return nil
		}
		return err
	}
	e.metrics.ItemResolved(string(job.Kind), string(res.Outcome))

	ev := ilog.Debug()
	if status == taskqueue.StatusError {
		ev = ilog.Warn()
	} else if res.Outcome == taskqueue.OutcomeRetry {
		ev = ilog.Info()
	}
	ev.Str("outcome", string(res.Outcome)).
		Str("status", string(status)).
		Int("attempts_after", attempts).
		Str("reason", res.Reason).
		Msg("Item resolved")
	return nil
}

// heartbeat refreshes the job row at most once per interval while a worker
// owns the job
type heartbeat struct {
	jobs  JobStore
	jobID int64
	every time.Duration
	last  time.Time
}

func (h *heartbeat) beat(ctx context.Context) error {
	if time.Since(h.last) < h.every {
		return nil
	}
	if err := h.jobs.Heartbeat(ctx, h.jobID); err != nil {
		return err
	}
	h.last = time.Now()
	return nil
}

// sleep waits d or until ctx is done; false means ctx ended
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
