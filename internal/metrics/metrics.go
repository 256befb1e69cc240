// Package metrics defines the Prometheus collectors of the job engine.
package metrics

import (
	"context"
	"time"

	"github.com/phototag/catalog-service/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// jobsLaunched counts launch attempts by kind and result.
	jobsLaunched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_jobs_launched_total",
		Help: "Job launch attempts by kind and result",
	}, []string{"kind", "result"}) // result: started, conflict, empty, error

	// jobsFinished counts worker exits by kind and reason.
	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_jobs_finished_total",
		Help: "Worker exits by kind and reason",
	}, []string{"kind", "reason"}) // reason: stopped, missing, inactive, cancelled, error

	// itemsResolved counts queue items by the status they ended an attempt in.
	itemsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_items_resolved_total",
		Help: "Work items resolved by kind and outcome",
	}, []string{"kind", "outcome"})

	// itemsReclaimed counts stuck items returned to pending.
	itemsReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_items_reclaimed_total",
		Help: "Stuck work items reset to pending",
	}, []string{"kind"})

	// activeWorkers tracks running worker goroutines.
	activeWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_active_workers",
		Help: "Workers currently running by kind",
	}, []string{"kind"})

	// batchDuration tracks how long one claimed batch takes to process.
	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_batch_duration_seconds",
		Help:    "Time taken to process one claimed batch",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"kind"})

	// fingerprintDuration tracks content hashing time.
	fingerprintDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_fingerprint_duration_seconds",
		Help:    "Time taken to fingerprint one file",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	// orphansResumed counts jobs the sweeper re-spawned.
	orphansResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_orphan_jobs_resumed_total",
		Help: "Active jobs without a live worker that were resumed",
	})
)

// OTLP counterparts of the collectors above, exported when telemetry is
// enabled and noop otherwise
var (
	otelItemsResolved, _ = telemetry.Meter().Int64Counter("catalog.items.resolved",
		metric.WithDescription("Work items resolved by kind and outcome"))
	otelActiveWorkers, _ = telemetry.Meter().Int64UpDownCounter("catalog.workers.active",
		metric.WithDescription("Workers currently running by kind"))
)

// Recorder records job engine metrics. The zero value is ready to use.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// JobLaunched records the result of a launch attempt.
func (r *Recorder) JobLaunched(kind, result string) {
	jobsLaunched.WithLabelValues(kind, result).Inc()
}

// JobFinished records why a worker exited.
func (r *Recorder) JobFinished(kind, reason string) {
	jobsFinished.WithLabelValues(kind, reason).Inc()
}

// ItemResolved records the outcome of one item attempt.
func (r *Recorder) ItemResolved(kind, outcome string) {
	itemsResolved.WithLabelValues(kind, outcome).Inc()
	otelItemsResolved.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// ItemsReclaimed records stuck items reset to pending.
func (r *Recorder) ItemsReclaimed(kind string, n int64) {
	if n > 0 {
		itemsReclaimed.WithLabelValues(kind).Add(float64(n))
	}
}

// WorkerStarted increments the active worker gauge.
func (r *Recorder) WorkerStarted(kind string) {
	activeWorkers.WithLabelValues(kind).Inc()
	otelActiveWorkers.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// WorkerStopped decrements the active worker gauge.
func (r *Recorder) WorkerStopped(kind string) {
	activeWorkers.WithLabelValues(kind).Dec()
	otelActiveWorkers.Add(context.Background(), -1, metric.WithAttributes(attribute.String("kind", kind)))
}

// BatchProcessed records the duration of one batch.
func (r *Recorder) BatchProcessed(kind string, d time.Duration) {
	batchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// Fingerprinted records the duration of one content hash.
func (r *Recorder) Fingerprinted(d time.Duration) {
	fingerprintDuration.Observe(d.Seconds())
}

// OrphanResumed records a sweeper re-spawn.
func (r *Recorder) OrphanResumed() {
	orphansResumed.Inc()
}
