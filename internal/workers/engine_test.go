package workers

import (
	"context"
	"testing"
	"time"

	"github.com/phototag/catalog-service/config"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/taskqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return Settings{
		BatchSize:         2,
		PollInterval:      5 * time.Millisecond,
		StuckThreshold:    50 * time.Millisecond,
		InactivityTimeout: 60 * time.Millisecond,
		AttemptLimit:      3,
	}
}

func pendingJob(id int64) jobs.Job {
	return jobs.Job{ID: id, Kind: jobs.KindImport, OwnerID: 1, Status: jobs.StatusPending}
}

func runEngine(t *testing.T, js *fakeJobs, q *fakeQueue, p Processor, jobID int64) (ExitReason, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e := NewEngine(js, q, testSettings(), zerolog.Nop())
	return e.Run(ctx, jobID, "import-1-test", p)
}

func TestSettingsFor(t *testing.T) {
	cfg := config.JobsConfig{
		ImportBatchSize:   50,
		UpdateBatchSize:   10,
		PollInterval:      2 * time.Second,
		StuckThreshold:    180 * time.Second,
		InactivityTimeout: 600 * time.Second,
		AttemptLimit:      5,
	}

	imp := SettingsFor(cfg, jobs.KindImport)
	assert.Equal(t, 50, imp.BatchSize)
	assert.Equal(t, 5, imp.AttemptLimit)

	upd := SettingsFor(cfg, jobs.KindUpdate)
	assert.Equal(t, 10, upd.BatchSize)
	assert.Equal(t, 180*time.Second, upd.StuckThreshold)
}

func TestEngineDrainsQueueAndCompletes(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	ids := []int64{
		q.add(1, "a.jpg", taskqueue.StatusPending, 0),
		q.add(1, "b.jpg", taskqueue.StatusPending, 0),
		q.add(1, "c.jpg", taskqueue.StatusPending, 0),
	}
	other := q.add(2, "x.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{}

	reason, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, ExitInactive, reason)
	assert.Equal(t, jobs.StatusCompleted, js.status(1))
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, p.processed())
	for _, id := range ids {
		assert.Equal(t, taskqueue.StatusDone, q.item(id).Status)
	}
	assert.Equal(t, taskqueue.StatusPending, q.item(other).Status, "other job's items untouched")
}

func TestEngineMarksJobRunning(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	q.add(1, "a.jpg", taskqueue.StatusPending, 0)

	var seen jobs.Status
	p := &scriptedProcessor{onProcess: func(taskqueue.WorkItem) { seen = js.status(1) }}

	_, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, seen)
}

func TestEngineRetriesUntilAttemptLimit(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	id := q.add(1, "flaky.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{results: map[string]Result{"flaky.jpg": retry("busy")}}

	_, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)

	item := q.item(id)
	assert.Equal(t, taskqueue.StatusError, item.Status)
	assert.Equal(t, 3, item.Attempts)
	assert.Len(t, p.processed(), 3)
}

func TestEngineFailedIsTerminal(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	id := q.add(1, "broken.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{results: map[string]Result{"broken.jpg": failed("unreadable")}}

	_, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusError, q.item(id).Status)
	assert.Equal(t, 1, q.item(id).Attempts)
	assert.Len(t, p.processed(), 1)
}

func TestEngineExhaustedItemSkipsProcessor(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	id := q.add(1, "old.jpg", taskqueue.StatusPending, 3)
	p := &scriptedProcessor{}

	_, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Empty(t, p.processed())
	assert.Equal(t, taskqueue.StatusError, q.item(id).Status)
	assert.Equal(t, 3, q.item(id).Attempts, "attempts never exceed the limit")
}

func TestEngineStopObservedMidBatch(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	first := q.add(1, "a.jpg", taskqueue.StatusPending, 0)
	second := q.add(1, "b.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{onProcess: func(taskqueue.WorkItem) { js.setStatus(1, jobs.StatusStopped) }}

	reason, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, ExitStopped, reason)
	assert.Equal(t, []string{"a.jpg"}, p.processed())
	assert.Equal(t, taskqueue.StatusDone, q.item(first).Status)
	assert.Equal(t, taskqueue.StatusPending, q.item(second).Status)
	assert.Equal(t, jobs.StatusCompleted, js.status(1))
}

func TestEngineStoppedBeforeStart(t *testing.T) {
	j := pendingJob(1)
	j.Status = jobs.StatusStopped
	js := newFakeJobs(j)
	q := newFakeQueue()
	q.add(1, "a.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{}

	reason, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, ExitStopped, reason)
	assert.Empty(t, p.processed())
}

func TestEngineJobDeleted(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	q.add(1, "a.jpg", taskqueue.StatusPending, 0)
	q.add(1, "b.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{onProcess: func(taskqueue.WorkItem) { js.remove(1) }}

	reason, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, ExitMissing, reason)
	assert.Len(t, p.processed(), 1)

	reason, err = runEngine(t, js, q, p, 42)
	require.NoError(t, err)
	assert.Equal(t, ExitMissing, reason)
}

func TestEngineReclaimsStuckItems(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	id := q.add(1, "stuck.jpg", taskqueue.StatusProcessing, 1)
	q.items[id].UpdatedAt = time.Now().Add(-time.Hour)
	p := &scriptedProcessor{}

	_, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"stuck.jpg"}, p.processed())
	assert.Equal(t, taskqueue.StatusDone, q.item(id).Status)
	assert.Equal(t, 1, q.item(id).Attempts)
}

func TestEngineItemPurgedWhileProcessing(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	q.add(1, "a.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{onProcess: func(it taskqueue.WorkItem) {
		q.mu.Lock()
		delete(q.items, it.ID)
		q.mu.Unlock()
	}}

	reason, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, ExitInactive, reason)
}

func TestEngineFatalErrorLeavesJobUnfinished(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	id := q.add(1, "a.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{err: errDatabaseDown}

	reason, err := runEngine(t, js, q, p, 1)
	require.ErrorIs(t, err, errDatabaseDown)
	assert.Equal(t, ExitFailed, reason)
	assert.Equal(t, jobs.StatusRunning, js.status(1))
	assert.Equal(t, taskqueue.StatusProcessing, q.item(id).Status, "left for stuck-item recovery")
}

func TestEngineClaimErrorIsFatal(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	q.claimErr = errDatabaseDown

	reason, err := runEngine(t, js, q, &scriptedProcessor{}, 1)
	require.ErrorIs(t, err, errDatabaseDown)
	assert.Equal(t, ExitFailed, reason)
}

func TestEngineCancelLeavesJobUnfinished(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	settings := testSettings()
	settings.InactivityTimeout = time.Hour
	e := NewEngine(js, q, settings, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	reason, err := e.Run(ctx, 1, "import-1-test", &scriptedProcessor{})
	require.NoError(t, err)
	assert.Equal(t, ExitCancelled, reason)
	assert.Equal(t, jobs.StatusRunning, js.status(1))
}

func TestEngineHeartbeatsWhileProcessing(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		q.add(1, name, taskqueue.StatusPending, 0)
	}
	// each item outlasts the poll interval, as a slow fingerprint would
	p := &scriptedProcessor{onProcess: func(taskqueue.WorkItem) { time.Sleep(10 * time.Millisecond) }}

	reason, err := runEngine(t, js, q, p, 1)
	require.NoError(t, err)
	assert.Equal(t, ExitInactive, reason)
	assert.GreaterOrEqual(t, js.heartbeats(), 3, "job row refreshed between items")
}

func TestEngineHeartbeatErrorIsFatal(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	js.beatErr = errDatabaseDown
	q := newFakeQueue()
	q.add(1, "a.jpg", taskqueue.StatusPending, 0)
	q.add(1, "b.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{onProcess: func(taskqueue.WorkItem) { time.Sleep(10 * time.Millisecond) }}

	reason, err := runEngine(t, js, q, p, 1)
	require.ErrorIs(t, err, errDatabaseDown)
	assert.Equal(t, ExitFailed, reason)
	assert.Equal(t, jobs.StatusRunning, js.status(1))
}
