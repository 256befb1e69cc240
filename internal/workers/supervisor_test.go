package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/taskqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(maxWorkers int, js *fakeJobs, q *fakeQueue, settings Settings, factory ProcessorFactory) *Supervisor {
	s := NewSupervisor(maxWorkers, zerolog.Nop())
	s.Register(jobs.KindImport, NewEngine(js, q, settings, zerolog.Nop()), factory)
	return s
}

func staticFactory(p Processor) ProcessorFactory {
	return func(context.Context, jobs.Job) (Processor, error) { return p, nil }
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSupervisorSpawnRunsToCompletion(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	q.add(1, "a.jpg", taskqueue.StatusPending, 0)
	p := &scriptedProcessor{}
	s := newTestSupervisor(2, js, q, testSettings(), staticFactory(p))

	require.NoError(t, s.Spawn(pendingJob(1)))
	assert.True(t, s.IsRunning(1))

	reason, err := s.Wait(waitCtx(t), 1)
	require.NoError(t, err)
	assert.Equal(t, ExitInactive, reason)
	assert.False(t, s.IsRunning(1))
	assert.Equal(t, jobs.StatusCompleted, js.status(1))
	assert.Equal(t, []string{"a.jpg"}, p.processed())

	_, err = s.Wait(waitCtx(t), 1)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSupervisorRejectsSecondWorkerForJob(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	settings := testSettings()
	settings.InactivityTimeout = time.Hour
	s := newTestSupervisor(2, js, newFakeQueue(), settings, staticFactory(&scriptedProcessor{}))

	require.NoError(t, s.Spawn(pendingJob(1)))
	assert.ErrorIs(t, s.Spawn(pendingJob(1)), ErrAlreadyRunning)

	running := s.Running()
	require.Len(t, running, 1)
	assert.Equal(t, int64(1), running[0].JobID)
	assert.Contains(t, running[0].WorkerID, "import-1-")

	require.NoError(t, s.Shutdown(waitCtx(t)))
}

func TestSupervisorShutdownLeavesJobsResumable(t *testing.T) {
	js := newFakeJobs(pendingJob(1), pendingJob(2))
	settings := testSettings()
	settings.InactivityTimeout = time.Hour
	s := newTestSupervisor(4, js, newFakeQueue(), settings, staticFactory(&scriptedProcessor{}))

	require.NoError(t, s.Spawn(pendingJob(1)))
	require.NoError(t, s.Spawn(pendingJob(2)))
	require.Eventually(t, func() bool {
		return js.status(1) == jobs.StatusRunning && js.status(2) == jobs.StatusRunning
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Shutdown(waitCtx(t)))
	assert.Empty(t, s.Running())
	assert.Equal(t, jobs.StatusRunning, js.status(1))
	assert.Equal(t, jobs.StatusRunning, js.status(2))

	assert.ErrorIs(t, s.Spawn(pendingJob(1)), ErrShuttingDown)
}

func TestSupervisorUnknownKind(t *testing.T) {
	s := NewSupervisor(1, zerolog.Nop())
	err := s.Spawn(jobs.Job{ID: 1, Kind: jobs.KindUpdate})
	assert.ErrorIs(t, err, ErrNoEngine)
	assert.False(t, s.IsRunning(1))
}

func TestSupervisorLimitsConcurrency(t *testing.T) {
	js := newFakeJobs(pendingJob(1), pendingJob(2))
	q := newFakeQueue()
	q.add(1, "a.jpg", taskqueue.StatusPending, 0)

	release := make(chan struct{})
	var mu sync.Mutex
	var started []int64
	factory := func(ctx context.Context, job jobs.Job) (Processor, error) {
		mu.Lock()
		started = append(started, job.ID)
		mu.Unlock()
		return &scriptedProcessor{onProcess: func(taskqueue.WorkItem) { <-release }}, nil
	}
	startedJobs := func() []int64 {
		mu.Lock()
		defer mu.Unlock()
		return append([]int64(nil), started...)
	}

	s := newTestSupervisor(1, js, q, testSettings(), factory)
	require.NoError(t, s.Spawn(pendingJob(1)))
	require.Eventually(t, func() bool { return len(startedJobs()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Spawn(pendingJob(2)))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []int64{1}, startedJobs(), "second worker waits for a slot")
	assert.True(t, s.IsRunning(2))

	close(release)
	_, err := s.Wait(waitCtx(t), 1)
	require.NoError(t, err)
	_, err = s.Wait(waitCtx(t), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, startedJobs())
}

func TestSupervisorFactoryError(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	boom := errors.New("metadata unreadable")
	s := newTestSupervisor(1, js, newFakeQueue(), testSettings(),
		func(context.Context, jobs.Job) (Processor, error) { return nil, boom })

	reason, err := s.Run(waitCtx(t), pendingJob(1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ExitFailed, reason)
	assert.Equal(t, jobs.StatusPending, js.status(1))
}

func TestSupervisorRunForeground(t *testing.T) {
	js := newFakeJobs(pendingJob(1))
	q := newFakeQueue()
	q.add(1, "a.jpg", taskqueue.StatusPending, 0)
	s := newTestSupervisor(1, js, q, testSettings(), staticFactory(&scriptedProcessor{}))

	reason, err := s.Run(waitCtx(t), pendingJob(1))
	require.NoError(t, err)
	assert.Equal(t, ExitInactive, reason)
	assert.False(t, s.IsRunning(1))
}
