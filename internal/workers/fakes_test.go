package workers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phototag/catalog-service/internal/catalog"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/taskqueue"
)

type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[int64]*jobs.Job
	beats   int
	beatErr error
	getErr  error
	// onGet runs after every Get with the call count
	onGet func(n int)
	gets  int
}

func newFakeJobs(js ...jobs.Job) *fakeJobs {
	f := &fakeJobs{jobs: map[int64]*jobs.Job{}}
	for i := range js {
		j := js[i]
		f.jobs[j.ID] = &j
	}
	return f
}

func (f *fakeJobs) Get(ctx context.Context, id int64) (*jobs.Job, error) {
	f.mu.Lock()
	f.gets++
	n := f.gets
	var out *jobs.Job
	if j, ok := f.jobs[id]; ok {
		c := *j
		out = &c
	}
	err := f.getErr
	hook := f.onGet
	f.mu.Unlock()

	if hook != nil {
		defer hook(n)
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, jobs.ErrNotFound
	}
	return out, nil
}

func (f *fakeJobs) MarkRunning(ctx context.Context, id int64, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok && j.Status.Active() {
		j.Status = jobs.StatusRunning
		j.WorkerID = &workerID
	}
	return nil
}

func (f *fakeJobs) Heartbeat(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beatErr != nil {
		return f.beatErr
	}
	if j, ok := f.jobs[id]; ok && j.Status.Active() {
		f.beats++
		j.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeJobs) heartbeats() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beats
}

func (f *fakeJobs) Complete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Status = jobs.StatusCompleted
	}
	return nil
}

func (f *fakeJobs) setStatus(id int64, s jobs.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = s
}

func (f *fakeJobs) status(id int64) jobs.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id].Status
}

func (f *fakeJobs) remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
}

type fakeQueue struct {
	mu       sync.Mutex
	items    map[int64]*taskqueue.WorkItem
	nextID   int64
	claimErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: map[int64]*taskqueue.WorkItem{}}
}

func (q *fakeQueue) add(jobID int64, payload string, status taskqueue.ItemStatus, attempts int) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.items[q.nextID] = &taskqueue.WorkItem{
		ID: q.nextID, JobID: jobID, Payload: payload,
		Status: status, Attempts: attempts, UpdatedAt: time.Now(),
	}
	return q.nextID
}

func (q *fakeQueue) ClaimBatch(ctx context.Context, jobID int64, limit int) ([]taskqueue.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	var out []taskqueue.WorkItem
	for _, it := range q.items {
		if it.JobID == jobID && it.Status == taskqueue.StatusPending {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *fakeQueue) ReclaimStuck(ctx context.Context, jobID int64, olderThan time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, it := range q.items {
		if it.JobID == jobID && it.Status == taskqueue.StatusProcessing && time.Since(it.UpdatedAt) > olderThan {
			it.Status = taskqueue.StatusPending
			it.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok || it.Status != taskqueue.StatusPending {
		return false, nil
	}
	it.Status = taskqueue.StatusProcessing
	it.UpdatedAt = time.Now()
	return true, nil
}

func (q *fakeQueue) Resolve(ctx context.Context, id int64, outcome taskqueue.Outcome, limit int) (taskqueue.ItemStatus, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return "", 0, taskqueue.ErrItemGone
	}
	it.Status, it.Attempts = taskqueue.NextStatus(outcome, it.Attempts, limit)
	it.UpdatedAt = time.Now()
	return it.Status, it.Attempts, nil
}

func (q *fakeQueue) item(id int64) taskqueue.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.items[id]
}

// scriptedProcessor returns a fixed result per payload and records calls
type scriptedProcessor struct {
	mu      sync.Mutex
	results map[string]Result
	calls   []string
	err     error
	// onProcess runs before each item is processed
	onProcess func(item taskqueue.WorkItem)
}

func (p *scriptedProcessor) Process(ctx context.Context, item taskqueue.WorkItem) (Result, error) {
	if p.onProcess != nil {
		p.onProcess(item)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, item.Payload)
	if p.err != nil {
		return Result{}, p.err
	}
	if r, ok := p.results[item.Payload]; ok {
		return r, nil
	}
	return done("ok"), nil
}

func (p *scriptedProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// memCatalog is an in-memory image catalog
type memCatalog struct {
	mu        sync.Mutex
	byName    map[string]catalog.NewImage
	hashes    map[string]bool
	insertErr error
	lookupErr error
	// beforeInsert runs ahead of Insert, standing in for another importer
	beforeInsert func()
	updates   map[string]catalog.Descriptive
	updateErr error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		byName:  map[string]catalog.NewImage{},
		hashes:  map[string]bool{},
		updates: map[string]catalog.Descriptive{},
	}
}

func (c *memCatalog) ExistsByFilename(ctx context.Context, filename string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return false, c.lookupErr
	}
	_, ok := c.byName[filename]
	return ok, nil
}

func (c *memCatalog) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return false, c.lookupErr
	}
	return c.hashes[hash], nil
}

func (c *memCatalog) Insert(ctx context.Context, img catalog.NewImage) (int64, error) {
	if c.beforeInsert != nil {
		c.beforeInsert()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return 0, c.insertErr
	}
	if _, ok := c.byName[img.Filename]; ok || c.hashes[img.Hash] {
		return 0, catalog.ErrDuplicate
	}
	c.byName[img.Filename] = img
	c.hashes[img.Hash] = true
	return int64(len(c.byName)), nil
}

func (c *memCatalog) UpdateDescriptive(ctx context.Context, baseName string, d catalog.Descriptive) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateErr != nil {
		return 0, c.updateErr
	}
	var n int64
	for name := range c.byName {
		if base, _, _ := strings.Cut(name, "."); base == baseName {
			n++
		}
	}
	if n > 0 {
		c.updates[baseName] = d
	}
	return n, nil
}

var errDatabaseDown = errors.New("database unreachable")
