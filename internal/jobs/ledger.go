package jobs

import (
	"context"
	"fmt"

	"github.com/phototag/catalog-service/internal/database"
)

const activeIndex = "jobs_one_active_per_owner"

const jobColumns = `id, kind, owner_id, status, worker_id, created_at, updated_at, started_at, completed_at`

// Ledger persists jobs in Postgres
type Ledger struct {
	db database.DBTX
}

// NewLedger creates a ledger bound to db (normally the pool)
func NewLedger(db database.DBTX) *Ledger {
	return &Ledger{db: db}
}

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Kind, &j.OwnerID, &j.Status, &j.WorkerID,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts a pending job using tx so it commits together with the
// queue seed. A concurrent launch for the same owner loses on the partial
// unique index and gets ErrActiveJobExists.
func (l *Ledger) Create(ctx context.Context, tx database.DBTX, kind Kind, ownerID int64) (*Job, error) {
	if tx == nil {
		tx = l.db
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO jobs (kind, owner_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING `+jobColumns, kind, ownerID)

	job, err := scanJob(row)
	if err != nil {
		if database.IsUniqueViolation(err, activeIndex) {
			return nil, ErrActiveJobExists
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Get returns the job or ErrNotFound
func (l *Ledger) Get(ctx context.Context, id int64) (*Job, error) {
	job, err := scanJob(l.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// FindActive returns the owner's pending or running job, or nil if there is none
func (l *Ledger) FindActive(ctx context.Context, ownerID int64) (*Job, error) {
	job, err := scanJob(l.db.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE owner_id = $1 AND status IN ('pending', 'running')
		ORDER BY id DESC
		LIMIT 1
	`, ownerID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active job for owner %d: %w", ownerID, err)
	}
	return job, nil
}

// MarkRunning moves a pending job to running and records the worker id.
// A job already running keeps its status but takes the new worker id, which
// is what happens when the sweeper resumes an orphan. Stopped and completed
// jobs are left untouched.
func (l *Ledger) MarkRunning(ctx context.Context, id int64, workerID string) error {
	_, err := l.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'running',
		    worker_id = $2,
		    started_at = COALESCE(started_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')
	`, id, workerID)
	if err != nil {
		return fmt.Errorf("mark job %d running: %w", id, err)
	}
	return nil
}

// Heartbeat refreshes updated_at of an active job. A live worker calls it
// while it loops so the sweeper never takes the job for an orphan.
func (l *Ledger) Heartbeat(ctx context.Context, id int64) error {
	_, err := l.db.Exec(ctx, `
		UPDATE jobs
		SET updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')
	`, id)
	if err != nil {
		return fmt.Errorf("heartbeat job %d: %w", id, err)
	}
	return nil
}

// Complete moves any non-completed job to completed
func (l *Ledger) Complete(ctx context.Context, id int64) error {
	_, err := l.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status <> 'completed'
	`, id)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return nil
}

// CompleteTx is Complete inside the caller's transaction
func (l *Ledger) CompleteTx(ctx context.Context, tx database.DBTX, id int64) error {
	return NewLedger(tx).Complete(ctx, id)
}

// Stop requests cooperative cancellation. Stopping a stopped or completed
// job is a successful no-op; the returned job reflects the current row.
func (l *Ledger) Stop(ctx context.Context, id int64) (*Job, error) {
	job, err := scanJob(l.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'stopped', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')
		RETURNING `+jobColumns, id))
	if err == nil {
		return job, nil
	}
	if !database.IsNoRows(err) {
		return nil, fmt.Errorf("stop job %d: %w", id, err)
	}
	return l.Get(ctx, id)
}

// ListActive returns all pending and running jobs, oldest first
func (l *Ledger) ListActive(ctx context.Context) ([]Job, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}
