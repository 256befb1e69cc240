package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phototag/catalog-service/internal/database"
)

// ErrItemGone is returned when an item was deleted (purged) while a worker held it
var ErrItemGone = errors.New("work item no longer exists")

const itemColumns = `id, job_id, kind, payload, status, attempts, created_at, updated_at`

type TaskQueue struct {
	db database.DBTX
}

func New(db database.DBTX) *TaskQueue {
	return &TaskQueue{db: db}
}

// Seed queues one item per payload for the job. Payloads already present in
// the queue for this kind, from any job, are skipped. Returns how many rows
// were actually inserted.
func (q *TaskQueue) Seed(ctx context.Context, tx database.DBTX, kind string, jobID int64, payloads []string) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}
	if tx == nil {
		tx = q.db
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO work_items (job_id, kind, payload)
		SELECT $1, $2, p FROM unnest($3::text[]) WITH ORDINALITY AS t(p, ord)
		ORDER BY ord
		ON CONFLICT (kind, payload) DO NOTHING
	`, jobID, kind, payloads)
	if err != nil {
		return 0, fmt.Errorf("seed queue for job %d: %w", jobID, err)
	}
	return int(tag.RowsAffected()), nil
}

// ClaimBatch returns up to limit pending items of the job. No ordering is
// promised to callers.
func (q *TaskQueue) ClaimBatch(ctx context.Context, jobID int64, limit int) ([]WorkItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+itemColumns+` FROM work_items
		WHERE job_id = $1 AND status = 'pending'
		ORDER BY id
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch for job %d: %w", jobID, err)
	}
	defer rows.Close()

	items := make([]WorkItem, 0, limit)
	for rows.Next() {
		var it WorkItem
		if err := rows.Scan(&it.ID, &it.JobID, &it.Kind, &it.Payload, &it.Status,
			&it.Attempts, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ReclaimStuck resets the job's processing items not touched for longer
// than olderThan back to pending
func (q *TaskQueue) ReclaimStuck(ctx context.Context, jobID int64, olderThan time.Duration) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE work_items
		SET status = 'pending', updated_at = NOW()
		WHERE job_id = $1
		  AND status = 'processing'
		  AND updated_at < NOW() - make_interval(secs => $2)
	`, jobID, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck items for job %d: %w", jobID, err)
	}
	return tag.RowsAffected(), nil
}

// MarkProcessing moves a pending item to processing. It returns false when
// the item is no longer pending.
func (q *TaskQueue) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE work_items
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark item %d processing: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Resolve applies a processing outcome to an item (see NextStatus) and
// returns the resulting status and attempt count
func (q *TaskQueue) Resolve(ctx context.Context, id int64, outcome Outcome, attemptLimit int) (ItemStatus, int, error) {
	var status ItemStatus
	var attempts int
	err := q.db.QueryRow(ctx, `
		UPDATE work_items
		SET status = CASE
		        WHEN $2::text = 'done' THEN 'done'
		        WHEN $2::text = 'retry' AND attempts + 1 < $3 THEN 'pending'
		        ELSE 'error'
		    END,
		    attempts = CASE
		        WHEN $2::text IN ('retry', 'failed') THEN attempts + 1
		        ELSE attempts
		    END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING status, attempts
	`, id, string(outcome), attemptLimit).Scan(&status, &attempts)
	if err != nil {
		if database.IsNoRows(err) {
			return "", 0, ErrItemGone
		}
		return "", 0, fmt.Errorf("resolve item %d: %w", id, err)
	}
	return status, attempts, nil
}

// Stats aggregates the job's queue
func (q *TaskQueue) Stats(ctx context.Context, jobID int64) (Stats, error) {
	var s Stats
	err := q.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'done'),
			COUNT(*) FILTER (WHERE status = 'error'),
			(SELECT payload FROM work_items
			  WHERE job_id = $1 AND status = 'processing'
			  ORDER BY updated_at DESC
			  LIMIT 1)
		FROM work_items
		WHERE job_id = $1
	`, jobID).Scan(&s.Total, &s.Pending, &s.Processing, &s.Done, &s.Failed, &s.ProcessingPayload)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats for job %d: %w", jobID, err)
	}
	s.NotPending = s.Total - s.Pending
	return s, nil
}

// PurgeJob deletes every queue row of one job
func (q *TaskQueue) PurgeJob(ctx context.Context, jobID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM work_items WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, fmt.Errorf("purge queue for job %d: %w", jobID, err)
	}
	return tag.RowsAffected(), nil
}

// PurgeInactive deletes the kind's rows that belong to jobs no longer
// pending or running
func (q *TaskQueue) PurgeInactive(ctx context.Context, kind string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM work_items w
		WHERE w.kind = $1
		  AND NOT EXISTS (
			  SELECT 1 FROM jobs j
			  WHERE j.id = w.job_id AND j.status IN ('pending', 'running')
		  )
	`, kind)
	if err != nil {
		return 0, fmt.Errorf("purge %s queue: %w", kind, err)
	}
	return tag.RowsAffected(), nil
}
