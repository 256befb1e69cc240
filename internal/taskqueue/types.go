package taskqueue

import "time"

// ItemStatus is the state of one work item
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusDone       ItemStatus = "done"
	StatusError      ItemStatus = "error"
)

// Outcome is what a processor decided about an item
type Outcome string

const (
	// OutcomeDone marks the item done (ingested, duplicate or no-op)
	OutcomeDone Outcome = "done"
	// OutcomeRetry counts a failed attempt and returns the item to pending
	// until the attempt limit is reached
	OutcomeRetry Outcome = "retry"
	// OutcomeFailed counts a failed attempt and marks the item error
	OutcomeFailed Outcome = "failed"
	// OutcomeExhausted marks an item error without counting another attempt;
	// used for items claimed with attempts already at the limit
	OutcomeExhausted Outcome = "exhausted"
)

// WorkItem is one unit of work belonging to a job
type WorkItem struct {
	ID        int64      `json:"id"`
	JobID     int64      `json:"job_id"`
	Kind      string     `json:"kind"`
	Payload   string     `json:"payload"`
	Status    ItemStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Stats aggregates a job's queue for status polling
type Stats struct {
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	Processing        int     `json:"processing"`
	Done              int     `json:"done"`
	Failed            int     `json:"failed"`
	NotPending        int     `json:"not_pending"`
	ProcessingPayload *string `json:"processing_payload,omitempty"`
}

// NextStatus returns the status an item moves to when outcome is applied to
// an item that already had the given number of attempts, plus the new
// attempt count. Attempts never decrease.
func NextStatus(outcome Outcome, attempts, limit int) (ItemStatus, int) {
	switch outcome {
	case OutcomeDone:
		return StatusDone, attempts
	case OutcomeFailed:
		return StatusError, attempts + 1
	case OutcomeRetry:
		if attempts+1 >= limit {
			return StatusError, attempts + 1
		}
		return StatusPending, attempts + 1
	default:
		return StatusError, attempts
	}
}
