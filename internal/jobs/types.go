package jobs

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a job id does not exist
	ErrNotFound = errors.New("job not found")
	// ErrActiveJobExists is returned when the owner already has a pending or running job
	ErrActiveJobExists = errors.New("owner already has an active job")
)

// Kind identifies the bulk operation a job performs
type Kind string

const (
	KindImport Kind = "import"
	KindUpdate Kind = "update"
)

// Valid reports whether k is a known job kind
func (k Kind) Valid() bool {
	return k == KindImport || k == KindUpdate
}

// ParseKind converts a route or CLI argument into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errors.New("unknown job kind: " + s)
	}
	return k, nil
}

// Status is the ledger state of a job.
//
// Transitions: pending -> running (worker start), pending|running -> stopped
// (control endpoint), any non-completed -> completed (worker exit).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
)

// Active is true while a worker is expected to make progress on the job
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Job is one row of the job ledger
type Job struct {
	ID          int64      `json:"id"`
	Kind        Kind       `json:"kind"`
	OwnerID     int64      `json:"owner_id"`
	Status      Status     `json:"status"`
	WorkerID    *string    `json:"worker_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
