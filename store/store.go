// Package store persists the job collection. The entire collection is one
// JSON document held under a single well-known key and rewritten atomically
// on every mutation, so a crash can never leave a partially written queue.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/uplink/job"
)

// Blob is the single-key document storage underneath the job collection.
// Save must replace the document atomically; Load returns nil data (and a
// nil error) when no document has ever been written.
type Blob interface {
	// Load reads the current document.
	Load(ctx context.Context) ([]byte, error)

	// Save atomically replaces the document.
	Save(ctx context.Context, data []byte) error
}

// JobStore is the queue's sole source of truth for job state.
// Version: 1.0
type JobStore interface {
	// List returns a snapshot of all jobs in submission order.
	List(ctx context.Context) ([]job.Job, error)

	// Get retrieves a job by its ID.
	// Returns ErrNotFound if no such job exists.
	Get(ctx context.Context, id uuid.UUID) (job.Job, error)

	// Append adds a new job at the end of the collection and persists.
	Append(ctx context.Context, j job.Job) error

	// Update applies a partial update to a job and persists.
	// Returns the updated job, or ErrNotFound if no such job exists.
	Update(ctx context.Context, id uuid.UUID, patch JobPatch) (job.Job, error)

	// Remove deletes a job from the collection and persists.
	// Returns ErrNotFound if no such job exists.
	Remove(ctx context.Context, id uuid.UUID) error

	// DeadLetters returns records quarantined during load because they
	// could not be decoded or carried an unknown job type.
	DeadLetters(ctx context.Context) ([]DeadLetter, error)
}

// JobPatch is a partial update to a job. Nil fields are left unchanged.
type JobPatch struct {
	Status      *job.JobStatus `json:"status,omitempty"`
	Attempts    *int           `json:"attempts,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
	NextRunAt   *time.Time     `json:"next_run_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// DeadLetter is a persisted record that failed validation on load and was
// quarantined instead of crashing recovery. Raw holds the original JSON.
type DeadLetter struct {
	Raw           []byte    `json:"raw"`
	Reason        string    `json:"reason"`
	QuarantinedAt time.Time `json:"quarantined_at"`
}

// DBTX is an interface that abstracts the database access layer.
// It is implemented by both *sql.DB and *sql.Tx, allowing store code to
// work with either a database connection or a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
