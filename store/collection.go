package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/uplink/job"
)

// documentVersion is the schema version written into every persisted
// document.
const documentVersion = 1

// RestartLastError is recorded on jobs found running during recovery.
// A persisted running status after a cold start can only mean the previous
// process died mid-job.
const RestartLastError = "process restarted mid-job"

// document is the persisted shape of the whole collection.
type document struct {
	Version     int          `json:"version"`
	Jobs        []job.Job    `json:"jobs"`
	DeadLetters []DeadLetter `json:"dead_letters,omitempty"`
}

// looseDocument decodes jobs as raw JSON so that a single corrupt record
// can be quarantined without losing the rest of the collection.
type looseDocument struct {
	Version     int               `json:"version"`
	Jobs        []json.RawMessage `json:"jobs"`
	DeadLetters []DeadLetter      `json:"dead_letters,omitempty"`
}

// Collection implements JobStore over a Blob. All jobs live in memory in
// submission order; every mutation rewrites the entire document through
// the Blob's atomic Save.
type Collection struct {
	blob   Blob
	logger *slog.Logger

	mu   sync.Mutex
	jobs []job.Job
	dead []DeadLetter
}

// Open loads the persisted collection and runs the crash-recovery pass:
// any job persisted as running is reset to pending with an explanatory
// last error, and records that cannot be decoded or validated are moved to
// the dead-letter list. Open never fails on bad records, only on storage
// I/O.
func Open(ctx context.Context, blob Blob, logger *slog.Logger) (*Collection, error) {
	c := &Collection{
		blob:   blob,
		logger: logger.With("component", "job_store"),
	}

	data, err := blob.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue document: %w", err)
	}

	if len(data) == 0 {
		return c, nil
	}

	now := time.Now().UTC()
	dirty := false

	var doc looseDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		// The document itself is unreadable. Quarantine it whole and start
		// from an empty collection rather than refusing to load.
		c.logger.Error("queue document is corrupt, quarantining it",
			"error", err,
			"size_bytes", len(data))
		c.dead = []DeadLetter{{
			Raw:           data,
			Reason:        fmt.Sprintf("%s: %v", ErrCorruptDocument, err),
			QuarantinedAt: now,
		}}
		if err := c.persistLocked(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}

	c.dead = doc.DeadLetters

	for _, raw := range doc.Jobs {
		var j job.Job
		if err := json.Unmarshal(raw, &j); err != nil {
			c.quarantine(raw, fmt.Sprintf("undecodable job record: %v", err), now)
			dirty = true
			continue
		}
		if err := j.Validate(); err != nil {
			c.quarantine(raw, fmt.Sprintf("invalid job record: %v", err), now)
			dirty = true
			continue
		}

		if j.Status == job.StatusRunning {
			// The in-memory single-flight guard cannot survive a restart,
			// so a persisted running job was interrupted mid-execution.
			j.Status = job.StatusPending
			j.LastError = RestartLastError
			j.NextRunAt = now
			dirty = true
			c.logger.Warn("recovered interrupted job",
				"job_id", j.ID,
				"job_type", j.Type)
		}

		c.jobs = append(c.jobs, j)
	}

	if dirty {
		if err := c.persistLocked(ctx); err != nil {
			return nil, err
		}
	}

	c.logger.Info("job store loaded",
		"job_count", len(c.jobs),
		"dead_letter_count", len(c.dead))

	return c, nil
}

// quarantine appends a dead letter and logs it.
func (c *Collection) quarantine(raw json.RawMessage, reason string, now time.Time) {
	c.logger.Error("quarantining job record", "reason", reason)
	c.dead = append(c.dead, DeadLetter{
		Raw:           append([]byte(nil), raw...),
		Reason:        reason,
		QuarantinedAt: now,
	})
}

// persistLocked marshals the current state and writes it through the Blob.
// Callers must hold c.mu (or be the only reference, as during Open).
func (c *Collection) persistLocked(ctx context.Context) error {
	doc := document{
		Version:     documentVersion,
		Jobs:        c.jobs,
		DeadLetters: c.dead,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode queue document: %w", err)
	}

	if err := c.blob.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to persist queue document: %w", err)
	}

	return nil
}

// List returns a snapshot of all jobs in submission order.
func (c *Collection) List(ctx context.Context) ([]job.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]job.Job, len(c.jobs))
	copy(out, c.jobs)
	return out, nil
}

// Get retrieves a job by its ID.
func (c *Collection) Get(ctx context.Context, id uuid.UUID) (job.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, j := range c.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return job.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Append adds a new job at the end of the collection and persists.
func (c *Collection) Append(ctx context.Context, j job.Job) error {
	if err := j.Validate(); err != nil {
		return fmt.Errorf("refusing to append invalid job: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.jobs {
		if existing.ID == j.ID {
			return fmt.Errorf("%w: %s", ErrDuplicate, j.ID)
		}
	}

	c.jobs = append(c.jobs, j)
	if err := c.persistLocked(ctx); err != nil {
		// Roll back the in-memory append so state matches storage.
		c.jobs = c.jobs[:len(c.jobs)-1]
		return err
	}
	return nil
}

// Update applies a partial update to a job and persists.
func (c *Collection) Update(ctx context.Context, id uuid.UUID, patch JobPatch) (job.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.jobs {
		if c.jobs[i].ID != id {
			continue
		}

		prev := c.jobs[i]
		next := prev
		if patch.Status != nil {
			next.Status = *patch.Status
		}
		if patch.Attempts != nil {
			next.Attempts = *patch.Attempts
		}
		if patch.LastError != nil {
			next.LastError = *patch.LastError
		}
		if patch.NextRunAt != nil {
			next.NextRunAt = *patch.NextRunAt
		}
		if patch.CompletedAt != nil {
			next.CompletedAt = *patch.CompletedAt
		}

		if err := next.Validate(); err != nil {
			return job.Job{}, fmt.Errorf("patch produces invalid job: %w", err)
		}

		c.jobs[i] = next
		if err := c.persistLocked(ctx); err != nil {
			c.jobs[i] = prev
			return job.Job{}, err
		}
		return next, nil
	}

	return job.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Remove deletes a job from the collection and persists.
func (c *Collection) Remove(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.jobs {
		if c.jobs[i].ID != id {
			continue
		}

		prev := c.jobs
		c.jobs = append(append([]job.Job(nil), c.jobs[:i]...), c.jobs[i+1:]...)
		if err := c.persistLocked(ctx); err != nil {
			c.jobs = prev
			return err
		}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// DeadLetters returns records quarantined during load.
func (c *Collection) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]DeadLetter, len(c.dead))
	copy(out, c.dead)
	return out, nil
}

var _ JobStore = (*Collection)(nil)
