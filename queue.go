// Package uplink is a durable, crash-resilient upload queue for meeting
// recordings. Jobs survive process restarts, retry with capped exponential
// backoff, and execute one at a time through an idempotent three-step
// pipeline: upsert the remote meeting record, upload the audio artifact,
// trigger remote processing.
package uplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/phrazzld/uplink/auth"
	"github.com/phrazzld/uplink/backoff"
	"github.com/phrazzld/uplink/job"
	"github.com/phrazzld/uplink/remote"
	"github.com/phrazzld/uplink/store"
)

// Construction errors
var (
	ErrNilJobStore  = errors.New("job store cannot be nil")
	ErrNilBridge    = errors.New("remote bridge is incomplete")
	ErrNilArtifacts = errors.New("artifact source cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")
)

// ErrJobNotRetryable is returned by Retry for jobs that are not in the
// terminal failed state.
var ErrJobNotRetryable = errors.New("job is not in a failed state")

// EnqueueResult identifies a newly enqueued job and its remote target.
type EnqueueResult struct {
	JobID    uuid.UUID
	TargetID string
}

// Queue is the durable upload queue. All methods are safe for concurrent
// use; job execution itself is serialized by a single-flight guard.
type Queue struct {
	jobs      store.JobStore
	bridge    remote.Bridge
	artifacts ArtifactSource
	tokens    auth.TokenSource
	policy    backoff.Policy
	opts      Options
	logger    *slog.Logger

	// guard serializes job execution across all scheduler triggers.
	// Size 1; acquired only with TryAcquire so concurrent triggers
	// degrade to no-ops instead of queueing.
	guard *semaphore.Weighted

	tracker *opTracker

	mu   sync.Mutex
	loop *schedulerLoop
}

// New creates a Queue. tokens may be nil for unauthenticated backends.
func New(
	jobs store.JobStore,
	bridge remote.Bridge,
	artifacts ArtifactSource,
	tokens auth.TokenSource,
	policy backoff.Policy,
	opts Options,
	logger *slog.Logger,
) (*Queue, error) {
	if jobs == nil {
		return nil, ErrNilJobStore
	}
	if bridge.Records == nil || bridge.Objects == nil || bridge.Trigger == nil {
		return nil, ErrNilBridge
	}
	if artifacts == nil {
		return nil, ErrNilArtifacts
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	if policy.MaxAttempts <= 0 {
		policy = backoff.Default()
	}

	return &Queue{
		jobs:      jobs,
		bridge:    bridge,
		artifacts: artifacts,
		tokens:    tokens,
		policy:    policy,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "uplink_queue"),
		guard:     semaphore.NewWeighted(1),
		tracker:   newOpTracker(),
	}, nil
}

// Enqueue creates a pending upload job for a local artifact and returns
// immediately; callers never block on queue progress. A placeholder
// meeting record is created optimistically — if that fails, the executor's
// first pipeline step repeats the upsert.
func (q *Queue) Enqueue(ctx context.Context, artifactRef string, meta job.Metadata) (EnqueueResult, error) {
	j, err := job.NewMeetingUpload(artifactRef, meta)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("failed to create job: %w", err)
	}

	log := q.logger.With("job_id", j.ID, "target_id", j.TargetID)

	placeholderCtx, cancel := context.WithTimeout(ctx, q.opts.StepTimeout)
	if err := q.bridge.Records.UpsertRecord(placeholderCtx, j.TargetID, remote.StatusRecorded); err != nil {
		log.Warn("placeholder record creation failed, executor will retry it",
			"error", err)
	}
	cancel()

	if err := q.jobs.Append(ctx, *j); err != nil {
		return EnqueueResult{}, fmt.Errorf("failed to persist job: %w", err)
	}

	log.Info("job enqueued", "artifact_ref", artifactRef)
	q.kick()

	return EnqueueResult{JobID: j.ID, TargetID: j.TargetID}, nil
}

// kick runs one scheduler pass in the background without waiting for it.
func (q *Queue) kick() {
	ctx, done := q.tracker.begin(context.Background(), "scheduler kick")
	go func() {
		defer done()
		if err := q.RunSchedulerOnce(ctx); err != nil {
			q.logger.Error("post-enqueue scheduler pass failed", "error", err)
		}
	}()
}

// ListJobs returns a snapshot of all jobs in submission order.
func (q *Queue) ListJobs(ctx context.Context) ([]job.Job, error) {
	return q.jobs.List(ctx)
}

// GetJob retrieves a job by its ID.
func (q *Queue) GetJob(ctx context.Context, id uuid.UUID) (job.Job, error) {
	return q.jobs.Get(ctx, id)
}

// UpdateJob applies a partial update to a job.
func (q *Queue) UpdateJob(ctx context.Context, id uuid.UUID, patch store.JobPatch) (job.Job, error) {
	return q.jobs.Update(ctx, id, patch)
}

// RemoveJob deletes a job from the queue. Removal is the only way to stop
// a job short of a permanent failure classification.
func (q *Queue) RemoveJob(ctx context.Context, id uuid.UUID) error {
	return q.jobs.Remove(ctx, id)
}

// DeadLetters returns records quarantined during store load.
func (q *Queue) DeadLetters(ctx context.Context) ([]store.DeadLetter, error) {
	return q.jobs.DeadLetters(ctx)
}

// Retry resets a failed job for a fresh round of attempts: attempts back
// to zero, status pending, due immediately. The remote record is
// reconciled to its initial status first since it may sit mid-transition
// from the failed attempt.
func (q *Queue) Retry(ctx context.Context, id uuid.UUID) (job.Job, error) {
	j, err := q.jobs.Get(ctx, id)
	if err != nil {
		return job.Job{}, err
	}

	if j.Status != job.StatusFailed {
		return job.Job{}, fmt.Errorf("%w: %s is %s", ErrJobNotRetryable, id, j.Status)
	}

	reconcileCtx, cancel := context.WithTimeout(ctx, q.opts.StepTimeout)
	if err := q.bridge.Records.UpsertRecord(reconcileCtx, j.TargetID, remote.StatusRecorded); err != nil {
		q.logger.Warn("failed to reconcile remote record before retry",
			"job_id", id,
			"target_id", j.TargetID,
			"error", err)
	}
	cancel()

	now := time.Now().UTC()
	pending := job.StatusPending
	zero := 0
	noError := ""

	updated, err := q.jobs.Update(ctx, id, store.JobPatch{
		Status:    &pending,
		Attempts:  &zero,
		LastError: &noError,
		NextRunAt: &now,
	})
	if err != nil {
		return job.Job{}, err
	}

	q.logger.Info("job reset for manual retry", "job_id", id)
	q.kick()

	return updated, nil
}
