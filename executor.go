package uplink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/uplink/auth"
	"github.com/phrazzld/uplink/job"
	"github.com/phrazzld/uplink/remote"
	"github.com/phrazzld/uplink/store"
)

// Pipeline stages, used to pick the remote record's failure branch.
const (
	stagePrecondition = "precondition"
	stageRecordUpsert = "record_upsert"
	stageUpload       = "upload"
	stageTrigger      = "trigger"
)

// execute runs the pipeline for one claimed job and applies the outcome
// to the store. It returns an error only on job store I/O failure; every
// execution failure is caught, classified, and recorded on the job.
func (q *Queue) execute(ctx context.Context, j job.Job) error {
	log := q.logger.With(
		"job_id", j.ID,
		"job_type", j.Type,
		"target_id", j.TargetID,
		"attempt", j.Attempts+1,
	)
	log.Info("executing job")

	stage, execErr := q.runPipeline(ctx, j)
	if execErr == nil {
		now := time.Now().UTC()
		completed := job.StatusCompleted
		noError := ""
		if _, err := q.jobs.Update(ctx, j.ID, store.JobPatch{
			Status:      &completed,
			LastError:   &noError,
			NextRunAt:   &now,
			CompletedAt: &now,
		}); err != nil {
			return err
		}
		log.Info("job completed")
		return nil
	}

	log.Error("job execution failed", "stage", stage, "error", execErr)
	return q.recordFailure(ctx, j, stage, execErr)
}

// runPipeline checks preconditions and runs the three idempotent pipeline
// steps, each bounded by the step timeout. It reports the stage that
// failed alongside the error. A panic anywhere in the pipeline is caught
// and converted into a transient error.
func (q *Queue) runPipeline(ctx context.Context, j job.Job) (stage string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	// Preconditions, checked before any remote call.
	stage = stagePrecondition

	info, err := q.artifacts.Stat(ctx, j.ArtifactRef)
	if err != nil {
		if errors.Is(err, job.ErrArtifactMissing) {
			return stage, job.ErrArtifactMissing
		}
		return stage, err
	}

	if info.Size > q.opts.MaxArtifactBytes {
		return stage, fmt.Errorf("%w: %d bytes exceeds ceiling of %d",
			job.ErrArtifactTooLarge, info.Size, q.opts.MaxArtifactBytes)
	}

	if err := auth.Preflight(ctx, q.tokens); err != nil {
		return stage, err
	}

	// Step 1: upsert the remote record. Keyed by the deterministic
	// target ID, so repeating it after a partial attempt is safe.
	stage = stageRecordUpsert
	if err := q.step(ctx, func(stepCtx context.Context) error {
		return q.bridge.Records.UpsertRecord(stepCtx, j.TargetID, remote.StatusUploading)
	}); err != nil {
		return stage, err
	}

	// Step 2: upload the artifact. The same job always uploads to the
	// same remote key, so a repeat overwrites rather than duplicating.
	stage = stageUpload
	if err := q.step(ctx, func(stepCtx context.Context) error {
		r, size, err := q.artifacts.Open(stepCtx, j.ArtifactRef)
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		return q.bridge.Objects.Upload(stepCtx, j.RemoteKey, r, size)
	}); err != nil {
		return stage, err
	}

	// Step 3: obtain a time-limited handle and trigger processing.
	// Fire-and-forget past acceptance; downstream failures are surfaced
	// to users through the record's own status subscription, not here.
	stage = stageTrigger
	if err := q.step(ctx, func(stepCtx context.Context) error {
		url, err := q.bridge.Objects.SignedURL(stepCtx, j.RemoteKey, q.opts.HandleTTL)
		if err != nil {
			return err
		}
		return q.bridge.Trigger.Process(stepCtx, remote.TriggerRequest{
			AudioURL:  url,
			MeetingID: j.TargetID,
			PushToken: j.PushToken,
		})
	}); err != nil {
		return stage, err
	}

	return stage, nil
}

// step bounds one pipeline step with the configured deadline so a hung
// remote call cannot hold the execution slot indefinitely.
func (q *Queue) step(ctx context.Context, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, q.opts.StepTimeout)
	defer cancel()
	return fn(stepCtx)
}

// recordFailure applies retry bookkeeping for a failed execution:
// attempts+1, then terminal failed for permanent or exhausted errors,
// else pending with a backoff delay.
func (q *Queue) recordFailure(ctx context.Context, j job.Job, stage string, execErr error) error {
	attempts := j.Attempts + 1
	lastErr := execErr.Error()
	now := time.Now().UTC()

	terminal := job.IsPermanent(execErr) || q.policy.Exhausted(attempts)

	patch := store.JobPatch{
		Attempts:  &attempts,
		LastError: &lastErr,
	}

	if terminal {
		failed := job.StatusFailed
		patch.Status = &failed
	} else {
		pending := job.StatusPending
		nextRun := now.Add(q.policy.Delay(attempts))
		patch.Status = &pending
		patch.NextRunAt = &nextRun
	}

	if _, err := q.jobs.Update(ctx, j.ID, patch); err != nil {
		return err
	}

	if terminal {
		q.markRecordFailed(ctx, j, stage)
		q.logger.Warn("job failed terminally",
			"job_id", j.ID,
			"attempts", attempts,
			"stage", stage,
			"error", execErr)
	} else {
		q.logger.Info("job scheduled for retry",
			"job_id", j.ID,
			"attempts", attempts,
			"next_run_in", q.policy.Delay(attempts))
	}

	return nil
}

// markRecordFailed moves the remote record onto the failure branch for
// the stage that broke. Best effort only; the job record remains the
// source of truth.
func (q *Queue) markRecordFailed(ctx context.Context, j job.Job, stage string) {
	branch := remote.StatusUploadFailed
	if stage == stageTrigger {
		branch = remote.StatusProcessingFailed
	}

	updateCtx, cancel := context.WithTimeout(ctx, q.opts.StepTimeout)
	defer cancel()

	if err := q.bridge.Records.UpsertRecord(updateCtx, j.TargetID, branch); err != nil {
		q.logger.Warn("failed to move remote record to failure branch",
			"job_id", j.ID,
			"target_id", j.TargetID,
			"status", branch,
			"error", err)
	}
}
