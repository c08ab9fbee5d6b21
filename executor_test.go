package uplink

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/uplink/auth"
	"github.com/phrazzld/uplink/backoff"
	"github.com/phrazzld/uplink/job"
	"github.com/phrazzld/uplink/remote"
)

// testPolicy keeps retry arithmetic easy to assert on: 1s, 2s, 4s...
func testPolicy() backoff.Policy {
	return backoff.Policy{
		Base:        time.Second,
		Cap:         time.Minute,
		MaxAttempts: 5,
	}
}

func expiredToken(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestPipelineSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{policy: testPolicy()})

	j := appendDueJob(t, env, writeArtifact(t, "pcm-bytes"))
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	done, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, done.Status)
	assert.Empty(t, done.LastError)
	assert.Zero(t, done.Attempts)
	assert.False(t, done.CompletedAt.IsZero())

	// Step 1 moved the record forward.
	status, ok := env.records.RecordStatusOf(j.TargetID)
	require.True(t, ok)
	assert.Equal(t, remote.StatusUploading, status)

	// Step 2 put the artifact bytes at the deterministic key.
	data, ok := env.objects.Object(j.RemoteKey)
	require.True(t, ok)
	assert.Equal(t, []byte("pcm-bytes"), data)

	// Step 3 handed the signed handle and metadata to processing.
	reqs := env.trigger.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].AudioURL, j.RemoteKey)
	assert.Equal(t, j.TargetID, reqs[0].MeetingID)
	assert.Equal(t, "push-1", reqs[0].PushToken)
}

func TestPipelineIdempotentRepeat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{policy: testPolicy()})

	// First attempt gets through the upload, then breaks at the trigger.
	accept := env.trigger.ProcessFn
	broken := true
	env.trigger.ProcessFn = func(ctx context.Context, req remote.TriggerRequest) error {
		if broken {
			return fmt.Errorf("%w: connection reset", job.ErrNetworkUnavailable)
		}
		return accept(ctx, req)
	}

	j := appendDueJob(t, env, writeArtifact(t, "pcm-bytes"))
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	partial, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusPending, partial.Status)
	require.Equal(t, 1, partial.Attempts)
	require.Equal(t, 1, env.objects.UploadCount(j.RemoteKey))

	// Second attempt repeats steps 1 and 2 before succeeding at step 3.
	broken = false
	makeDue(t, env, j.ID)
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	done, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, done.Status)

	// The repeat landed on the same key: still one object, no duplicate.
	assert.Equal(t, 1, env.objects.ObjectCount())
	assert.Equal(t, 2, env.objects.UploadCount(j.RemoteKey))
	assert.Len(t, env.trigger.Requests(), 1)
}

func TestPipelineArtifactMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{policy: testPolicy()})

	j := appendDueJob(t, env, filepath.Join(t.TempDir(), "deleted.m4a"))
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	failed, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, failed.Status)
	assert.Equal(t, "artifact missing", failed.LastError)
	assert.Equal(t, 1, failed.Attempts)

	// No remote call happened past the precondition.
	assert.Zero(t, env.objects.ObjectCount())
	assert.Empty(t, env.trigger.Requests())

	// The record moved to the upload failure branch.
	status, ok := env.records.RecordStatusOf(j.TargetID)
	require.True(t, ok)
	assert.Equal(t, remote.StatusUploadFailed, status)
}

func TestPipelineArtifactTooLarge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{
		policy: testPolicy(),
		opts:   Options{MaxArtifactBytes: 4},
	})

	j := appendDueJob(t, env, writeArtifact(t, "more than four bytes"))
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	failed, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, failed.Status)
	assert.Contains(t, failed.LastError, "artifact too large")
	assert.Equal(t, 1, failed.Attempts)
	assert.Zero(t, env.objects.ObjectCount())
}

func TestPipelineAuthExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{
		policy: testPolicy(),
		tokens: auth.NewStaticTokenSource(expiredToken(t)),
	})

	j := appendDueJob(t, env, writeArtifact(t, "pcm-bytes"))
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	failed, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, failed.Status)
	assert.Contains(t, failed.LastError, "authentication expired")
	assert.Equal(t, 1, failed.Attempts)

	// Expiry is caught before any remote call.
	assert.Zero(t, env.objects.ObjectCount())
	assert.Empty(t, env.trigger.Requests())
}

func TestPipelineTransientFailureBackoff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{policy: testPolicy()})

	env.trigger.ProcessFn = func(ctx context.Context, req remote.TriggerRequest) error {
		return job.ErrNetworkUnavailable
	}

	j := appendDueJob(t, env, writeArtifact(t, "pcm-bytes"))
	before := time.Now().UTC()
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	got, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "network unavailable", got.LastError)

	// Delay after the first failure is base<<1 = 2s.
	assert.WithinDuration(t, before.Add(2*time.Second), got.NextRunAt, time.Second)

	// Not yet terminal, so the record stays off the failure branch.
	status, ok := env.records.RecordStatusOf(j.TargetID)
	require.True(t, ok)
	assert.Equal(t, remote.StatusUploading, status)
}

func TestPipelineExhaustion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{policy: testPolicy()})

	env.trigger.ProcessFn = func(ctx context.Context, req remote.TriggerRequest) error {
		return job.ErrNetworkUnavailable
	}

	j := appendDueJob(t, env, writeArtifact(t, "pcm-bytes"))

	for attempt := 1; attempt <= 5; attempt++ {
		makeDue(t, env, j.ID)
		require.NoError(t, env.queue.RunSchedulerOnce(ctx))

		got, err := env.queue.GetJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt, got.Attempts)

		if attempt < 5 {
			assert.Equal(t, job.StatusPending, got.Status)
		}
	}

	exhausted, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, exhausted.Status)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, "network unavailable", exhausted.LastError)

	// Manual retry starts the cycle over.
	reset, err := env.queue.Retry(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, reset.Status)
	assert.Zero(t, reset.Attempts)
}

func TestPipelineFailureAtTriggerMarksProcessingFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{
		policy: backoff.Policy{Base: time.Second, Cap: time.Minute, MaxAttempts: 1},
	})

	env.trigger.ProcessFn = func(ctx context.Context, req remote.TriggerRequest) error {
		return job.ErrRemoteServer
	}

	j := appendDueJob(t, env, writeArtifact(t, "pcm-bytes"))
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	failed, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, failed.Status)

	status, ok := env.records.RecordStatusOf(j.TargetID)
	require.True(t, ok)
	assert.Equal(t, remote.StatusProcessingFailed, status)
}

func TestPipelinePanicIsTransient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{policy: testPolicy()})

	env.trigger.ProcessFn = func(ctx context.Context, req remote.TriggerRequest) error {
		panic("trigger wiring bug")
	}

	j := appendDueJob(t, env, writeArtifact(t, "pcm-bytes"))
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	got, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError, "pipeline panic")
}

func TestPipelineRecordUpsertFailureRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, envConfig{policy: testPolicy()})

	env.records.UpsertFn = func(ctx context.Context, targetID string, status remote.RecordStatus) error {
		return job.ErrRemoteServer
	}

	j := appendDueJob(t, env, writeArtifact(t, "pcm-bytes"))
	require.NoError(t, env.queue.RunSchedulerOnce(ctx))

	got, err := env.queue.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "remote server error", got.LastError)

	// Step 1 failed, so nothing was uploaded.
	assert.Zero(t, env.objects.ObjectCount())
}
