package uplink

import (
	"context"
	"errors"
	"time"

	"github.com/phrazzld/uplink/job"
	"github.com/phrazzld/uplink/store"
)

// ErrLoopAlreadyStarted is returned by StartSchedulerLoop when the loop
// is already running.
var ErrLoopAlreadyStarted = errors.New("scheduler loop already started")

// schedulerLoop holds the lifecycle of the background scheduling loop.
type schedulerLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
	fg     chan struct{}
}

// RunSchedulerOnce attempts to process exactly one due job. The call is
// not reentrant: if another trigger currently holds the execution slot,
// this pass is a no-op — a later trigger will pick the job up. It returns
// an error only on job store I/O failure, in which case job state is
// unchanged and the next pass retries.
func (q *Queue) RunSchedulerOnce(ctx context.Context) error {
	if !q.guard.TryAcquire(1) {
		q.logger.Debug("execution slot busy, skipping scheduler pass")
		return nil
	}
	defer q.guard.Release(1)

	q.gcCompleted(ctx)

	jobs, err := q.jobs.List(ctx)
	if err != nil {
		return err
	}

	// First due job in submission order. Due time decides eligibility,
	// submission order breaks ties, so a later job that is already due
	// can overtake an earlier one still backing off.
	now := time.Now().UTC()
	var next *job.Job
	for i := range jobs {
		if jobs[i].Due(now) {
			next = &jobs[i]
			break
		}
	}
	if next == nil {
		return nil
	}

	running := job.StatusRunning
	claimed, err := q.jobs.Update(ctx, next.ID, store.JobPatch{Status: &running})
	if err != nil {
		return err
	}

	return q.execute(ctx, claimed)
}

// gcCompleted removes completed jobs whose retention window has passed.
// Failed jobs are never collected; they wait for manual retry or removal.
func (q *Queue) gcCompleted(ctx context.Context) {
	jobs, err := q.jobs.List(ctx)
	if err != nil {
		q.logger.Error("failed to list jobs for garbage collection", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-q.opts.Retention)
	for _, j := range jobs {
		if j.Status != job.StatusCompleted || j.CompletedAt.IsZero() || j.CompletedAt.After(cutoff) {
			continue
		}
		if err := q.jobs.Remove(ctx, j.ID); err != nil {
			q.logger.Error("failed to remove expired completed job",
				"job_id", j.ID,
				"error", err)
			continue
		}
		q.logger.Debug("garbage collected completed job",
			"job_id", j.ID,
			"completed_at", j.CompletedAt)
	}
}

// StartSchedulerLoop begins the background scheduling loop: a fixed
// interval tick plus foreground notifications, each attempting one pass.
func (q *Queue) StartSchedulerLoop() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop != nil {
		return ErrLoopAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	loop := &schedulerLoop{
		cancel: cancel,
		done:   make(chan struct{}),
		fg:     make(chan struct{}, 1),
	}
	q.loop = loop

	go q.runLoop(ctx, loop)

	q.logger.Info("scheduler loop started", "tick_interval", q.opts.TickInterval)
	return nil
}

// StopSchedulerLoop stops the loop, cancels tracked in-flight operations,
// and waits for them to finish. Safe to call when the loop is not
// running.
func (q *Queue) StopSchedulerLoop() {
	q.mu.Lock()
	loop := q.loop
	q.loop = nil
	q.mu.Unlock()

	if loop == nil {
		return
	}

	loop.cancel()
	<-loop.done
	q.tracker.cancelAll()

	q.logger.Info("scheduler loop stopped")
}

// NotifyForeground signals that the host application returned to the
// foreground; the loop responds with one scheduler pass. A no-op when the
// loop is not running or a notification is already queued.
func (q *Queue) NotifyForeground() {
	q.mu.Lock()
	loop := q.loop
	q.mu.Unlock()

	if loop == nil {
		return
	}

	select {
	case loop.fg <- struct{}{}:
	default:
	}
}

// runLoop drives scheduler passes until the loop context is cancelled.
func (q *Queue) runLoop(ctx context.Context, loop *schedulerLoop) {
	defer close(loop.done)

	ticker := time.NewTicker(q.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := q.RunSchedulerOnce(ctx); err != nil {
				q.logger.Error("scheduler pass failed", "trigger", "tick", "error", err)
			}

		case <-loop.fg:
			if err := q.RunSchedulerOnce(ctx); err != nil {
				q.logger.Error("scheduler pass failed", "trigger", "foreground", "error", err)
			}
		}
	}
}
