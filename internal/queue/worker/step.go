package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/eventreg/internal/actorctx"
	"github.com/geocoder89/eventreg/internal/domain/job"
	"github.com/geocoder89/eventreg/internal/jobs"
	"github.com/geocoder89/eventreg/internal/notifications"
)

const (
	resultDone  = "done"
	resultRetry = "retry"
	resultFail  = "failed"
)

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed. Delivery failures are recorded on the job, not returned.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) || ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("claim job: %w", err)
	}

	w.metrics.IncClaimed()
	defer w.prom.TrackJob()()

	// a claimed job is finished even if shutdown starts meanwhile
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	start := w.now()
	execErr := w.execute(jobCtx, j)
	elapsed := w.now().Sub(start)
	w.metrics.ObserveDuration(elapsed)

	if execErr != nil {
		result := w.handleFailure(jobCtx, j, execErr)
		w.observe(j, result, elapsed)
		return true, nil
	}

	if err := w.repo.MarkDone(jobCtx, j.ID); err != nil {
		return true, fmt.Errorf("mark job %s done: %w", j.ID, err)
	}

	w.metrics.IncDone()
	w.observe(j, resultDone, elapsed)
	w.log.DebugContext(jobCtx, "job done", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	p, err := jobs.DecodePayload(j)
	if err != nil {
		return err
	}

	if p.RequestID != "" {
		ctx = actorctx.WithRequestID(ctx, p.RequestID)
	}

	n := notifications.Notification{
		Kind:       kindFor(jobs.JobType(j.Type)),
		EventID:    p.EventID,
		UserID:     p.UserID,
		OccurredAt: p.OccurredAt,
		JobID:      j.ID,
		RequestID:  p.RequestID,
	}

	return w.notifier.Notify(ctx, n)
}

func kindFor(t jobs.JobType) notifications.Kind {
	if t == jobs.JobRegistrationCancelled {
		return notifications.KindRegistrationCancelled
	}
	return notifications.KindRegistrationConfirmed
}

// handleFailure reschedules j with backoff, or dead-letters it when the
// payload can never succeed or the attempt budget is spent.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	msg := cause.Error()

	permanent := errors.Is(cause, jobs.ErrInvalidJobType) ||
		errors.Is(cause, jobs.ErrInvalidJobPayload) ||
		errors.Is(cause, jobs.ErrPayloadTypeMismatch)

	if permanent || j.Exhausted() {
		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			w.log.ErrorContext(ctx, "mark job failed", "job_id", j.ID, "err", err)
		}
		w.metrics.IncDeadLettered()
		w.log.ErrorContext(ctx, "job dead-lettered",
			"job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1, "permanent", permanent, "err", cause)
		return resultFail
	}

	runAt := w.now().Add(w.backoff(j.Attempts))
	if err := w.repo.Reschedule(ctx, j.ID, runAt, msg); err != nil {
		w.log.ErrorContext(ctx, "reschedule job failed", "job_id", j.ID, "err", err)
	}
	w.metrics.IncRetried()
	w.log.WarnContext(ctx, "job will retry",
		"job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1, "run_at", runAt, "err", cause)
	return resultRetry
}

func (w *Worker) observe(j job.Job, result string, d time.Duration) {
	if w.prom != nil {
		w.prom.ObserveJob(j.Type, result, d)
	}
}
