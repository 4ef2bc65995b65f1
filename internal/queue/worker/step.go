package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/casahub/casahub/internal/domain/job"
	"github.com/casahub/casahub/internal/jobs"
)

// permanent marks errors no retry can fix (bad payload, unknown type).
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// ProcessOne claims and runs a single job. The bool reports whether a job
// was available; an error means the claim itself failed, job failures are
// recorded on the job row instead.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := time.Now()

	err = w.execute(ctx, j)

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.observeJob(j.Type, result, time.Since(start))
		return true, nil
	}

	err = w.repo.MarkDone(ctx, j.ID)

	if err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		w.observeJob(j.Type, "failed", time.Since(start))
		return true, err
	}

	w.observeJob(j.Type, "done", time.Since(start))
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	switch j.Type {
	case jobs.TypeConfirmationEmail:
		p, err := jobs.DecodeConfirmationEmail(j.Payload)

		if err != nil {
			return permanent{err}
		}

		return w.notifier.SendConfirmationEmail(ctx, p.Email, p.Name, p.Link)

	case jobs.TypePasswordResetEmail:
		p, err := jobs.DecodePasswordResetEmail(j.Payload)

		if err != nil {
			return permanent{err}
		}

		return w.notifier.SendPasswordResetEmail(ctx, p.Email, p.Name, p.Link)

	case jobs.TypeSessionsCleanup:
		removed, err := w.cleaner.DeleteExpired(ctx)

		if err != nil {
			return err
		}

		if removed > 0 {
			w.log.Info("expired sessions removed", "count", removed)
		}

		return nil

	default:
		return permanent{fmt.Errorf("unknown job type %q", j.Type)}
	}
}

// handleFailure decides between retry and giving up, and reports which.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, jobErr error) string {
	var perm permanent

	exhausted := j.Attempts+1 >= j.MaxAttempts

	if errors.As(jobErr, &perm) || exhausted {
		w.log.Error("job failed", "job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts+1, "error", jobErr)

		err := w.repo.MarkFailed(ctx, j.ID, jobErr.Error())

		if err != nil {
			w.log.Error("mark failed", "job_id", j.ID, "error", err)
		}

		return "failed"
	}

	delay := ExponentialBackoff(j.Attempts)

	w.log.Warn("job retry scheduled", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1, "delay", delay, "error", jobErr)

	err := w.repo.Reschedule(ctx, j.ID, time.Now().UTC().Add(delay), jobErr.Error())

	if err != nil {
		w.log.Error("reschedule", "job_id", j.ID, "error", err)
	}

	return "retry"
}

func (w *Worker) observeJob(jobType, result string, elapsed time.Duration) {
	if w.prom == nil {
		return
	}

	w.prom.JobResults.WithLabelValues(jobType, result).Inc()
	w.prom.JobDuration.WithLabelValues(jobType, result).Observe(elapsed.Seconds())
}
