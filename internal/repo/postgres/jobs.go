package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/casahub/casahub/internal/domain/job"
	"github.com/casahub/casahub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func (r *JobsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)

	err := r.observe("jobs.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO jobs (id, type, payload, status, attempts, max_attempts, run_at,
				locked_at, locked_by, last_error, idempotency_key, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, j.ID, j.Type, j.Payload, string(j.Status), j.Attempts, j.MaxAttempts, j.RunAt,
			j.LockedAt, j.LockedBy, j.LastError, j.IdempotencyKey, j.CreatedAt, j.UpdatedAt)

		return err
	})

	if err != nil {
		// duplicate idempotency key: the work is already queued, not an error
		if IsUniqueViolation(err) {
			return j, nil
		}
		return job.Job{}, err
	}

	return j, nil
}

// ClaimNext grabs one runnable job using the SKIP LOCKED pattern so
// multiple workers never double-claim.
func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job
	var status string
	var err error

	err = r.observe("jobs.claim_next", func() error {
		return r.pool.QueryRow(ctx, `
			WITH next AS (
				SELECT id
				FROM jobs
				WHERE status = 'pending'
				  AND run_at <= NOW()
				  AND attempts < max_attempts
				ORDER BY run_at ASC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			UPDATE jobs
			SET status = 'processing',
			    locked_at = NOW(),
			    locked_by = $1,
			    updated_at = NOW()
			WHERE id = (SELECT id FROM next)
			RETURNING id, type, payload, status, attempts, max_attempts,
			          run_at, locked_at, locked_by, last_error, idempotency_key,
			          created_at, updated_at
		`, workerID).Scan(
			&j.ID, &j.Type, &j.Payload, &status,
			&j.Attempts, &j.MaxAttempts,
			&j.RunAt, &j.LockedAt, &j.LockedBy,
			&j.LastError, &j.IdempotencyKey, &j.CreatedAt, &j.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound // no job available
		}
		return job.Job{}, err
	}

	j.Status = job.Status(status)
	return j, nil
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("jobs.mark_done", func() error {
		tag, err = r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'done',
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE id = $1
		`, id)

		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

func (r *JobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("jobs.mark_failed", func() error {
		tag, err = r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'failed',
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = $2,
			    updated_at = NOW()
			WHERE id = $1
		`, id, errMsg)
		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// Reschedule is the retry path: bump attempts, push run_at out, back to pending.
func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("jobs.reschedule", func() error {
		tag, err = r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'pending',
			    attempts = attempts + 1,
			    run_at = $2,
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = $3,
			    updated_at = NOW()
			WHERE id = $1
		`, id, runAt, errMsg)

		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}
