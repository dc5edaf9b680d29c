package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/job"
	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts,
	run_at, locked_at, locked_by, last_error, idempotency_key,
	created_at, updated_at`

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Create inserts the job. A job whose idempotency key is already taken is
// not inserted and job.ErrDuplicateKey is returned.
func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	return r.insert(ctx, r.pool, "jobs.create", req)
}

// CreateTx is Create inside tx, so the job commits or rolls back with the
// caller's writes.
func (r *JobsRepo) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	return r.insert(ctx, tx, "jobs.create_tx", req)
}

func (r *JobsRepo) insert(ctx context.Context, q querier, op string, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)

	err := r.prom.ObserveDB(op, func() error {
		var id string
		return q.QueryRow(ctx,
			`INSERT INTO jobs (`+jobColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (idempotency_key) DO NOTHING
			 RETURNING id`,
			j.ID, j.Type, []byte(j.Payload), string(j.Status), j.Attempts, j.MaxAttempts,
			j.RunAt, j.LockedAt, j.LockedBy, j.LastError, j.IdempotencyKey,
			j.CreatedAt, j.UpdatedAt,
		).Scan(&id)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return job.Job{}, job.ErrDuplicateKey
	}
	if err != nil {
		return job.Job{}, err
	}

	return j, nil
}

func scanJob(row pgx.Row) (job.Job, error) {
	var j job.Job
	var status string
	var payload []byte

	err := row.Scan(
		&j.ID, &j.Type, &payload, &status, &j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedAt, &j.LockedBy, &j.LastError, &j.IdempotencyKey,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return job.Job{}, err
	}

	j.Payload = payload
	j.Status = job.Status(status)
	return j, nil
}

// ClaimNext marks the oldest runnable job as processing for workerID.
// It returns job.ErrJobNotFound when nothing is ready.
func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job

	err := r.prom.ObserveDB("jobs.claim_next", func() error {
		var e error
		j, e = scanJob(r.pool.QueryRow(ctx, `
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
			RETURNING `+jobColumns,
			workerID,
		))
		return e
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound
		}
		return job.Job{}, err
	}

	return j, nil
}

func (r *JobsRepo) GetByID(ctx context.Context, id string) (job.Job, error) {
	var j job.Job

	err := r.prom.ObserveDB("jobs.get_by_id", func() error {
		var e error
		j, e = scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
		return e
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound
		}
		return job.Job{}, err
	}

	return j, nil
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	return r.update(ctx, "jobs.mark_done", `
		UPDATE jobs
		SET status = 'done',
		    attempts = attempts + 1,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1`, id)
}

// MarkFailed dead-letters the job. It stays failed until retried by an operator.
func (r *JobsRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return r.update(ctx, "jobs.mark_failed", `
		UPDATE jobs
		SET status = 'failed',
		    attempts = attempts + 1,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1`, id, errMsg)
}

func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return r.update(ctx, "jobs.reschedule", `
		UPDATE jobs
		SET status = 'pending',
		    attempts = attempts + 1,
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1`, id, runAt, errMsg)
}

func (r *JobsRepo) update(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag

	err := r.prom.ObserveDB(op, func() error {
		var e error
		tag, e = r.pool.Exec(ctx, sql, args...)
		return e
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// RequeueStaleProcessing releases jobs locked longer than lockTTL. A worker
// that died mid-job leaves its rows in processing until this runs. The lost
// run counts as an attempt, so a job that keeps killing its worker ends up
// failed instead of looping.
func (r *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}

	var rows int64

	err := r.prom.ObserveDB("jobs.requeue_stale", func() error {
		tag, e := r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
			    attempts = attempts + 1,
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = $2,
			    updated_at = NOW()
			WHERE status = 'processing'
			  AND locked_at IS NOT NULL
			  AND locked_at < NOW() - ($1 * INTERVAL '1 second')`, secs, job.ErrLockExpired.Error())
		if e != nil {
			return e
		}
		rows = tag.RowsAffected()
		return nil
	})

	return rows, err
}

// RetryManyFailed moves up to limit dead-lettered jobs back to pending with
// a fresh attempt budget.
func (r *JobsRepo) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var rows int64

	err := r.prom.ObserveDB("jobs.retry_many_failed", func() error {
		tag, e := r.pool.Exec(ctx, `
			WITH picked AS (
				SELECT id
				FROM jobs
				WHERE status = 'failed'
				ORDER BY updated_at DESC
				LIMIT $1
			)
			UPDATE jobs
			SET status = 'pending',
			    attempts = 0,
			    run_at = NOW(),
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE id IN (SELECT id FROM picked)`, limit)
		if e != nil {
			return e
		}
		rows = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}

	return rows, nil
}

func (r *JobsRepo) CountByStatus(ctx context.Context) (map[job.Status]int64, error) {
	var rows pgx.Rows

	err := r.prom.ObserveDB("jobs.count_by_status", func() error {
		var e error
		rows, e = r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := map[job.Status]int64{
		job.StatusPending:    0,
		job.StatusProcessing: 0,
		job.StatusDone:       0,
		job.StatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		out[job.Status(status)] = n
	}

	return out, rows.Err()
}
