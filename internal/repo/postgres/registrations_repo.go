package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/job"
	"github.com/geocoder89/eventreg/internal/domain/registration"
	"github.com/geocoder89/eventreg/internal/domain/user"
	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistrationRepo owns the event_registrations table and implements
// registration.SeatStore.
type RegistrationRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
	jobs *JobsRepo
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom, jobs *JobsRepo) *RegistrationRepo {
	return &RegistrationRepo{
		pool: pool,
		prom: prom,
		jobs: jobs,
	}
}

// WithEvent opens a transaction, reads the event row (taking FOR UPDATE
// when mode is LockExclusive) and runs fn. The transaction commits only when
// fn returns nil. Rollback runs on every other path, including caller
// cancellation, so the row lock never outlives the call.
func (repo *RegistrationRepo) WithEvent(
	ctx context.Context,
	eventID int64,
	mode registration.LockMode,
	fn func(ctx context.Context, seat event.Seat, tx registration.SeatTx) error,
) (err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		// Rollback after Commit is a no-op; a cancelled ctx must not skip it.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	query := `SELECT id, date, capacity FROM events WHERE id = $1`
	op := "registrations.read_event"
	if mode == registration.LockExclusive {
		query += ` FOR UPDATE`
		op = "registrations.lock_event"
	}

	var seat event.Seat
	err = repo.prom.ObserveDB(op, func() error {
		return tx.QueryRow(ctx, query, eventID).Scan(&seat.EventID, &seat.Date, &seat.Capacity)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.ErrNotFound
		}
		return fmt.Errorf("read event %d: %w", eventID, err)
	}

	if err = fn(ctx, seat, &seatTx{tx: tx, repo: repo}); err != nil {
		return err
	}

	err = repo.prom.ObserveDB("registrations.commit", func() error {
		return tx.Commit(ctx)
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

type seatTx struct {
	tx   pgx.Tx
	repo *RegistrationRepo
}

func (s *seatTx) CountRegistrations(ctx context.Context, eventID int64) (int, error) {
	var n int

	err := s.repo.prom.ObserveDB("registrations.count", func() error {
		return s.tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`,
			eventID,
		).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}

	return n, nil
}

func (s *seatTx) IsRegistered(ctx context.Context, eventID, userID int64) (bool, error) {
	var exists bool

	err := s.repo.prom.ObserveDB("registrations.exists", func() error {
		return s.tx.QueryRow(ctx,
			`SELECT EXISTS(
				SELECT 1 FROM event_registrations
				WHERE event_id = $1 AND user_id = $2
			)`,
			eventID, userID,
		).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}

	return exists, nil
}

func (s *seatTx) Connect(ctx context.Context, eventID, userID int64) error {
	err := s.repo.prom.ObserveDB("registrations.connect", func() error {
		_, e := s.tx.Exec(ctx,
			`INSERT INTO event_registrations (event_id, user_id) VALUES ($1, $2)`,
			eventID, userID,
		)
		return e
	})

	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err):
		return registration.ErrAlreadyRegistered
	case IsForeignKeyViolation(err):
		if strings.Contains(constraintName(err), "event_id") {
			return event.ErrNotFound
		}
		return user.ErrNotFound
	default:
		return fmt.Errorf("insert registration: %w", err)
	}
}

func (s *seatTx) Disconnect(ctx context.Context, eventID, userID int64) (bool, error) {
	var removed int64

	err := s.repo.prom.ObserveDB("registrations.disconnect", func() error {
		tag, e := s.tx.Exec(ctx,
			`DELETE FROM event_registrations WHERE event_id = $1 AND user_id = $2`,
			eventID, userID,
		)
		if e != nil {
			return e
		}
		removed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}

	return removed > 0, nil
}

func (s *seatTx) Enqueue(ctx context.Context, req job.CreateRequest) error {
	if _, err := s.repo.jobs.CreateTx(ctx, s.tx, req); err != nil {
		return fmt.Errorf("enqueue %s: %w", req.Type, err)
	}
	return nil
}
