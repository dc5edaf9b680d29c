package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/eventreg/internal/actorctx"
	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/registration"
	"github.com/geocoder89/eventreg/internal/domain/user"
	"github.com/geocoder89/eventreg/internal/jobs"
	"github.com/geocoder89/eventreg/internal/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	opRegister = "register"
	opCancel   = "cancel"
)

// Coordinator is the only writer of event membership. Each call runs in one
// store transaction; the outbox job commits with the membership change.
type Coordinator struct {
	seats registration.SeatStore
	cfg   Config
}

func NewCoordinator(seats registration.SeatStore, cfg Config) *Coordinator {
	return &Coordinator{seats: seats, cfg: cfg.withDefaults()}
}

// Register admits the user to the event if the event is in the future, has
// room, and the user is not already registered. Checks run in that order
// while the event row is locked, so concurrent registers for one event are
// serialized and capacity can never be exceeded.
func (c *Coordinator) Register(ctx context.Context, req registration.Request) (err error) {
	pair, err := req.Pair()
	if err != nil {
		c.record(ctx, opRegister, registration.Pair{}, err)
		return err
	}

	ctx, span := tracer.Start(ctx, "registration.register", trace.WithAttributes(
		attribute.Int64("event.id", pair.EventID),
		attribute.Int64("user.id", pair.UserID),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := c.cfg.withTimeout(ctx)
	defer cancel()

	err = c.seats.WithEvent(ctx, pair.EventID, registration.LockExclusive,
		func(ctx context.Context, seat event.Seat, tx registration.SeatTx) error {
			now := c.cfg.Now()

			if !seat.Date.After(now) {
				return registration.ErrPastEvent
			}

			count, err := tx.CountRegistrations(ctx, seat.EventID)
			if err != nil {
				return err
			}
			if count >= seat.Capacity {
				return registration.ErrEventFull
			}

			exists, err := tx.IsRegistered(ctx, seat.EventID, pair.UserID)
			if err != nil {
				return err
			}
			if exists {
				return registration.ErrAlreadyRegistered
			}

			if err := tx.Connect(ctx, seat.EventID, pair.UserID); err != nil {
				return err
			}

			return c.enqueue(ctx, tx, jobs.JobRegistrationConfirmed, pair)
		})

	c.record(ctx, opRegister, pair, err)
	if err != nil {
		return err
	}

	invalidateUpcoming(ctx, c.cfg)
	return nil
}

// Cancel removes the user from the event. Zero rows removed means the user
// was not registered, which also covers losing a race with another cancel.
func (c *Coordinator) Cancel(ctx context.Context, req registration.Request) (err error) {
	pair, err := req.Pair()
	if err != nil {
		c.record(ctx, opCancel, registration.Pair{}, err)
		return err
	}

	ctx, span := tracer.Start(ctx, "registration.cancel", trace.WithAttributes(
		attribute.Int64("event.id", pair.EventID),
		attribute.Int64("user.id", pair.UserID),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := c.cfg.withTimeout(ctx)
	defer cancel()

	err = c.seats.WithEvent(ctx, pair.EventID, registration.LockNone,
		func(ctx context.Context, seat event.Seat, tx registration.SeatTx) error {
			removed, err := tx.Disconnect(ctx, seat.EventID, pair.UserID)
			if err != nil {
				return err
			}
			if !removed {
				return registration.ErrNotRegistered
			}

			return c.enqueue(ctx, tx, jobs.JobRegistrationCancelled, pair)
		})

	c.record(ctx, opCancel, pair, err)
	if err != nil {
		return err
	}

	invalidateUpcoming(ctx, c.cfg)
	return nil
}

func (c *Coordinator) enqueue(ctx context.Context, tx registration.SeatTx, t jobs.JobType, pair registration.Pair) error {
	requestID, _ := actorctx.RequestIDFrom(ctx)

	req, err := jobs.NewRegistrationJob(t, uuid.NewString(), pair.EventID, pair.UserID, c.cfg.Now(), requestID)
	if err != nil {
		return fmt.Errorf("build %s job: %w", t, err)
	}

	return tx.Enqueue(ctx, req)
}

func (c *Coordinator) record(ctx context.Context, op string, pair registration.Pair, err error) {
	outcome := Outcome(op, err)

	if c.cfg.Recorder != nil {
		c.cfg.Recorder.RegistrationOutcome(op, outcome)
	}

	attrs := []any{"op", op, "outcome", outcome, "event_id", pair.EventID, "user_id", pair.UserID}
	if outcome == registration.OutcomeError {
		c.cfg.Logger.ErrorContext(ctx, "registration failed", append(attrs, "err", err)...)
		return
	}
	c.cfg.Logger.InfoContext(ctx, "registration decision", attrs...)
}

// Outcome names the result of a coordinator call for metrics and logs.
func Outcome(op string, err error) string {
	switch {
	case err == nil && op == opCancel:
		return registration.OutcomeCancelled
	case err == nil:
		return registration.OutcomeRegistered
	case errors.Is(err, registration.ErrEventFull):
		return registration.OutcomeEventFull
	case errors.Is(err, registration.ErrAlreadyRegistered):
		return registration.OutcomeDuplicate
	case errors.Is(err, registration.ErrPastEvent):
		return registration.OutcomePastEvent
	case errors.Is(err, registration.ErrNotRegistered):
		return registration.OutcomeNotRegistered
	case errors.Is(err, event.ErrNotFound):
		return registration.OutcomeEventNotFound
	case errors.Is(err, user.ErrNotFound):
		return registration.OutcomeUserNotFound
	case validation.IsValidationError(err):
		return registration.OutcomeInvalid
	default:
		return registration.OutcomeError
	}
}
