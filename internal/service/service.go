// Package service holds the two components the HTTP layer drives: the event
// Directory (catalogue reads and creation) and the registration Coordinator
// (the only writer of event membership).
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/eventreg/internal/cache"
	"github.com/geocoder89/eventreg/internal/domain/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/geocoder89/eventreg/internal/service")

// EventStore is the catalogue side of a store.
type EventStore interface {
	CreateEvent(ctx context.Context, e event.Event) (int64, error)
	GetEvent(ctx context.Context, id int64) (event.WithRegistrations, error)
	ListUpcoming(ctx context.Context, now time.Time) ([]event.WithRegistrations, error)
	GetEventWithCount(ctx context.Context, id int64) (event.Event, int, error)
}

// OutcomeRecorder receives one call per coordinator decision.
type OutcomeRecorder interface {
	RegistrationOutcome(op, outcome string)
}

type Config struct {
	// Timeout bounds each operation, including time spent waiting for a row lock.
	Timeout  time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	Recorder OutcomeRecorder

	// Cache, when set, holds the upcoming-events listing for CacheTTL.
	Cache    cache.Store
	CacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 2 * time.Second
	}
	return c
}

func (c Config) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Timeout)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
