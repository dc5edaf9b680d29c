package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type ProtectedNotifierConfig struct {
	Timeout          time.Duration // per send
	FailureThreshold int           // consecutive failures that open the circuit
	Cooldown         time.Duration // open time before probing
	HalfOpenMaxCalls int
	Logger           *slog.Logger
}

// ProtectedNotifier bounds every send to Timeout and stops calling inner
// while the broker keeps failing. While open, Notify returns ErrCircuitOpen
// and the worker reschedules the job.
type ProtectedNotifier struct {
	inner   Notifier
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
	cb      *breaker
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ProtectedNotifier{
		inner:   inner,
		timeout: cfg.Timeout,
		log:     cfg.Logger,
		now:     time.Now,
		cb: &breaker{
			threshold: cfg.FailureThreshold,
			cooldown:  cfg.Cooldown,
			trials:    cfg.HalfOpenMaxCalls,
			state:     stateClosed,
		},
	}
}

func (n *ProtectedNotifier) Notify(ctx context.Context, in Notification) error {
	if _, ok := n.cb.allow(n.now()); !ok {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := n.inner.Notify(sendCtx, in)

	// the caller giving up says nothing about the broker
	failed := err != nil && ctx.Err() == nil

	from, to := n.cb.record(n.now(), failed)
	if from != to {
		n.log.WarnContext(ctx, "notifier circuit state changed",
			"from", string(from), "to", string(to), "err", err)
	}

	return err
}

// State reports the breaker state for health output.
func (n *ProtectedNotifier) State() string {
	return string(n.cb.current())
}
