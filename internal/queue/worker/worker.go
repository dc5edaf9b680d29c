// Package worker drains the jobs outbox and hands each job to a notifier.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/job"
	"github.com/geocoder89/eventreg/internal/notifications"
	"github.com/geocoder89/eventreg/internal/observability"
	"golang.org/x/sync/errgroup"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type Config struct {
	WorkerID     string
	Concurrency  int
	PollInterval time.Duration
	// JobTimeout bounds one delivery. In-flight jobs keep running for up to
	// this long after shutdown starts.
	JobTimeout time.Duration
	// StaleAfter is how long a job may stay processing before the reaper
	// hands it back to pending.
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerID == "" {
		c.WorkerID = "worker"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * time.Minute
	}
	return c
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	notifier notifications.Notifier
	log      *slog.Logger
	prom     *observability.Prom
	metrics  *observability.JobMetrics

	// backoff and now are replaced in tests.
	backoff func(attempt int) time.Duration
	now     func() time.Time

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, notifier notifications.Notifier, log *slog.Logger, prom *observability.Prom) *Worker {
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:      cfg.withDefaults(),
		repo:     repo,
		notifier: notifier,
		log:      log,
		prom:     prom,
		metrics:  observability.NewJobMetrics(),
		backoff:  ExponentialBackoff,
		now:      time.Now,
	}
}

func (w *Worker) Metrics() *observability.JobMetrics {
	return w.metrics
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

// Run polls until ctx is cancelled. It returns nil on a clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	w.log.InfoContext(ctx, "worker started",
		"worker_id", w.cfg.WorkerID,
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
	)

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			return w.loop(gctx)
		})
	}

	g.Go(func() error {
		return w.reapLoop(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	w.log.Info("worker stopped", "worker_id", w.cfg.WorkerID)
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil {
			w.log.ErrorContext(ctx, "process job failed", "err", err)
		}

		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.StaleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.StaleAfter)
			if err != nil {
				if ctx.Err() == nil {
					w.log.ErrorContext(ctx, "requeue stale jobs failed", "err", err)
				}
				continue
			}
			if n > 0 {
				w.metrics.AddReaped(n)
				w.log.WarnContext(ctx, "requeued stale jobs", "count", n)
			}
		}
	}
}
