package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/geocoder89/eventreg/internal/config"
	"github.com/geocoder89/eventreg/internal/db"
	"github.com/geocoder89/eventreg/internal/notifications"
	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/geocoder89/eventreg/internal/queue/worker"
	"github.com/geocoder89/eventreg/internal/repo/postgres"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if cfg.Store == config.StoreMemory {
		return errors.New("the worker needs STORE=postgres; the in-memory outbox lives inside the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		Role:        "worker",
		Environment: cfg.Env,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		c, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(c)
	}()

	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	var inner notifications.Notifier = notifications.NewLogNotifier(log)
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notifications.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("amqp connect: %w", err)
		}
		defer amqpNotifier.Close()
		inner = amqpNotifier
		log.Info("publishing notifications", "exchange", cfg.AMQPExchange)
	}

	notifier := notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		Timeout:          3 * time.Second,
		FailureThreshold: 5,
		Cooldown:         15 * time.Second,
		Logger:           log,
	})

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	eventsRepo := postgres.NewEventsRepo(pool, prom)

	w := worker.New(worker.Config{
		WorkerID:     workerID,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		JobTimeout:   cfg.WorkerShutdownGrace,
		StaleAfter:   cfg.WorkerStaleAfter,
	}, jobsRepo, notifier, log, prom)

	health := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           w.HealthHandler(eventsRepo, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker health server starting", "port", cfg.WorkerHealthPort)
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", "err", err)
		}
	}()

	runErr := w.Run(ctx)

	shutdownCtx, cancel := config.WithTimeout(cfg.WorkerShutdownGrace)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		log.Error("health server shutdown failed", "err", err)
	}

	log.Info("worker shutdown complete")
	return runErr
}
