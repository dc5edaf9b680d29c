package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/geocoder89/eventreg/internal/cache"
	"github.com/geocoder89/eventreg/internal/config"
	"github.com/geocoder89/eventreg/internal/db"
	httpx "github.com/geocoder89/eventreg/internal/http"
	"github.com/geocoder89/eventreg/internal/notifications"
	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/geocoder89/eventreg/internal/queue/worker"
	"github.com/geocoder89/eventreg/internal/repo/memory"
	"github.com/geocoder89/eventreg/internal/service"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		Role:        "api",
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	svcCfg := service.Config{
		Timeout:  cfg.RequestTimeout,
		Logger:   log,
		CacheTTL: cfg.CacheTTL,
	}

	if cfg.RedisAddr != "" {
		rdb := cache.DialRedis(cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, using in-process cache", "addr", cfg.RedisAddr, "err", err)
			svcCfg.Cache = cache.New(cfg.CacheTTL)
		} else {
			svcCfg.Cache = cache.NewRedis(rdb, "eventreg:", cfg.CacheTTL)
		}
	} else {
		svcCfg.Cache = cache.New(cfg.CacheTTL)
	}

	var deps httpx.Dependencies

	switch cfg.Store {
	case config.StoreMemory:
		store := memory.NewStore()
		if cfg.SeedDemo {
			if err := seedMemory(ctx, store); err != nil {
				return err
			}
		}
		deps = httpx.MemoryDependencies(store, prom, svcCfg)
		log.Warn("running on the in-memory store; data is lost on exit")

		// no separate worker can reach this outbox, so drain it here
		w := worker.New(worker.Config{
			WorkerID:     "api-inproc",
			Concurrency:  1,
			PollInterval: cfg.WorkerPollInterval,
			StaleAfter:   cfg.WorkerStaleAfter,
		}, store, notifications.NewLogNotifier(log), log, prom)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("in-process worker stopped", "err", err)
			}
		}()

	default:
		if cfg.MigrateOnStart {
			if err := db.MigrateUp(cfg.DBURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}

		pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()

		if cfg.SeedDemo {
			if err := db.SeedDemo(ctx, pool); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}

		deps = httpx.PostgresDependencies(pool, prom, svcCfg)
	}
	deps.Gatherer = reg

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpx.NewRouter(log, cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

func seedMemory(ctx context.Context, store *memory.Store) error {
	for _, u := range db.DemoUsers() {
		if _, err := store.AddUser(ctx, u.Name, u.Email); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	for _, e := range db.DemoEvents() {
		e.CreatedAt = time.Now().UTC()
		if _, err := store.CreateEvent(ctx, e); err != nil {
			return fmt.Errorf("seed event %s: %w", e.Title, err)
		}
	}
	return nil
}
