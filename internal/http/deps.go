package http

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/geocoder89/eventreg/internal/repo/memory"
	"github.com/geocoder89/eventreg/internal/repo/postgres"
	"github.com/geocoder89/eventreg/internal/service"
)

// PostgresDependencies wires both components onto one pool.
func PostgresDependencies(pool *pgxpool.Pool, prom *observability.Prom, cfg service.Config) Dependencies {
	events := postgres.NewEventsRepo(pool, prom)
	jobs := postgres.NewJobsRepo(pool, prom)
	registrations := postgres.NewRegistrationsRepo(pool, prom, jobs)

	if cfg.Recorder == nil && prom != nil {
		cfg.Recorder = prom
	}

	return Dependencies{
		Directory:   service.NewDirectory(events, cfg),
		Coordinator: service.NewCoordinator(registrations, cfg),
		Ping:        events.Ping,
		Prom:        prom,
	}
}

// MemoryDependencies wires both components onto an in-process store.
func MemoryDependencies(store *memory.Store, prom *observability.Prom, cfg service.Config) Dependencies {
	if cfg.Recorder == nil && prom != nil {
		cfg.Recorder = prom
	}

	return Dependencies{
		Directory:   service.NewDirectory(store, cfg),
		Coordinator: service.NewCoordinator(store, cfg),
		Ping:        store.Ping,
		Prom:        prom,
	}
}
