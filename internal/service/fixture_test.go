package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/eventreg/internal/cache"
	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/repo/memory"
	"github.com/geocoder89/eventreg/internal/validation"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type outcomes struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomes) RegistrationOutcome(op, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[op+"/"+outcome]++
}

func (o *outcomes) get(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[key]
}

type fixture struct {
	store    *memory.Store
	dir      *Directory
	coord    *Coordinator
	clock    *clock
	outcomes *outcomes
	cache    *cache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.NewStore(),
		clock:    &clock{now: baseTime},
		outcomes: &outcomes{},
		cache:    cache.New(time.Minute),
	}

	cfg := Config{
		Timeout:  2 * time.Second,
		Now:      f.clock.Now,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder: f.outcomes,
		Cache:    f.cache,
		CacheTTL: time.Minute,
	}

	f.dir = NewDirectory(f.store, cfg)
	f.coord = NewCoordinator(f.store, cfg)
	return f
}

func intPtr(v int) *validation.Int { return validation.IntOf(int64(v)) }

func (f *fixture) createEvent(t *testing.T, title, location string, date time.Time, capacity int) int64 {
	t.Helper()

	id, err := f.dir.CreateEvent(context.Background(), event.CreateEventRequest{
		Title:    title,
		Date:     date.Format(time.RFC3339),
		Location: location,
		Capacity: intPtr(capacity),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) addUser(t *testing.T, name string) int64 {
	t.Helper()

	u, err := f.store.AddUser(context.Background(), name, name+"@example.com")
	require.NoError(t, err)
	return u.ID
}
