package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/utils"
	"github.com/geocoder89/eventreg/internal/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Directory creates events and serves catalogue reads.
type Directory struct {
	store EventStore
	cfg   Config
}

func NewDirectory(store EventStore, cfg Config) *Directory {
	return &Directory{store: store, cfg: cfg.withDefaults()}
}

// CreateEvent validates req and inserts the event. Past dates are accepted.
func (d *Directory) CreateEvent(ctx context.Context, req event.CreateEventRequest) (id int64, err error) {
	ctx, span := tracer.Start(ctx, "directory.create_event")
	defer func() { endSpan(span, err) }()

	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	req.Date = strings.TrimSpace(req.Date)

	if err = validation.Struct(req); err != nil {
		return 0, err
	}

	date, perr := event.ParseDate(req.Date)
	if perr != nil {
		err = validation.ForFields(req, []validation.FieldError{{
			Field:   "date",
			Rule:    "datetime",
			Message: "must be a valid ISO date string",
		}})
		return 0, err
	}

	ctx, cancel := d.cfg.withTimeout(ctx)
	defer cancel()

	e := event.NewFromCreateRequest(req, date, d.cfg.Now())

	id, err = d.store.CreateEvent(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}

	span.SetAttributes(attribute.Int64("event.id", id))
	d.cfg.Logger.InfoContext(ctx, "event created", "event_id", id, "date", date, "capacity", e.Capacity)

	invalidateUpcoming(ctx, d.cfg)
	return id, nil
}

func (d *Directory) GetEvent(ctx context.Context, id int64) (event.WithRegistrations, error) {
	if id <= 0 {
		return event.WithRegistrations{}, validation.New("invalid event id")
	}

	ctx, cancel := d.cfg.withTimeout(ctx)
	defer cancel()

	return d.store.GetEvent(ctx, id)
}

// ListUpcoming returns events dated strictly after now. A cached listing is
// filtered against the current time again before it is returned.
func (d *Directory) ListUpcoming(ctx context.Context) (items []event.WithRegistrations, err error) {
	ctx, span := tracer.Start(ctx, "directory.list_upcoming")
	defer func() { endSpan(span, err) }()

	ctx, cancel := d.cfg.withTimeout(ctx)
	defer cancel()

	now := d.cfg.Now()

	// read before the store so a change committed meanwhile moves it on
	gen, genOK := d.upcomingGeneration(ctx)

	if genOK {
		if cached, ok := d.cachedUpcoming(ctx, span, gen); ok {
			return event.Upcoming(cached, now), nil
		}
	}

	items, err = d.store.ListUpcoming(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}

	if genOK {
		d.storeUpcoming(ctx, gen, items)
	}
	return items, nil
}

func (d *Directory) Stats(ctx context.Context, id int64) (event.Stats, error) {
	if id <= 0 {
		return event.Stats{}, validation.New("invalid event id")
	}

	ctx, cancel := d.cfg.withTimeout(ctx)
	defer cancel()

	e, total, err := d.store.GetEventWithCount(ctx, id)
	if err != nil {
		return event.Stats{}, err
	}

	return event.NewStats(e, total), nil
}

// upcomingEntry is the cached listing together with the generation it was
// read under.
type upcomingEntry struct {
	Generation string                    `json:"generation"`
	Items      []event.WithRegistrations `json:"items"`
}

// generationTTL outlives any listing by far; an expired token reads as "".
const generationTTL = 24 * time.Hour

func (d *Directory) upcomingGeneration(ctx context.Context) (string, bool) {
	if d.cfg.Cache == nil {
		return "", false
	}

	b, _, err := d.cfg.Cache.Get(ctx, utils.UpcomingEventsGenerationKey)
	if err != nil {
		d.cfg.Logger.WarnContext(ctx, "upcoming cache generation read failed", "err", err)
		return "", false
	}
	return string(b), true
}

func (d *Directory) cachedUpcoming(ctx context.Context, span trace.Span, gen string) ([]event.WithRegistrations, bool) {
	b, ok, err := d.cfg.Cache.Get(ctx, utils.UpcomingEventsCacheKey)
	if err != nil {
		d.cfg.Logger.WarnContext(ctx, "upcoming cache read failed", "err", err)
		return nil, false
	}
	if !ok {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false
	}

	var entry upcomingEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		d.cfg.Logger.WarnContext(ctx, "upcoming cache entry unreadable", "err", err)
		return nil, false
	}

	hit := entry.Generation == gen
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if !hit {
		return nil, false
	}
	return entry.Items, true
}

func (d *Directory) storeUpcoming(ctx context.Context, gen string, items []event.WithRegistrations) {
	b, err := json.Marshal(upcomingEntry{Generation: gen, Items: items})
	if err != nil {
		return
	}

	if err := d.cfg.Cache.Set(ctx, utils.UpcomingEventsCacheKey, b, d.cfg.CacheTTL); err != nil {
		d.cfg.Logger.WarnContext(ctx, "upcoming cache write failed", "err", err)
	}
}

// invalidateUpcoming runs after every committed change. Replacing the
// generation also voids listings still being read from the store.
func invalidateUpcoming(ctx context.Context, cfg Config) {
	if cfg.Cache == nil {
		return
	}

	if err := cfg.Cache.Set(ctx, utils.UpcomingEventsGenerationKey, []byte(uuid.NewString()), generationTTL); err != nil {
		cfg.Logger.WarnContext(ctx, "upcoming cache generation bump failed", "err", err)
	}
	if err := cfg.Cache.Delete(ctx, utils.UpcomingEventsCacheKey); err != nil {
		cfg.Logger.WarnContext(ctx, "upcoming cache invalidation failed", "err", err)
	}
}
