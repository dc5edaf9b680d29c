package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/user"
	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *EventsRepo) CreateEvent(ctx context.Context, e event.Event) (int64, error) {
	var id int64

	err := r.prom.ObserveDB("events.create", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO events (title, date, location, capacity)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			e.Title, e.Date, e.Location, e.Capacity,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	return id, nil
}

func (r *EventsRepo) GetEvent(ctx context.Context, id int64) (event.WithRegistrations, error) {
	var e event.Event

	err := r.prom.ObserveDB("events.get", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, title, date, location, capacity, created_at
			 FROM events
			 WHERE id = $1`,
			id,
		).Scan(&e.ID, &e.Title, &e.Date, &e.Location, &e.Capacity, &e.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.WithRegistrations{}, event.ErrNotFound
		}
		return event.WithRegistrations{}, fmt.Errorf("get event %d: %w", id, err)
	}

	regs, err := r.registrants(ctx, []int64{id})
	if err != nil {
		return event.WithRegistrations{}, err
	}

	return withRegistrations(e, regs[id]), nil
}

// ListUpcoming returns events strictly after now ordered by date, then
// location compared byte-wise, then id.
func (r *EventsRepo) ListUpcoming(ctx context.Context, now time.Time) ([]event.WithRegistrations, error) {
	var rows pgx.Rows

	err := r.prom.ObserveDB("events.list_upcoming", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx,
			`SELECT id, title, date, location, capacity, created_at
			 FROM events
			 WHERE date > $1
			 ORDER BY date ASC, location COLLATE "C" ASC, id ASC`,
			now,
		)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (event.Event, error) {
		var e event.Event
		err := row.Scan(&e.ID, &e.Title, &e.Date, &e.Location, &e.Capacity, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan upcoming events: %w", err)
	}

	ids := make([]int64, 0, len(items))
	for _, e := range items {
		ids = append(ids, e.ID)
	}

	regs, err := r.registrants(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]event.WithRegistrations, 0, len(items))
	for _, e := range items {
		out = append(out, withRegistrations(e, regs[e.ID]))
	}

	return out, nil
}

func (r *EventsRepo) GetEventWithCount(ctx context.Context, id int64) (event.Event, int, error) {
	var e event.Event
	var total int

	err := r.prom.ObserveDB("events.get_with_count", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT e.id, e.title, e.date, e.location, e.capacity, e.created_at,
			        (SELECT COUNT(*) FROM event_registrations r WHERE r.event_id = e.id)
			 FROM events e
			 WHERE e.id = $1`,
			id,
		).Scan(&e.ID, &e.Title, &e.Date, &e.Location, &e.Capacity, &e.CreatedAt, &total)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, 0, event.ErrNotFound
		}
		return event.Event{}, 0, fmt.Errorf("get event %d with count: %w", id, err)
	}

	return e, total, nil
}

func (r *EventsRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// registrants loads the users registered for each of ids, keyed by event.
func (r *EventsRepo) registrants(ctx context.Context, ids []int64) (map[int64][]user.Public, error) {
	out := make(map[int64][]user.Public, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows pgx.Rows

	err := r.prom.ObserveDB("registrations.list_by_events", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx,
			`SELECT r.event_id, u.id, u.name, u.email
			 FROM event_registrations r
			 JOIN users u ON u.id = r.user_id
			 WHERE r.event_id = ANY($1)
			 ORDER BY r.event_id, u.id`,
			ids,
		)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID int64
		var u user.Public
		if err := rows.Scan(&eventID, &u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("scan registrant: %w", err)
		}
		out[eventID] = append(out[eventID], u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrants: %w", err)
	}

	return out, nil
}

func withRegistrations(e event.Event, regs []user.Public) event.WithRegistrations {
	if regs == nil {
		regs = []user.Public{}
	}
	return event.WithRegistrations{Event: e, Registrations: regs}
}
