package db

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DemoUsers returns the fixture users. IDs are left for the store to assign.
func DemoUsers() []user.User {
	return []user.User{
		{Name: "Alice", Email: "alice@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
	}
}

func DemoEvents() []event.Event {
	return []event.Event{
		{Title: "Tech Meetup", Date: time.Date(2025, 11, 20, 18, 0, 0, 0, time.UTC), Location: "Burdwan", Capacity: 100},
		{Title: "Node.js Workshop", Date: time.Date(2025, 12, 5, 15, 0, 0, 0, time.UTC), Location: "Kolkata", Capacity: 50},
	}
}

// SeedDemo inserts the demo users and events. Users are matched by email and
// events by title, so running it twice is a no-op.
func SeedDemo(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, u := range DemoUsers() {
			_, err := tx.Exec(ctx,
				`INSERT INTO users (name, email) VALUES ($1, $2)
				 ON CONFLICT (email) DO NOTHING`,
				u.Name, u.Email,
			)
			if err != nil {
				return fmt.Errorf("seed user %s: %w", u.Email, err)
			}
		}

		for _, e := range DemoEvents() {
			_, err := tx.Exec(ctx,
				`INSERT INTO events (title, date, location, capacity)
				 SELECT $1::text, $2::timestamptz, $3::text, $4::int
				 WHERE NOT EXISTS (SELECT 1 FROM events WHERE title = $1::text)`,
				e.Title, e.Date, e.Location, e.Capacity,
			)
			if err != nil {
				return fmt.Errorf("seed event %s: %w", e.Title, err)
			}
		}

		return nil
	})
}
