package registration

import (
	"context"

	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/job"
)

// SeatTx is the view of the membership relation available while an event
// row is held. Writes become visible only when the surrounding transaction
// commits.
type SeatTx interface {
	CountRegistrations(ctx context.Context, eventID int64) (int, error)
	IsRegistered(ctx context.Context, eventID, userID int64) (bool, error)
	// Connect inserts the pair. It returns user.ErrNotFound for an unknown
	// user and ErrAlreadyRegistered when the pair already exists.
	Connect(ctx context.Context, eventID, userID int64) error
	// Disconnect removes the pair and reports whether a row was removed.
	Disconnect(ctx context.Context, eventID, userID int64) (bool, error)
	Enqueue(ctx context.Context, req job.CreateRequest) error
}

// SeatStore runs fn inside one transaction scoped to a single event.
// It returns event.ErrNotFound when the event does not exist. The
// transaction commits only if fn returns nil, and the row lock (if any) is
// released on every path.
type SeatStore interface {
	WithEvent(ctx context.Context, eventID int64, mode LockMode, fn func(ctx context.Context, seat event.Seat, tx SeatTx) error) error
}
