package registration

import (
	"errors"

	"github.com/geocoder89/eventreg/internal/validation"
)

var (
	// ErrAlreadyRegistered is returned when the (event, user) pair already exists.
	ErrAlreadyRegistered = errors.New("registration already exists")
	ErrEventFull         = errors.New("event is full")
	ErrPastEvent         = errors.New("event has already taken place")
	ErrNotRegistered     = errors.New("registration not found")
)

// Request carries the pair for both register and cancel. Pointers let a
// missing id be told apart from an explicit zero; ids may arrive as numeric
// strings.
type Request struct {
	EventID *validation.Int `json:"eventId" binding:"required"`
	UserID  *validation.Int `json:"userId" binding:"required"`
}

// LockMode selects how the event row is held for the duration of a transaction.
type LockMode int

const (
	// LockNone reads the event row without blocking other writers.
	LockNone LockMode = iota
	// LockExclusive takes a row lock (SELECT ... FOR UPDATE).
	LockExclusive
)

// Outcome labels used for metrics and logs.
const (
	OutcomeRegistered    = "registered"
	OutcomeCancelled     = "cancelled"
	OutcomeEventFull     = "event_full"
	OutcomeDuplicate     = "already_registered"
	OutcomePastEvent     = "past_event"
	OutcomeNotRegistered = "not_registered"
	OutcomeEventNotFound = "event_not_found"
	OutcomeUserNotFound  = "user_not_found"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
)

// Pair is a validated (event, user) membership key.
type Pair struct {
	EventID int64
	UserID  int64
}

func (Request) ValidationMessage(fields []validation.FieldError) string {
	if validation.HasRule(fields, "required") {
		return "eventId and userId are required"
	}
	return "eventId and userId must be integers"
}

// Pair validates the request outside of HTTP binding.
func (r Request) Pair() (Pair, error) {
	if err := validation.Struct(r); err != nil {
		return Pair{}, err
	}
	if *r.EventID <= 0 || *r.UserID <= 0 {
		return Pair{}, validation.New("eventId and userId must be positive integers",
			validation.FieldError{Field: "eventId", Rule: "min", Param: "1"},
			validation.FieldError{Field: "userId", Rule: "min", Param: "1"},
		)
	}
	return Pair{EventID: int64(*r.EventID), UserID: int64(*r.UserID)}, nil
}

func NewRequest(eventID, userID int64) Request {
	return Request{EventID: validation.IntOf(eventID), UserID: validation.IntOf(userID)}
}
