package event

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/user"
	"github.com/geocoder89/eventreg/internal/validation"
)

type Event struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Location  string    `json:"location"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"createdAt"`
}

// WithRegistrations is an event together with the public fields of its registrants.
type WithRegistrations struct {
	Event
	Registrations []user.Public `json:"registrations"`
}

// Seat is the slice of an event row the registration path locks and reads.
type Seat struct {
	EventID  int64
	Date     time.Time
	Capacity int
}

const (
	MinCapacity = 1
	MaxCapacity = 1000
)

var ErrNotFound = errors.New("event not found")

// capacity is a pointer so that a missing value and 0 are reported differently.
type CreateEventRequest struct {
	Title    string          `json:"title" binding:"required"`
	Date     string          `json:"date" binding:"required"`
	Location string          `json:"location" binding:"required"`
	Capacity *validation.Int `json:"capacity" binding:"required,min=1,max=1000"`
}

type Stats struct {
	EventID                int64  `json:"eventId"`
	Title                  string `json:"title"`
	TotalRegistrations     int    `json:"totalRegistrations"`
	RemainingCapacity      int    `json:"remainingCapacity"`
	CapacityUsedPercentage string `json:"capacityUsedPercentage"`
}

func NewStats(e Event, total int) Stats {
	used := 0.0
	if e.Capacity > 0 {
		used = float64(total) / float64(e.Capacity) * 100
	}

	return Stats{
		EventID:                e.ID,
		Title:                  e.Title,
		TotalRegistrations:     total,
		RemainingCapacity:      e.Capacity - total,
		CapacityUsedPercentage: fmt.Sprintf("%.2f%%", used),
	}
}

// Less orders events by date, then location byte-wise, then id.
func Less(a, b Event) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.Location != b.Location {
		return a.Location < b.Location
	}
	return a.ID < b.ID
}

// Upcoming keeps events strictly after now and sorts them with Less.
func Upcoming(items []WithRegistrations, now time.Time) []WithRegistrations {
	out := make([]WithRegistrations, 0, len(items))
	for _, it := range items {
		if it.Date.After(now) {
			out = append(out, it)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i].Event, out[j].Event)
	})

	return out
}

func (CreateEventRequest) ValidationMessage(fields []validation.FieldError) string {
	if validation.HasRule(fields, "required") {
		return "title, date, location and capacity are required"
	}
	for _, f := range fields {
		if f.Field == "capacity" {
			return "capacity must be an integer between 1 and 1000"
		}
		if f.Field == "date" {
			return "date must be a valid ISO date string"
		}
	}
	return ""
}
