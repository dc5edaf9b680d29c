package event

import (
	"errors"
	"strings"
	"time"
)

var errUnparsableDate = errors.New("unparsable date")

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts ISO-8601 timestamps; values without a zone are read as UTC.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, errUnparsableDate
}

// NewFromCreateRequest builds the row to insert. The store assigns the id.
func NewFromCreateRequest(req CreateEventRequest, date time.Time, now time.Time) Event {
	capacity := 0
	if req.Capacity != nil {
		capacity = int(*req.Capacity)
	}

	return Event{
		Title:     strings.TrimSpace(req.Title),
		Date:      date,
		Location:  strings.TrimSpace(req.Location),
		Capacity:  capacity,
		CreatedAt: now.UTC(),
	}
}
