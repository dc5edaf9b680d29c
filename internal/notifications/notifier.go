package notifications

import (
	"context"
	"time"
)

type Kind string

const (
	KindRegistrationConfirmed Kind = "registration.confirmed"
	KindRegistrationCancelled Kind = "registration.cancelled"
)

// Notification is one membership change to tell the outside world about.
type Notification struct {
	Kind       Kind      `json:"kind"`
	EventID    int64     `json:"eventId"`
	UserID     int64     `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
	JobID      string    `json:"jobId"`
	RequestID  string    `json:"requestId,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
