package jobs

import "time"

// RegistrationPayload is carried by both registration job types. It stays
// ID-based; the notifier loads anything else it needs.
type RegistrationPayload struct {
	// ChangeID names the membership change; the job's idempotency key is
	// derived from it.
	ChangeID   string    `json:"changeId"`
	EventID    int64     `json:"eventId"`
	UserID     int64     `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
	RequestID  string    `json:"requestId,omitempty"`
}
