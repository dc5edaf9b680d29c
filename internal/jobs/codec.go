package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/job"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals j.Payload into the typed payload for j.Type.
func DecodePayload(j job.Job) (RegistrationPayload, error) {
	t := JobType(j.Type)
	if !t.IsValid() {
		return RegistrationPayload{}, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return RegistrationPayload{}, ErrInvalidJobPayload
	}

	var p RegistrationPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return RegistrationPayload{}, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	if err := ValidatePayload(t, p); err != nil {
		return RegistrationPayload{}, err
	}

	return p, nil
}

// NewRegistrationJob builds the outbox row for a membership change.
// changeID must be unique per committed change.
func NewRegistrationJob(t JobType, changeID string, eventID, userID int64, at time.Time, requestID string) (job.CreateRequest, error) {
	p := RegistrationPayload{
		ChangeID:   changeID,
		EventID:    eventID,
		UserID:     userID,
		OccurredAt: at.UTC(),
		RequestID:  requestID,
	}

	b, err := EncodePayload(t, p)
	if err != nil {
		return job.CreateRequest{}, err
	}

	return job.CreateRequest{
		Type:           string(t),
		Payload:        b,
		RunAt:          at,
		IdempotencyKey: string(t) + ":" + changeID,
	}, nil
}
