package job

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateKey is returned when a job with the same idempotency key
	// already exists. Nothing is inserted.
	ErrDuplicateKey = errors.New("job idempotency key already used")
	// ErrLockExpired is recorded on jobs released by the stale-lock reaper.
	ErrLockExpired = errors.New("job lock expired")
)

const DefaultMaxAttempts = 10

type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LockedAt    *time.Time      `json:"lockedAt,omitempty"`
	LockedBy    *string         `json:"lockedBy,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	// IdempotencyKey is unique across the table when set.
	IdempotencyKey *string   `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Type        string
	Payload     json.RawMessage
	RunAt       time.Time
	MaxAttempts int

	IdempotencyKey string
}

func New(req CreateRequest) Job {
	now := time.Now().UTC()

	maxA := req.MaxAttempts
	if maxA <= 0 {
		maxA = DefaultMaxAttempts
	}

	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	var key *string
	if req.IdempotencyKey != "" {
		k := req.IdempotencyKey
		key = &k
	}

	return Job{
		IdempotencyKey: key,
		ID:             uuid.NewString(),
		Type:           req.Type,
		Payload:        req.Payload,
		Status:         StatusPending,
		MaxAttempts:    maxA,
		RunAt:          runAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Exhausted reports whether one more failure should dead-letter the job.
func (j Job) Exhausted() bool {
	return j.Attempts+1 >= j.MaxAttempts
}
