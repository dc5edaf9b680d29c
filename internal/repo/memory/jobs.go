package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/job"
)

// jobQueue mirrors the jobs table: claim, finish, retry and reap.
type jobQueue struct {
	mu    sync.Mutex
	byID  map[string]*job.Job
	keys  map[string]struct{}
	order []string
	now   func() time.Time
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		byID: make(map[string]*job.Job),
		keys: make(map[string]struct{}),
		now:  time.Now,
	}
}

// push enqueues all of reqs or none: a key that is already taken, or
// repeated within reqs, fails the whole batch with job.ErrDuplicateKey.
func (q *jobQueue) push(reqs ...job.CreateRequest) ([]job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		if req.IdempotencyKey == "" {
			continue
		}
		_, taken := q.keys[req.IdempotencyKey]
		_, repeated := seen[req.IdempotencyKey]
		if taken || repeated {
			return nil, fmt.Errorf("%w: %s", job.ErrDuplicateKey, req.IdempotencyKey)
		}
		seen[req.IdempotencyKey] = struct{}{}
	}

	created := make([]job.Job, 0, len(reqs))
	for _, req := range reqs {
		if req.IdempotencyKey != "" {
			q.keys[req.IdempotencyKey] = struct{}{}
		}

		j := job.New(req)
		q.byID[j.ID] = &j
		q.order = append(q.order, j.ID)
		created = append(created, j)
	}
	return created, nil
}

func (q *jobQueue) hasKey(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.keys[key]
	return ok
}

// Jobs returns a copy of every job in enqueue order.
func (s *Store) Jobs() []job.Job {
	q := s.jobs
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]job.Job, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.byID[id])
	}
	return out
}

func (s *Store) CreateJob(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	if err := ctx.Err(); err != nil {
		return job.Job{}, err
	}

	created, err := s.jobs.push(req)
	if err != nil {
		return job.Job{}, err
	}
	return created[0], nil
}

func (s *Store) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	if err := ctx.Err(); err != nil {
		return job.Job{}, err
	}

	q := s.jobs
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	ready := make([]*job.Job, 0)
	for _, id := range q.order {
		j := q.byID[id]
		if j.Status == job.StatusPending && !j.RunAt.After(now) && j.Attempts < j.MaxAttempts {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return job.Job{}, job.ErrJobNotFound
	}

	sort.SliceStable(ready, func(a, b int) bool {
		return ready[a].RunAt.Before(ready[b].RunAt)
	})

	j := ready[0]
	j.Status = job.StatusProcessing
	j.LockedAt = &now
	j.LockedBy = &workerID
	j.UpdatedAt = now

	return *j, nil
}

func (s *Store) MarkDone(ctx context.Context, id string) error {
	return s.jobs.update(id, func(j *job.Job, now time.Time) {
		j.Status = job.StatusDone
		j.Attempts++
		j.LastError = nil
	})
}

func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	return s.jobs.update(id, func(j *job.Job, now time.Time) {
		j.Status = job.StatusFailed
		j.Attempts++
		j.LastError = &errMsg
	})
}

func (s *Store) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return s.jobs.update(id, func(j *job.Job, now time.Time) {
		j.Status = job.StatusPending
		j.Attempts++
		j.RunAt = runAt
		j.LastError = &errMsg
	})
}

func (q *jobQueue) update(id string, fn func(j *job.Job, now time.Time)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.byID[id]
	if !ok {
		return job.ErrJobNotFound
	}

	now := q.now()
	fn(j, now)
	j.LockedAt = nil
	j.LockedBy = nil
	j.UpdatedAt = now
	return nil
}

func (s *Store) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	q := s.jobs
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-lockTTL)

	var n int64
	for _, j := range q.byID {
		if j.Status == job.StatusProcessing && j.LockedAt != nil && j.LockedAt.Before(cutoff) {
			j.Status = job.StatusPending
			if j.Exhausted() {
				j.Status = job.StatusFailed
			}
			msg := job.ErrLockExpired.Error()
			j.Attempts++
			j.LastError = &msg
			j.LockedAt = nil
			j.LockedBy = nil
			j.UpdatedAt = q.now()
			n++
		}
	}
	return n, nil
}

func (s *Store) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	q := s.jobs
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	var n int64
	for _, id := range q.order {
		if limit > 0 && n >= int64(limit) {
			break
		}
		j := q.byID[id]
		if j.Status != job.StatusFailed {
			continue
		}
		j.Status = job.StatusPending
		j.Attempts = 0
		j.RunAt = now
		j.LastError = nil
		j.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[job.Status]int64, error) {
	out := map[job.Status]int64{
		job.StatusPending:    0,
		job.StatusProcessing: 0,
		job.StatusDone:       0,
		job.StatusFailed:     0,
	}

	q := s.jobs
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.byID {
		out[j.Status]++
	}
	return out, nil
}
