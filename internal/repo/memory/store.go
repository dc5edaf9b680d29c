package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/job"
	"github.com/geocoder89/eventreg/internal/domain/registration"
	"github.com/geocoder89/eventreg/internal/domain/user"
)

var ErrEmailTaken = errors.New("email already in use")

// Store keeps events, users, registrations and outbox jobs in process.
// Every transaction on an event holds that event's lock for its whole
// duration, and its writes are applied only when fn succeeds.
type Store struct {
	mu          sync.RWMutex
	nextEventID int64
	nextUserID  int64

	events map[int64]*eventRecord
	users  map[int64]user.User
	emails map[string]int64

	jobs *jobQueue
	now  func() time.Time
}

type eventRecord struct {
	event event.Event
	// lock is a one-slot semaphore so waiters can give up on ctx.
	lock    chan struct{}
	members map[int64]struct{}
}

func NewStore() *Store {
	return &Store{
		events: make(map[int64]*eventRecord),
		users:  make(map[int64]user.User),
		emails: make(map[string]int64),
		jobs:   newJobQueue(),
		now:    time.Now,
	}
}

func (s *Store) AddUser(ctx context.Context, name, email string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	email = strings.TrimSpace(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[strings.ToLower(email)]; ok {
		return user.User{}, ErrEmailTaken
	}

	s.nextUserID++
	u := user.User{ID: s.nextUserID, Name: strings.TrimSpace(name), Email: email}
	s.users[u.ID] = u
	s.emails[strings.ToLower(email)] = u.ID

	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateEvent(ctx context.Context, e event.Event) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	e.ID = s.nextEventID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	s.events[e.ID] = &eventRecord{
		event:   e,
		lock:    make(chan struct{}, 1),
		members: make(map[int64]struct{}),
	}

	return e.ID, nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (event.WithRegistrations, error) {
	if err := ctx.Err(); err != nil {
		return event.WithRegistrations{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.events[id]
	if !ok {
		return event.WithRegistrations{}, event.ErrNotFound
	}

	return s.snapshot(rec), nil
}

func (s *Store) ListUpcoming(ctx context.Context, now time.Time) ([]event.WithRegistrations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	items := make([]event.WithRegistrations, 0, len(s.events))
	for _, rec := range s.events {
		if rec.event.Date.After(now) {
			items = append(items, s.snapshot(rec))
		}
	}
	s.mu.RUnlock()

	return event.Upcoming(items, now), nil
}

func (s *Store) GetEventWithCount(ctx context.Context, id int64) (event.Event, int, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.events[id]
	if !ok {
		return event.Event{}, 0, event.ErrNotFound
	}

	return rec.event, len(rec.members), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// snapshot copies rec with registrants ordered by user id. Callers hold s.mu.
func (s *Store) snapshot(rec *eventRecord) event.WithRegistrations {
	ids := make([]int64, 0, len(rec.members))
	for uid := range rec.members {
		ids = append(ids, uid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	regs := make([]user.Public, 0, len(ids))
	for _, uid := range ids {
		if u, ok := s.users[uid]; ok {
			regs = append(regs, u.Public())
		}
	}

	return event.WithRegistrations{Event: rec.event, Registrations: regs}
}

// WithEvent implements registration.SeatStore. The memory store takes the
// event lock for every mode.
func (s *Store) WithEvent(
	ctx context.Context,
	eventID int64,
	mode registration.LockMode,
	fn func(ctx context.Context, seat event.Seat, tx registration.SeatTx) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	rec, ok := s.events[eventID]
	s.mu.RUnlock()
	if !ok {
		return event.ErrNotFound
	}

	select {
	case rec.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-rec.lock }()

	tx := &memTx{store: s, eventID: eventID, removed: make(map[int64]bool)}

	seat := event.Seat{EventID: rec.event.ID, Date: rec.event.Date, Capacity: rec.event.Capacity}
	if err := fn(ctx, seat, tx); err != nil {
		return err
	}

	// an abandoned caller rolls back even if fn finished
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.commit(rec, tx)
}

// commit applies tx. The jobs go first so a rejected batch leaves the
// membership untouched.
func (s *Store) commit(rec *eventRecord, tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.jobs.push(tx.jobs...); err != nil {
		return err
	}

	for uid := range tx.removed {
		delete(rec.members, uid)
	}
	for _, uid := range tx.added {
		rec.members[uid] = struct{}{}
	}
	return nil
}

type memTx struct {
	store   *Store
	eventID int64
	added   []int64
	removed map[int64]bool
	jobs    []job.CreateRequest
}

func (t *memTx) committed(eventID, userID int64) bool {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	rec, ok := t.store.events[eventID]
	if !ok {
		return false
	}
	_, ok = rec.members[userID]
	return ok
}

func (t *memTx) addedIndex(userID int64) int {
	for i, uid := range t.added {
		if uid == userID {
			return i
		}
	}
	return -1
}

func (t *memTx) CountRegistrations(ctx context.Context, eventID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.store.mu.RLock()
	rec, ok := t.store.events[eventID]
	n := 0
	if ok {
		n = len(rec.members)
	}
	t.store.mu.RUnlock()

	if eventID == t.eventID {
		n += len(t.added) - len(t.removed)
	}

	return n, nil
}

func (t *memTx) IsRegistered(ctx context.Context, eventID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if eventID != t.eventID {
		return t.committed(eventID, userID), nil
	}

	if t.addedIndex(userID) >= 0 {
		return true, nil
	}
	return t.committed(eventID, userID) && !t.removed[userID], nil
}

func (t *memTx) Connect(ctx context.Context, eventID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if eventID != t.eventID {
		return errors.New("memory: connect outside the locked event")
	}

	t.store.mu.RLock()
	_, known := t.store.users[userID]
	t.store.mu.RUnlock()
	if !known {
		return user.ErrNotFound
	}

	if ok, _ := t.IsRegistered(ctx, eventID, userID); ok {
		return registration.ErrAlreadyRegistered
	}

	if t.removed[userID] {
		delete(t.removed, userID)
		return nil
	}

	t.added = append(t.added, userID)
	return nil
}

func (t *memTx) Disconnect(ctx context.Context, eventID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if eventID != t.eventID {
		return false, errors.New("memory: disconnect outside the locked event")
	}

	if i := t.addedIndex(userID); i >= 0 {
		t.added = append(t.added[:i], t.added[i+1:]...)
		return true, nil
	}

	if t.committed(eventID, userID) && !t.removed[userID] {
		t.removed[userID] = true
		return true, nil
	}

	return false, nil
}

func (t *memTx) Enqueue(ctx context.Context, req job.CreateRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if req.IdempotencyKey != "" {
		if t.store.jobs.hasKey(req.IdempotencyKey) {
			return fmt.Errorf("%w: %s", job.ErrDuplicateKey, req.IdempotencyKey)
		}
		for _, staged := range t.jobs {
			if staged.IdempotencyKey == req.IdempotencyKey {
				return fmt.Errorf("%w: %s", job.ErrDuplicateKey, req.IdempotencyKey)
			}
		}
	}

	t.jobs = append(t.jobs, req)
	return nil
}
