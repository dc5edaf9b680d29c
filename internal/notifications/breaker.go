package notifications

import (
	"sync"
	"time"
)

type circuitState string

const (
	stateClosed   circuitState = "closed"
	stateOpen     circuitState = "open"
	stateHalfOpen circuitState = "half_open"
)

// breaker counts consecutive failures. After threshold of them it rejects
// calls for cooldown, then lets up to trials calls through as a half-open test.
type breaker struct {
	threshold int
	cooldown  time.Duration
	trials    int

	mu       sync.Mutex
	state    circuitState
	failures int
	openedAt time.Time
	probing  int
}

// allow reports whether a call may proceed at now. The returned state is the
// one the call runs under.
func (b *breaker) allow(now time.Time) (circuitState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen && now.Sub(b.openedAt) >= b.cooldown {
		b.state = stateHalfOpen
		b.probing = 0
	}

	switch b.state {
	case stateOpen:
		return b.state, false
	case stateHalfOpen:
		if b.probing >= b.trials {
			return b.state, false
		}
		b.probing++
	}
	return b.state, true
}

// record applies the result of a call and returns the previous and new state.
func (b *breaker) record(now time.Time, failed bool) (from, to circuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	from = b.state
	if b.state == stateHalfOpen && b.probing > 0 {
		b.probing--
	}

	switch {
	case !failed:
		b.failures = 0
		b.state = stateClosed
	case b.state == stateHalfOpen:
		b.failures++
		b.trip(now)
	default:
		b.failures++
		if b.failures >= b.threshold {
			b.trip(now)
		}
	}
	return from, b.state
}

func (b *breaker) trip(now time.Time) {
	b.state = stateOpen
	b.openedAt = now
}

func (b *breaker) current() circuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
