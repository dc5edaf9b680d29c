package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
	maxJitter   = 250 * time.Millisecond
)

// ExponentialBackoff returns base*2^attempt capped at five minutes, plus up
// to 250ms of jitter. attempt 0 is the first retry.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := time.Duration(float64(backoffBase) * math.Pow(2, float64(attempt)))
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}

	return delay + rand.N(maxJitter)
}
