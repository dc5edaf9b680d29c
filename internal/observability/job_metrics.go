package observability

import (
	"sync/atomic"
	"time"
)

// JobMetrics keeps in-process worker counters for the worker's /stats
// endpoint. Prometheus gets the same events through Prom.ObserveJob.
type JobMetrics struct {
	claimed      atomic.Uint64
	done         atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
	reaped       atomic.Uint64

	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{}
}

func (m *JobMetrics) IncClaimed()      { m.claimed.Add(1) }
func (m *JobMetrics) IncDone()         { m.done.Add(1) }
func (m *JobMetrics) IncRetried()      { m.retried.Add(1) }
func (m *JobMetrics) IncDeadLettered() { m.deadLettered.Add(1) }

func (m *JobMetrics) AddReaped(n int64) {
	if n > 0 {
		m.reaped.Add(uint64(n))
	}
}

func (m *JobMetrics) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	for {
		curr := m.durationMax.Load()
		if ns <= curr {
			return
		}
		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type JobStats struct {
	Claimed      uint64 `json:"claimed"`
	Done         uint64 `json:"done"`
	Retried      uint64 `json:"retried"`
	DeadLettered uint64 `json:"deadLettered"`
	Reaped       uint64 `json:"reaped"`
	AvgMillis    int64  `json:"avgMs"`
	MaxMillis    int64  `json:"maxMs"`
}

func (m *JobMetrics) Snapshot() JobStats {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()

	var avg time.Duration
	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return JobStats{
		Claimed:      m.claimed.Load(),
		Done:         m.done.Load(),
		Retried:      m.retried.Load(),
		DeadLettered: m.deadLettered.Load(),
		Reaped:       m.reaped.Load(),
		AvgMillis:    avg.Milliseconds(),
		MaxMillis:    time.Duration(m.durationMax.Load()).Milliseconds(),
	}
}
