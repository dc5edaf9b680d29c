package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// counterValue returns the value of the counter series matching labels, or
// -1 when the series does not exist.
func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObserveDB_ClassifiesErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	_ = p.ObserveDB("events.get", func() error { return pgx.ErrNoRows })
	_ = p.ObserveDB("registrations.connect", func() error { return &pgconn.PgError{Code: "23505"} })
	_ = p.ObserveDB("registrations.connect", func() error { return &pgconn.PgError{Code: "23503"} })
	_ = p.ObserveDB("events.list", func() error { return errors.New("dial tcp: connection refused") })

	const name = "eventreg_db_errors_total"

	if got := counterValue(t, reg, name, map[string]string{"op": "registrations.connect", "class": "unique_violation"}); got != 1 {
		t.Fatalf("expected 1 unique_violation, got %v", got)
	}
	if got := counterValue(t, reg, name, map[string]string{"op": "registrations.connect", "class": "foreign_key_violation"}); got != 1 {
		t.Fatalf("expected 1 foreign_key_violation, got %v", got)
	}
	if got := counterValue(t, reg, name, map[string]string{"op": "events.list", "class": "connection"}); got != 1 {
		t.Fatalf("expected 1 connection error, got %v", got)
	}
	if got := counterValue(t, reg, name, map[string]string{"op": "events.get"}); got != -1 {
		t.Fatalf("no-rows must not count as an error, got %v", got)
	}
}

func TestObserveDB_NilProm(t *testing.T) {
	var p *Prom
	want := errors.New("boom")
	if err := p.ObserveDB("x", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected passthrough error, got %v", err)
	}
}

func TestRegistrationOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	p.RegistrationOutcome("register", "registered")
	p.RegistrationOutcome("register", "registered")
	p.RegistrationOutcome("register", "event_full")

	const name = "eventreg_registrations_outcomes_total"

	if got := counterValue(t, reg, name, map[string]string{"op": "register", "outcome": "registered"}); got != 2 {
		t.Fatalf("expected 2 registered, got %v", got)
	}
	if got := counterValue(t, reg, name, map[string]string{"op": "register", "outcome": "event_full"}); got != 1 {
		t.Fatalf("expected 1 event_full, got %v", got)
	}
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	p := NewProm(reg)
	p.ObserveJob("registration_confirmed", "done", 20*time.Millisecond)

	r := gin.New()
	r.Use(p.GinHandleMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", Handler(reg))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	if !strings.Contains(body, `eventreg_http_requests_total{method="GET",route="/ping",status="200"} 1`) {
		t.Fatalf("expected /ping request counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(body, `eventreg_jobs_results_total{job_type="registration_confirmed",result="done"} 1`) {
		t.Fatalf("expected job result counter in exposition")
	}
}

func TestJobMetricsSnapshot(t *testing.T) {
	m := NewJobMetrics()
	m.IncClaimed()
	m.IncClaimed()
	m.IncDone()
	m.IncRetried()
	m.AddReaped(3)
	m.ObserveDuration(10 * time.Millisecond)
	m.ObserveDuration(30 * time.Millisecond)

	s := m.Snapshot()
	if s.Claimed != 2 || s.Done != 1 || s.Retried != 1 || s.Reaped != 3 {
		t.Fatalf("unexpected counters %+v", s)
	}
	if s.AvgMillis != 20 || s.MaxMillis != 30 {
		t.Fatalf("unexpected durations avg=%d max=%d", s.AvgMillis, s.MaxMillis)
	}
}
