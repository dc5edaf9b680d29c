package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/eventreg/internal/cache"
	"github.com/geocoder89/eventreg/internal/config"
	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/job"
	apphttp "github.com/geocoder89/eventreg/internal/http"
	"github.com/geocoder89/eventreg/internal/jobs"
	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/geocoder89/eventreg/internal/repo/memory"
	"github.com/geocoder89/eventreg/internal/service"
)

func testConfig() config.Config {
	return config.Config{
		Env:          "test",
		Store:        config.StoreMemory,
		MaxBodyBytes: 1 << 20,
		CORSOrigins:  []string{"*"},
	}
}

type apiError struct {
	Error     string          `json:"error"`
	Code      string          `json:"code"`
	RequestID string          `json:"requestId"`
	Details   json.RawMessage `json:"details"`
}

type testAPI struct {
	router *gin.Engine
	store  *memory.Store
	reg    *prometheus.Registry
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	store := memory.NewStore()

	deps := apphttp.MemoryDependencies(store, prom, service.Config{
		Timeout: 2 * time.Second,
		Logger:  log,
		Cache:   cache.New(time.Second),
	})
	deps.Gatherer = reg

	return &testAPI{
		router: apphttp.NewRouter(log, testConfig(), deps),
		store:  store,
		reg:    reg,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) addUser(t *testing.T, name string) int64 {
	t.Helper()
	u, err := a.store.AddUser(context.Background(), name, strings.ToLower(name)+"@example.com")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	return u.ID
}

func (a *testAPI) createEvent(t *testing.T, title, location string, date time.Time, capacity int) int64 {
	t.Helper()

	w := a.do(t, http.MethodPost, "/event", map[string]any{
		"title":    title,
		"date":     date.UTC().Format(time.RFC3339),
		"location": location,
		"capacity": capacity,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create event: status %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Message string `json:"message"`
		EventID int64  `json:"eventId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if resp.Message != "Event created successfully" || resp.EventID <= 0 {
		t.Fatalf("unexpected create response: %+v", resp)
	}
	return resp.EventID
}

func pair(eventID, userID int64) map[string]int64 {
	return map[string]int64{"eventId": eventID, "userId": userID}
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) apiError {
	t.Helper()
	var e apiError
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error: %v body=%s", err, w.Body.String())
	}
	return e
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status %d, want %d, body=%s", w.Code, status, w.Body.String())
	}
	if got := decodeAPIError(t, w).Error; got != message {
		t.Fatalf("message %q, want %q", got, message)
	}
}

func TestRegistrationLifecycle(t *testing.T) {
	api := setupTestAPI(t)

	alice := api.addUser(t, "Alice")
	eventID := api.createEvent(t, "Tech Meetup", "Burdwan", time.Now().Add(48*time.Hour), 2)

	w := api.do(t, http.MethodPost, "/event/register", pair(eventID, alice))
	if w.Code != http.StatusOK {
		t.Fatalf("register: status %d body=%s", w.Code, w.Body.String())
	}

	expectError(t, api.do(t, http.MethodPost, "/event/register", pair(eventID, alice)),
		http.StatusBadRequest, "User already registered for this event")

	w = api.do(t, http.MethodGet, fmt.Sprintf("/event/%d", eventID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}
	var got event.WithRegistrations
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if len(got.Registrations) != 1 || got.Registrations[0].ID != alice || got.Registrations[0].Email != "alice@example.com" {
		t.Fatalf("unexpected registrants: %+v", got.Registrations)
	}

	w = api.do(t, http.MethodGet, fmt.Sprintf("/event/%d/stats", eventID), nil)
	var stats event.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalRegistrations != 1 || stats.RemainingCapacity != 1 || stats.CapacityUsedPercentage != "50.00%" {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	w = api.do(t, http.MethodPost, "/event/cancel", pair(eventID, alice))
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body=%s", w.Code, w.Body.String())
	}

	expectError(t, api.do(t, http.MethodPost, "/event/cancel", pair(eventID, alice)),
		http.StatusBadRequest, "User is not registered for this event")

	// cycles freely
	if w := api.do(t, http.MethodPost, "/event/register", pair(eventID, alice)); w.Code != http.StatusOK {
		t.Fatalf("re-register: status %d", w.Code)
	}

	var types []string
	for _, j := range api.store.Jobs() {
		types = append(types, j.Type)
	}
	want := []string{
		string(jobs.JobRegistrationConfirmed),
		string(jobs.JobRegistrationCancelled),
		string(jobs.JobRegistrationConfirmed),
	}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("outbox = %v, want %v", types, want)
	}
}

func TestRegister_ConcurrentRequestsRespectCapacity(t *testing.T) {
	api := setupTestAPI(t)

	const capacity = 5
	const callers = 25

	eventID := api.createEvent(t, "Node.js Workshop", "Kolkata", time.Now().Add(72*time.Hour), capacity)

	users := make([]int64, callers)
	for i := range users {
		users[i] = api.addUser(t, fmt.Sprintf("user%02d", i))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[int]int{}
		msgs   = map[string]int{}
	)

	for _, uid := range users {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()

			w := api.do(t, http.MethodPost, "/event/register", pair(eventID, uid))

			mu.Lock()
			defer mu.Unlock()
			counts[w.Code]++
			if w.Code != http.StatusOK {
				var e apiError
				_ = json.Unmarshal(w.Body.Bytes(), &e)
				msgs[e.Error]++
			}
		}(uid)
	}
	wg.Wait()

	if counts[http.StatusOK] != capacity {
		t.Fatalf("admitted %d, want %d (counts=%v)", counts[http.StatusOK], capacity, counts)
	}
	if msgs["Event is full"] != callers-capacity {
		t.Fatalf("full rejections = %v", msgs)
	}

	w := api.do(t, http.MethodGet, fmt.Sprintf("/event/%d/stats", eventID), nil)
	var stats event.Stats
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.TotalRegistrations != capacity || stats.RemainingCapacity != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	pending := 0
	for _, j := range api.store.Jobs() {
		if j.Status == job.StatusPending {
			pending++
		}
	}
	if pending != capacity {
		t.Fatalf("outbox has %d jobs, want %d", pending, capacity)
	}
}

func TestRegister_Rejections(t *testing.T) {
	api := setupTestAPI(t)

	alice := api.addUser(t, "Alice")
	bob := api.addUser(t, "Bob")

	past := api.createEvent(t, "Yesterday", "Burdwan", time.Now().Add(-24*time.Hour), 10)
	full := api.createEvent(t, "Tiny", "Kolkata", time.Now().Add(24*time.Hour), 1)

	if w := api.do(t, http.MethodPost, "/event/register", pair(full, alice)); w.Code != http.StatusOK {
		t.Fatalf("seed registration failed: %d", w.Code)
	}

	expectError(t, api.do(t, http.MethodPost, "/event/register", pair(past, alice)),
		http.StatusBadRequest, "Cannot register for past events")
	expectError(t, api.do(t, http.MethodPost, "/event/register", pair(full, bob)),
		http.StatusBadRequest, "Event is full")
	expectError(t, api.do(t, http.MethodPost, "/event/register", pair(9999, alice)),
		http.StatusNotFound, "Event not found")
	expectError(t, api.do(t, http.MethodPost, "/event/register", pair(full, 4242)),
		http.StatusBadRequest, "Event is full")

	open := api.createEvent(t, "Open", "Pune", time.Now().Add(24*time.Hour), 10)
	expectError(t, api.do(t, http.MethodPost, "/event/register", pair(open, 4242)),
		http.StatusNotFound, "User not found")
	expectError(t, api.do(t, http.MethodPost, "/event/register", map[string]any{"eventId": "x", "userId": 1}),
		http.StatusBadRequest, "eventId and userId must be integers")
	expectError(t, api.do(t, http.MethodPost, "/event/register", pair(-1, alice)),
		http.StatusBadRequest, "eventId and userId must be positive integers")
	expectError(t, api.do(t, http.MethodPost, "/event/cancel", map[string]any{"eventId": open}),
		http.StatusBadRequest, "eventId and userId are required")
}

func TestUpcoming_OrderAndFilter(t *testing.T) {
	api := setupTestAPI(t)

	day := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	api.createEvent(t, "Past", "Agra", time.Now().Add(-time.Hour), 10)
	late := api.createEvent(t, "Later", "Agra", day.Add(time.Hour), 10)
	kol := api.createEvent(t, "Same time K", "Kolkata", day, 10)
	bur := api.createEvent(t, "Same time B", "Burdwan", day, 10)

	w := api.do(t, http.MethodGet, "/event/upcoming", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var items []event.WithRegistrations
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var ids []int64
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	want := []int64{bur, kol, late}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}

	etag := w.Header().Get("ETag")
	req := httptest.NewRequest(http.MethodGet, "/event/upcoming", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("conditional get = %d, want 304", rec.Code)
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	api := setupTestAPI(t)

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing", map[string]any{"title": "x"}, "title, date, location and capacity are required"},
		{"capacity_high", map[string]any{"title": "x", "date": "2030-01-01", "location": "y", "capacity": 1001}, "capacity must be an integer between 1 and 1000"},
		{"capacity_zero", map[string]any{"title": "x", "date": "2030-01-01", "location": "y", "capacity": 0}, "capacity must be an integer between 1 and 1000"},
		{"bad_date", map[string]any{"title": "x", "date": "next tuesday", "location": "y", "capacity": 5}, "date must be a valid ISO date string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, api.do(t, http.MethodPost, "/event", tt.body), http.StatusBadRequest, tt.want)
		})
	}
}

func TestNumericStringsAreCoerced(t *testing.T) {
	api := setupTestAPI(t)
	alice := api.addUser(t, "Alice")

	w := api.do(t, http.MethodPost, "/event", map[string]any{
		"title": "Strings", "date": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"location": "Pune", "capacity": "5",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create event: status %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		EventID int64 `json:"eventId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}

	body := map[string]any{"eventId": strconv.FormatInt(created.EventID, 10), "userId": float64(alice)}
	if w := api.do(t, http.MethodPost, "/event/register", body); w.Code != http.StatusOK {
		t.Fatalf("register: status %d body=%s", w.Code, w.Body.String())
	}
	if w := api.do(t, http.MethodPost, "/event/cancel", body); w.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body=%s", w.Code, w.Body.String())
	}
}

func TestRouter_Ambient(t *testing.T) {
	api := setupTestAPI(t)

	w := api.do(t, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "event api running") {
		t.Fatalf("root banner: %d %q", w.Code, w.Body.String())
	}

	for _, path := range []string{"/healthz", "/readyz", "/docs", "/docs/openapi.yaml"} {
		if w := api.do(t, http.MethodGet, path, nil); w.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, w.Code)
		}
	}

	expectError(t, api.do(t, http.MethodGet, "/event/abc", nil), http.StatusBadRequest, "Invalid event id")
	expectError(t, api.do(t, http.MethodGet, "/event/12345", nil), http.StatusNotFound, "Event not found")

	// content type is enforced on writes
	req := httptest.NewRequest(http.MethodPost, "/event/register", strings.NewReader(`{"eventId":1,"userId":1}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Request-Id", "req-415")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("wrong content type = %d", rec.Code)
	}
	if e := decodeAPIError(t, rec); e.RequestID != "req-415" || e.Code != "unsupported_media_type" {
		t.Fatalf("unexpected error body: %+v", e)
	}

	api.do(t, http.MethodPost, "/event/register", pair(1, 1))
	metrics := api.do(t, http.MethodGet, "/metrics", nil)
	if metrics.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", metrics.Code)
	}
	for _, name := range []string{"eventreg_http_requests_total", "eventreg_registrations_outcomes_total"} {
		if !strings.Contains(metrics.Body.String(), name) {
			t.Fatalf("metrics output lacks %s", name)
		}
	}
}
