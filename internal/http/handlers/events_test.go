package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/user"
	"github.com/geocoder89/eventreg/internal/http/handlers"
	"github.com/geocoder89/eventreg/internal/validation"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
	validation.Install()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDirectory implements handlers.EventDirectory with function fields.
type fakeDirectory struct {
	createFn   func(ctx context.Context, req event.CreateEventRequest) (int64, error)
	getFn      func(ctx context.Context, id int64) (event.WithRegistrations, error)
	upcomingFn func(ctx context.Context) ([]event.WithRegistrations, error)
	statsFn    func(ctx context.Context, id int64) (event.Stats, error)
}

func (f *fakeDirectory) CreateEvent(ctx context.Context, req event.CreateEventRequest) (int64, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return 1, nil
}

func (f *fakeDirectory) GetEvent(ctx context.Context, id int64) (event.WithRegistrations, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return event.WithRegistrations{}, nil
}

func (f *fakeDirectory) ListUpcoming(ctx context.Context) ([]event.WithRegistrations, error) {
	if f.upcomingFn != nil {
		return f.upcomingFn(ctx)
	}
	return nil, nil
}

func (f *fakeDirectory) Stats(ctx context.Context, id int64) (event.Stats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, id)
	}
	return event.Stats{}, nil
}

// small helper which returns a gin engine with one handler mounted
func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

func doJSON(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleEvent(id int64) event.WithRegistrations {
	return event.WithRegistrations{
		Event: event.Event{
			ID:       id,
			Title:    "Tech Meetup",
			Date:     time.Date(2030, 11, 20, 18, 0, 0, 0, time.UTC),
			Location: "Burdwan",
			Capacity: 100,
		},
		Registrations: []user.Public{{ID: 1, Name: "Alice", Email: "alice@example.com"}},
	}
}

func TestCreateEventHandler(t *testing.T) {
	valid := `{"title":"Go Meetup","date":"2030-01-02T15:04:05Z","location":"Toronto","capacity":50}`

	tests := []struct {
		name        string
		body        string
		setup       func(*fakeDirectory)
		wantStatus  int
		wantMessage string
	}{
		{
			name: "success",
			body: valid,
			setup: func(f *fakeDirectory) {
				f.createFn = func(ctx context.Context, req event.CreateEventRequest) (int64, error) {
					if req.Title != "Go Meetup" || *req.Capacity != 50 {
						return 0, errors.New("unexpected request")
					}
					return 42, nil
				}
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:        "missing_fields",
			body:        `{"title":""}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "title, date, location and capacity are required",
		},
		{
			name: "bad_date_from_directory",
			body: valid,
			setup: func(f *fakeDirectory) {
				f.createFn = func(ctx context.Context, req event.CreateEventRequest) (int64, error) {
					return 0, validation.New("date must be a valid ISO date string")
				}
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "date must be a valid ISO date string",
		},
		{
			name: "store_error",
			body: valid,
			setup: func(f *fakeDirectory) {
				f.createFn = func(ctx context.Context, req event.CreateEventRequest) (int64, error) {
					return 0, errors.New("db error")
				}
			},
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDirectory{}
			if tt.setup != nil {
				tt.setup(f)
			}

			h := handlers.NewEventsHandler(f, quietLogger())
			r := setupRouter(http.MethodPost, "/event", h.CreateEvent)

			w := doJSON(r, http.MethodPost, "/event", tt.body, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantMessage != "" {
				if got := decodeError(t, w).Error; got != tt.wantMessage {
					t.Fatalf("got message %q, want %q", got, tt.wantMessage)
				}
				return
			}

			var resp struct {
				Message string `json:"message"`
				EventID int64  `json:"eventId"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Message != "Event created successfully" || resp.EventID != 42 {
				t.Fatalf("unexpected body: %+v", resp)
			}
			if loc := w.Header().Get("Location"); loc != "/event/42" {
				t.Fatalf("Location = %q", loc)
			}
		})
	}
}

func TestGetEventHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		getFn      func(ctx context.Context, id int64) (event.WithRegistrations, error)
		wantStatus int
	}{
		{
			name: "found",
			path: "/event/7",
			getFn: func(ctx context.Context, id int64) (event.WithRegistrations, error) {
				return sampleEvent(id), nil
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "non_numeric_id",
			path:       "/event/abc",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "zero_id",
			path:       "/event/0",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "not_found",
			path: "/event/9",
			getFn: func(ctx context.Context, id int64) (event.WithRegistrations, error) {
				return event.WithRegistrations{}, event.ErrNotFound
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDirectory{getFn: tt.getFn}
			h := handlers.NewEventsHandler(f, quietLogger())
			r := setupRouter(http.MethodGet, "/event/:id", h.GetEvent)

			w := doJSON(r, http.MethodGet, tt.path, "", nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus == http.StatusOK {
				var got event.WithRegistrations
				if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if got.ID != 7 || len(got.Registrations) != 1 || got.Registrations[0].Name != "Alice" {
					t.Fatalf("unexpected event: %+v", got)
				}
			}
		})
	}
}

func TestGetEventHandler_ErrorMessages(t *testing.T) {
	f := &fakeDirectory{getFn: func(ctx context.Context, id int64) (event.WithRegistrations, error) {
		return event.WithRegistrations{}, event.ErrNotFound
	}}
	h := handlers.NewEventsHandler(f, quietLogger())
	r := setupRouter(http.MethodGet, "/event/:id", h.GetEvent)

	body := decodeError(t, doJSON(r, http.MethodGet, "/event/abc", "", nil))
	if body.Error != "Invalid event id" || body.Code != "invalid_id" {
		t.Fatalf("unexpected body: %+v", body)
	}

	body = decodeError(t, doJSON(r, http.MethodGet, "/event/3", "", nil))
	if body.Error != "Event not found" || body.Code != "not_found" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGetEventHandler_ETag(t *testing.T) {
	f := &fakeDirectory{getFn: func(ctx context.Context, id int64) (event.WithRegistrations, error) {
		return sampleEvent(id), nil
	}}
	h := handlers.NewEventsHandler(f, quietLogger())
	r := setupRouter(http.MethodGet, "/event/:id", h.GetEvent)

	first := doJSON(r, http.MethodGet, "/event/1", "", nil)
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected an ETag header")
	}

	second := doJSON(r, http.MethodGet, "/event/1", "", map[string]string{"If-None-Match": etag})
	if second.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want 304", second.Code)
	}

	weak := doJSON(r, http.MethodGet, "/event/1", "", map[string]string{"If-None-Match": `"other", W/` + etag})
	if weak.Code != http.StatusNotModified {
		t.Fatalf("weak match: got status %d, want 304", weak.Code)
	}

	stale := doJSON(r, http.MethodGet, "/event/1", "", map[string]string{"If-None-Match": `"stale"`})
	if stale.Code != http.StatusOK {
		t.Fatalf("stale etag: got status %d, want 200", stale.Code)
	}
}

func TestEventReads_CachePolicy(t *testing.T) {
	total := 1
	f := &fakeDirectory{
		getFn: func(ctx context.Context, id int64) (event.WithRegistrations, error) {
			return sampleEvent(id), nil
		},
		statsFn: func(ctx context.Context, id int64) (event.Stats, error) {
			return event.Stats{EventID: id, TotalRegistrations: total, RemainingCapacity: 10 - total}, nil
		},
	}
	h := handlers.NewEventsHandler(f, quietLogger())

	r := gin.New()
	r.GET("/event/:id", h.GetEvent)
	r.GET("/event/:id/stats", h.Stats)
	r.GET("/event/upcoming", h.ListUpcoming)

	tests := []struct {
		path    string
		control string
		prefix  string
	}{
		{"/event/1", "private, no-cache", `"event-`},
		{"/event/upcoming", "private, no-cache", `"upcoming-`},
		{"/event/1/stats", "public, no-cache", `"stats-`},
	}

	for _, tt := range tests {
		w := doJSON(r, http.MethodGet, tt.path, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d", tt.path, w.Code)
		}
		if got := w.Header().Get("Cache-Control"); got != tt.control {
			t.Fatalf("%s: Cache-Control = %q, want %q", tt.path, got, tt.control)
		}
		if got := w.Header().Get("ETag"); !strings.HasPrefix(got, tt.prefix) {
			t.Fatalf("%s: ETag = %q, want prefix %s", tt.path, got, tt.prefix)
		}
	}

	before := doJSON(r, http.MethodGet, "/event/1/stats", "", nil).Header().Get("ETag")
	total = 2
	after := doJSON(r, http.MethodGet, "/event/1/stats", "", map[string]string{"If-None-Match": before})
	if after.Code != http.StatusOK {
		t.Fatalf("stats after a registration: got %d, want 200", after.Code)
	}
	if after.Header().Get("ETag") == before {
		t.Fatalf("ETag did not change with the registration count")
	}

	notModified := doJSON(r, http.MethodGet, "/event/1/stats", "", map[string]string{"If-None-Match": "*"})
	if notModified.Code != http.StatusNotModified || notModified.Body.Len() != 0 {
		t.Fatalf("wildcard: status %d body %q", notModified.Code, notModified.Body.String())
	}
}

func TestListUpcomingHandler(t *testing.T) {
	t.Run("empty_is_array", func(t *testing.T) {
		h := handlers.NewEventsHandler(&fakeDirectory{}, quietLogger())
		r := setupRouter(http.MethodGet, "/event/upcoming", h.ListUpcoming)

		w := doJSON(r, http.MethodGet, "/event/upcoming", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("got status %d", w.Code)
		}
		if got := bytes.TrimSpace(w.Body.Bytes()); string(got) != "[]" {
			t.Fatalf("got body %s, want []", got)
		}
	})

	t.Run("keeps_directory_order", func(t *testing.T) {
		f := &fakeDirectory{upcomingFn: func(ctx context.Context) ([]event.WithRegistrations, error) {
			return []event.WithRegistrations{sampleEvent(2), sampleEvent(1)}, nil
		}}
		h := handlers.NewEventsHandler(f, quietLogger())
		r := setupRouter(http.MethodGet, "/event/upcoming", h.ListUpcoming)

		w := doJSON(r, http.MethodGet, "/event/upcoming", "", nil)

		var got []event.WithRegistrations
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
			t.Fatalf("unexpected order: %+v", got)
		}
	})

	t.Run("store_error", func(t *testing.T) {
		f := &fakeDirectory{upcomingFn: func(ctx context.Context) ([]event.WithRegistrations, error) {
			return nil, errors.New("connection reset")
		}}
		h := handlers.NewEventsHandler(f, quietLogger())
		r := setupRouter(http.MethodGet, "/event/upcoming", h.ListUpcoming)

		w := doJSON(r, http.MethodGet, "/event/upcoming", "", nil)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("got status %d", w.Code)
		}
		if body := decodeError(t, w); body.Error != "Internal Server Error" {
			t.Fatalf("internal detail leaked: %+v", body)
		}
	})
}

func TestStatsHandler(t *testing.T) {
	f := &fakeDirectory{statsFn: func(ctx context.Context, id int64) (event.Stats, error) {
		if id != 5 {
			return event.Stats{}, event.ErrNotFound
		}
		return event.NewStats(event.Event{ID: 5, Title: "Workshop", Capacity: 50}, 20), nil
	}}
	h := handlers.NewEventsHandler(f, quietLogger())
	r := setupRouter(http.MethodGet, "/event/:id/stats", h.Stats)

	w := doJSON(r, http.MethodGet, "/event/5/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var got event.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalRegistrations != 20 || got.RemainingCapacity != 30 || got.CapacityUsedPercentage != "40.00%" {
		t.Fatalf("unexpected stats: %+v", got)
	}

	if w := doJSON(r, http.MethodGet, "/event/6/stats", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing event: got status %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/event/x/stats", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: got status %d", w.Code)
	}
}
