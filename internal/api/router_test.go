package api

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/keypad-calculator/internal/calculator"
	"github.com/eugenenazirov/keypad-calculator/internal/storage"
)

// panickingStore behaves like the memory store until events are applied.
type panickingStore struct {
	*storage.MemoryStorage
}

func (panickingStore) Apply(string, func(*calculator.Engine) error) (storage.Snapshot, error) {
	panic("engine exploded")
}

func newTestRouter(t *testing.T, opts ...RouterOption) http.Handler {
	t.Helper()

	logger := zaptest.NewLogger(t)
	handler := NewHandler(storage.NewMemoryStorage(), WithLogger(logger))
	return NewRouter(handler, logger, opts...)
}

func serve(router http.Handler, method, target, body, remoteAddr string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAccessLogRecordsSessionRoute(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	router := NewRouter(NewHandler(storage.NewMemoryStorage()), logger, WithRateLimit(0, 0))

	rec := serve(router, http.MethodPost, "/api/sessions", "", "")
	id := decode[sessionBody](t, rec).ID

	rec = serve(router, http.MethodPost, "/api/sessions/"+id+"/events", `{"keys":"7*6="}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	entries := logs.FilterMessage("request completed").AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 access log entries, got %d", len(entries))
	}
	fields := entries[1].ContextMap()
	if fields["route"] != "POST /api/sessions/{id}/events" {
		t.Fatalf("expected events route pattern, got %v", fields["route"])
	}
	if fields["session_id"] != id {
		t.Fatalf("expected session_id %s, got %v", id, fields["session_id"])
	}
	if _, ok := entries[0].ContextMap()["session_id"]; ok {
		t.Fatalf("create request should not log a session_id")
	}
}

func TestRecoveryKeepsServingSessions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	store := panickingStore{storage.NewMemoryStorage()}
	router := NewRouter(NewHandler(store), logger, WithRateLimit(0, 0))

	rec := serve(router, http.MethodPost, "/api/sessions", "", "")
	id := decode[sessionBody](t, rec).ID

	rec = serve(router, http.MethodPost, "/api/sessions/"+id+"/events", `{"keys":"1"}`, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); body.Error != "Internal error" {
		t.Fatalf("expected JSON error body, got %+v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
	if logs.FilterMessage("request failed").Len() != 1 {
		t.Fatalf("expected failed request to be logged at warn level")
	}

	rec = serve(router, http.MethodGet, "/api/sessions/"+id, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected session to survive the panic, got %d", rec.Code)
	}
}

func TestCorsOnSessionRoutes(t *testing.T) {
	router := newTestRouter(t, WithLogging(false))

	rec := serve(router, http.MethodPost, "/api/sessions", "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS headers on session creation")
	}
	if rec.Header().Get("Access-Control-Expose-Headers") != "X-Request-ID" {
		t.Fatalf("expected X-Request-ID to be exposed")
	}

	id := decode[sessionBody](t, rec).ID
	req := httptest.NewRequest(http.MethodOptions, "/api/sessions/"+id+"/events", nil)
	req.Header.Set("Origin", "https://keypad.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected preflight status 204, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete) {
		t.Fatalf("expected DELETE in allowed methods, got %s", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestRequestIDOnSessionRoutes(t *testing.T) {
	router := newTestRouter(t, WithLogging(false))

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("X-Request-ID", "keypad-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "keypad-42" {
		t.Fatalf("expected X-Request-ID to be echoed, got %s", got)
	}

	id := decode[sessionBody](t, rec).ID
	rec = serve(router, http.MethodPost, "/api/sessions/"+id+"/events", `{"keys":"1+1="}`, "")
	generated := rec.Header().Get("X-Request-ID")
	if _, err := hex.DecodeString(generated); err != nil || len(generated) != 32 {
		t.Fatalf("expected generated 32 hex character request ID, got %q", generated)
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimit(1, 1))

	if rec := serve(router, http.MethodPost, "/api/sessions", "", "10.0.0.1:4000"); rec.Code != http.StatusCreated {
		t.Fatalf("expected first request from 10.0.0.1 to pass, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/api/sessions", "", "10.0.0.1:4001"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request from 10.0.0.1 to be limited, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/api/sessions", "", "10.0.0.2:4000"); rec.Code != http.StatusCreated {
		t.Fatalf("expected 10.0.0.2 to keep its own budget, got %d", rec.Code)
	}
}

func TestWithRateLimiterOptionAppliesLimiter(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(&staticLimiter{allow: false}))

	if rec := serve(router, http.MethodPost, "/api/sessions", "", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limiter to block session creation, got %d", rec.Code)
	}
}

func TestWithRateLimitDisablesLimiterWhenZero(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(&staticLimiter{allow: false}), WithRateLimit(0, 0))

	if rec := serve(router, http.MethodPost, "/api/sessions", "", ""); rec.Code != http.StatusCreated {
		t.Fatalf("expected limiter to be disabled, got %d", rec.Code)
	}
}

func TestResponseRecorderWriteHeader(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: underlying}
	rec.WriteHeader(http.StatusUnprocessableEntity)

	if rec.status != http.StatusUnprocessableEntity || underlying.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status to be recorded and propagated, got %d/%d", rec.status, underlying.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	router := newTestRouter(t, WithLogging(false))

	if rec := serve(router, http.MethodGet, "/api/keypad", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/api/sessions/abc/events", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET on events, got %d", rec.Code)
	}
}
