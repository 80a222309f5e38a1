package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newMiddlewareHandler(t *testing.T) (http.Handler, *fakeClock) {
	t.Helper()

	cfg := testConfig()
	clock := newFakeClock()
	limiter, err := New(cfg, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(MiddlewareConfig{Limiter: limiter})(inner), clock
}

func TestMiddleware_RejectionBody(t *testing.T) {
	handler, _ := newMiddlewareHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"text":"a"}`))
	req.RemoteAddr = "10.0.0.1:4242"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Identical body from the same origin: duplicate.
	req = httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"text":"a"}`))
	req.RemoteAddr = "10.0.0.1:4242"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "5" {
		t.Errorf("expected Retry-After 5, got %q", got)
	}

	var body struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "Rate limit exceeded" {
		t.Errorf("unexpected error field %q", body.Error)
	}
	if body.RetryAfter != 5 {
		t.Errorf("expected retry_after 5, got %d", body.RetryAfter)
	}
}

func TestMiddleware_DistinctBodiesHitMinInterval(t *testing.T) {
	handler, clock := newMiddlewareHandler(t)

	send := func(payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(payload))
		req.RemoteAddr = "10.0.0.1:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(`{"text":"one"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	clock.Advance(2 * time.Second)
	rec := send(`{"text":"two"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "13" {
		t.Errorf("expected Retry-After 13, got %q", got)
	}
}

func TestMiddleware_BodyRestoredForHandler(t *testing.T) {
	cfg := testConfig()
	limiter, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("handler failed to decode body: %v", err)
		}
		seen = payload.Text
	})
	handler := Middleware(MiddlewareConfig{Limiter: limiter})(inner)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"text":"สวัสดี"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "สวัสดี" {
		t.Errorf("handler saw body %q", seen)
	}
}

func TestMiddleware_HTMLClientsGetNotice(t *testing.T) {
	handler, clock := newMiddlewareHandler(t)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader("text=x"))
		req.RemoteAddr = "10.0.0.2:1000"
		req.Header.Set("Accept", "text/html")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	send()
	clock.Advance(time.Second)
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain notice, got %q", ct)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on the interactive path too")
	}
}
