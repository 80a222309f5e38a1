package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tenselens/tenselens/pkg/config"
	"github.com/tenselens/tenselens/pkg/pipeline"
	"github.com/tenselens/tenselens/pkg/ratelimit"
	"github.com/tenselens/tenselens/pkg/session"
	"github.com/tenselens/tenselens/pkg/validate"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.MemoryStore) {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()

	store := session.NewMemoryStore()
	if _, err := store.CreatePseudocode(context.Background(), "12345"); err != nil {
		t.Fatalf("CreatePseudocode: %v", err)
	}
	sessions, err := session.NewManager(store)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	limiter, err := ratelimit.New(&cfg.RateLimit)
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}

	validator, err := validate.New(validate.Config{
		MaxTokens:         cfg.Validation.MaxTokens,
		MinThaiPercentage: cfg.Validation.MinThaiPercentage,
		ProfanityFilter:   true,
	})
	if err != nil {
		t.Fatalf("validate.New: %v", err)
	}

	orch, err := pipeline.New(pipeline.MockTranslator{}, pipeline.MockClassifier{}, pipeline.MockExplainer{})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	srv, err := New(cfg, Deps{
		Limiter:      limiter,
		Sessions:     sessions,
		Validator:    validator,
		Orchestrator: orch,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func login(t *testing.T, ts *httptest.Server, pseudocode string) *http.Cookie {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/login", "application/json",
		strings.NewReader(`{"pseudocode":"`+pseudocode+`"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("login status = %d: %s", resp.StatusCode, body)
	}
	for _, c := range resp.Cookies() {
		if c.Name == "tenselens_session" {
			return c
		}
	}
	t.Fatal("login response missing session cookie")
	return nil
}

func sseFrames(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, chunk := range bytes.Split(body, []byte("\n\n")) {
		chunk = bytes.TrimSpace(chunk)
		if len(chunk) == 0 {
			continue
		}
		if !bytes.HasPrefix(chunk, []byte("data: ")) {
			t.Fatalf("malformed frame: %q", chunk)
		}
		var frame map[string]any
		if err := json.Unmarshal(bytes.TrimPrefix(chunk, []byte("data: ")), &frame); err != nil {
			t.Fatalf("unmarshal frame %q: %v", chunk, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestLoginValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	cases := []struct {
		body   string
		status int
	}{
		{`not json`, http.StatusBadRequest},
		{`{"pseudocode":"abc"}`, http.StatusBadRequest},
		{`{"pseudocode":"1234"}`, http.StatusBadRequest},
		{`{"pseudocode":"99999"}`, http.StatusUnauthorized},
		{`{"pseudocode":"12345"}`, http.StatusOK},
	}
	for _, tc := range cases {
		resp, err := http.Post(ts.URL+"/api/login", "application/json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Errorf("login(%s) status = %d, want %d", tc.body, resp.StatusCode, tc.status)
		}
	}
}

func TestSecondLoginReportsConflict(t *testing.T) {
	ts, _ := newTestServer(t)
	login(t, ts, "12345")

	resp, err := http.Post(ts.URL+"/api/login", "application/json",
		strings.NewReader(`{"pseudocode":"12345"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Conflict bool `json:"conflict"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Conflict {
		t.Fatal("second login should report conflict")
	}
}

func TestPredictRequiresSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/predict", "application/json",
		strings.NewReader(`{"thai_text":"ฉันกินข้าวเช้าทุกวัน"}`))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestPredictStream(t *testing.T) {
	ts, _ := newTestServer(t)
	cookie := login(t, ts, "12345")

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/predict",
		strings.NewReader(`{"thai_text":"ฉันกินข้าวเช้าทุกวัน"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}

	frames := sseFrames(t, body)
	if len(frames) < 2 {
		t.Fatalf("got %d frames, want at least opener + terminal", len(frames))
	}

	terminals := 0
	for _, f := range frames {
		if f["complete"] == true {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("got %d terminal frames, want exactly 1", terminals)
	}

	last := frames[len(frames)-1]
	if last["complete"] != true {
		t.Fatalf("last frame is not terminal: %v", last)
	}
	result, ok := last["result"].(map[string]any)
	if !ok {
		t.Fatalf("terminal frame missing result: %v", last)
	}
	if result["translation"] != "I eat breakfast every day." {
		t.Fatalf("translation = %v", result["translation"])
	}
	if _, ok := last["explanation_sections"].(map[string]any); !ok {
		t.Fatalf("terminal frame missing explanation_sections: %v", last)
	}
}

func TestPredictInvalidInputGetsErrorFrame(t *testing.T) {
	ts, _ := newTestServer(t)
	cookie := login(t, ts, "12345")

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/predict",
		strings.NewReader(`{"thai_text":""}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	frames := sseFrames(t, body)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want a single error frame", len(frames))
	}
	if frames[0]["error"] == nil {
		t.Fatalf("frame has no error: %v", frames[0])
	}
}

func TestDuplicatePredictRejected(t *testing.T) {
	ts, _ := newTestServer(t)
	cookie := login(t, ts, "12345")

	send := func() *http.Response {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/predict",
			strings.NewReader(`{"thai_text":"ฉันกินข้าวเช้าทุกวัน"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(cookie)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		return resp
	}

	first := send()
	_, _ = io.ReadAll(first.Body)
	_ = first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first predict status = %d", first.StatusCode)
	}

	second := send()
	defer func() { _ = second.Body.Close() }()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second predict status = %d, want 429", second.StatusCode)
	}
	if got := second.Header.Get("Retry-After"); got != "5" {
		t.Fatalf("Retry-After = %q, want 5 (duplicate request)", got)
	}
	var out struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.NewDecoder(second.Body).Decode(&out); err != nil {
		t.Fatalf("decode rejection: %v", err)
	}
	if out.Error != "Rate limit exceeded" {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestValidateNeedsNoSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/validate", "application/json",
		strings.NewReader(`{"text":"ฉันกินข้าวทุกวัน"}`))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out validate.Summary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Valid {
		t.Fatalf("expected valid summary, got %+v", out)
	}
}

func TestLimitsAndStats(t *testing.T) {
	ts, _ := newTestServer(t)
	cookie := login(t, ts, "12345")

	for _, path := range []string{"/api/limits", "/api/stats"} {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		req.AddCookie(cookie)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	ts, _ := newTestServer(t)
	cookie := login(t, ts, "12345")

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/logout", nil)
	req.AddCookie(cookie)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	// The token is dead: protected routes reject it.
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/limits", nil)
	req.AddCookie(cookie)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status after logout = %d, want 401", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
