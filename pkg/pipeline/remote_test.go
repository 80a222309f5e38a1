package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemoteTranslator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translation":"I eat rice."}`))
	}))
	defer srv.Close()

	client, err := NewStageClient(srv.URL, 5*time.Second, 0)
	if err != nil {
		t.Fatalf("NewStageClient: %v", err)
	}

	got, err := NewRemoteTranslator(client).Translate(context.Background(), "ฉันกินข้าว")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "I eat rice." {
		t.Fatalf("Translate = %q", got)
	}
}

func TestRemoteClassifierDecodesFullContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"coarse_label": "PAST",
			"fine_label": "SIMPLE",
			"fine_code": "past_simple",
			"confidence": 0.9,
			"alternatives": [{"fine_label": "PERFECT", "confidence": 0.08}]
		}`))
	}))
	defer srv.Close()

	client, err := NewStageClient(srv.URL, 5*time.Second, 0)
	if err != nil {
		t.Fatalf("NewStageClient: %v", err)
	}

	c, err := NewRemoteClassifier(client).Classify(context.Background(), "Yesterday I went home.")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.FineCode != "past_simple" {
		t.Fatalf("FineCode = %q, want past_simple", c.FineCode)
	}
	if len(c.Alternatives) != 1 || c.Alternatives[0].FineLabel != "PERFECT" {
		t.Fatalf("Alternatives = %+v", c.Alternatives)
	}
}

func TestStageClientRetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"coarse_label":"PAST","fine_label":"SIMPLE","confidence":0.9}`))
	}))
	defer srv.Close()

	client, err := NewStageClient(srv.URL, 5*time.Second, 2)
	if err != nil {
		t.Fatalf("NewStageClient: %v", err)
	}
	client.baseDelay = time.Millisecond

	c, err := NewRemoteClassifier(client).Classify(context.Background(), "Yesterday I went home.")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Coarse != "PAST" {
		t.Fatalf("Coarse = %q, want PAST", c.Coarse)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestStageClientGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewStageClient(srv.URL, 5*time.Second, 1)
	if err != nil {
		t.Fatalf("NewStageClient: %v", err)
	}
	client.baseDelay = time.Millisecond

	if _, err := NewRemoteTranslator(client).Translate(context.Background(), "x"); err == nil {
		t.Fatal("expected failure after exhausted retries")
	}
}

func TestStageClientRejectsNonRetryableError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewStageClient(srv.URL, 5*time.Second, 3)
	if err != nil {
		t.Fatalf("NewStageClient: %v", err)
	}

	if _, err := NewRemoteTranslator(client).Translate(context.Background(), "x"); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (400 is not retryable)", attempts)
	}
}
