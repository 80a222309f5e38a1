package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLStore(db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return store
}

func TestSQLStoreSessionLifecycle(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	first := &Session{
		Token:        "tok-1",
		UserID:       "12345",
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
		UserAgent:    "ua-a",
		IPAddress:    "10.0.0.1",
	}
	if err := store.CreateSession(ctx, first); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := store.FindActiveByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("FindActiveByToken: %v", err)
	}
	if got == nil || got.UserID != "12345" || got.UserAgent != "ua-a" {
		t.Fatalf("unexpected session: %+v", got)
	}

	// A second login supersedes the first in the same transaction.
	second := &Session{
		Token:        "tok-2",
		UserID:       "12345",
		CreatedAt:    now.Add(time.Minute),
		LastActivity: now.Add(time.Minute),
		Active:       true,
	}
	if err := store.CreateSession(ctx, second); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got, _ := store.FindActiveByToken(ctx, "tok-1"); got != nil {
		t.Fatal("superseded session still active")
	}
	active, err := store.ActiveForUser(ctx, "12345")
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}
	if active == nil || active.Token != "tok-2" {
		t.Fatalf("ActiveForUser = %+v, want tok-2", active)
	}

	at := now.Add(2 * time.Minute)
	if err := store.Touch(ctx, "tok-2", at); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, _ = store.FindActiveByToken(ctx, "tok-2")
	if got == nil || !got.LastActivity.Equal(at) {
		t.Fatalf("Touch not persisted: %+v", got)
	}

	if err := store.Deactivate(ctx, "tok-2"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if got, _ := store.FindActiveByToken(ctx, "tok-2"); got != nil {
		t.Fatal("deactivated session still active")
	}
	// Idempotent.
	if err := store.Deactivate(ctx, "tok-2"); err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}
}

func TestSQLStoreDeactivateIdle(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i, s := range []*Session{
		{Token: "stale", UserID: "11111", CreatedAt: now.Add(-time.Hour), LastActivity: now.Add(-time.Hour), Active: true},
		{Token: "fresh", UserID: "22222", CreatedAt: now, LastActivity: now, Active: true},
	} {
		if err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession %d: %v", i, err)
		}
	}

	n, err := store.DeactivateIdle(ctx, now.Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("DeactivateIdle: %v", err)
	}
	if n != 1 {
		t.Fatalf("deactivated %d sessions, want 1", n)
	}
	if got, _ := store.FindActiveByToken(ctx, "stale"); got != nil {
		t.Fatal("stale session still active")
	}
	if got, _ := store.FindActiveByToken(ctx, "fresh"); got == nil {
		t.Fatal("fresh session was expired")
	}
}

func TestSQLStorePseudocodes(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := store.VerifyPseudocode(ctx, "12345"); err != ErrUserNotFound {
		t.Fatalf("unknown pseudocode: got %v, want %v", err, ErrUserNotFound)
	}

	created, err := store.CreatePseudocode(ctx, "12345")
	if err != nil {
		t.Fatalf("CreatePseudocode: %v", err)
	}
	if created.LastLogin != nil {
		t.Fatal("new pseudocode should have no last login")
	}

	u, err := store.VerifyPseudocode(ctx, "12345")
	if err != nil {
		t.Fatalf("VerifyPseudocode: %v", err)
	}
	if u.LastLogin == nil {
		t.Fatal("VerifyPseudocode should stamp last login")
	}
}

func TestSQLStoreRecordActivity(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	a := &Activity{
		UserID:       "12345",
		SessionToken: "tok-1",
		Type:         ActivityTranslation,
		Detail:       "sentence submitted",
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.RecordActivity(ctx, a); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if a.ID == "" {
		t.Fatal("RecordActivity should assign an id")
	}

	var count int
	row := store.db.QueryRow(`SELECT COUNT(*) FROM user_activities WHERE user_id = ?`, "12345")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count activities: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d activity rows, want 1", count)
	}
}
