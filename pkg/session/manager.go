// Copyright 2025 The Tenselens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a session validation.
type Status int

const (
	// StatusValid means the session is active and was refreshed.
	StatusValid Status = iota

	// StatusNotFound means no active session matches the token.
	StatusNotFound

	// StatusExpired means the session idled past the timeout and was
	// deactivated during this validation.
	StatusExpired
)

// String returns the human-readable status.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNotFound:
		return "not found or inactive"
	case StatusExpired:
		return "expired after inactivity"
	default:
		return "unknown"
	}
}

// Manager enforces the single-device and idle-timeout session rules on
// top of a Store.
//
// Manager methods perform persistence I/O and may block on the database.
// They must not be called while holding the rate limiter's lock; the two
// subsystems are deliberately independent.
type Manager struct {
	store Store
	now   func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager's time source for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager backed by store.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	m := &Manager{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create starts a new session for userID, superseding any existing ones.
// Logging in anywhere immediately invalidates sessions everywhere else.
func (m *Manager) Create(ctx context.Context, userID string, meta ClientMeta) (*Session, error) {
	now := m.now()
	s := &Session{
		Token:        uuid.NewString(),
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// Validate looks up an active session by token and applies the idle
// timeout.
//
// The lookup, the possible expiry write, and the activity refresh form
// one logical step; callers must not split them, or a request could
// sneak in activity past expiry. Expired sessions are deactivated here,
// on demand; the bulk sweep is an optimization, not the backstop.
func (m *Manager) Validate(ctx context.Context, token string, maxIdle time.Duration) (*Session, Status, error) {
	if token == "" {
		return nil, StatusNotFound, nil
	}

	s, err := m.store.FindActiveByToken(ctx, token)
	if err != nil {
		return nil, StatusNotFound, fmt.Errorf("failed to look up session: %w", err)
	}
	if s == nil {
		return nil, StatusNotFound, nil
	}

	now := m.now()
	idle := now.Sub(s.LastActivity)
	if idle > maxIdle {
		if err := m.store.Deactivate(ctx, token); err != nil {
			return nil, StatusExpired, fmt.Errorf("failed to expire session: %w", err)
		}
		// The deactivated session is returned so callers can audit the
		// timeout.
		s.Active = false
		return s, StatusExpired, nil
	}

	if err := m.store.Touch(ctx, token, now); err != nil {
		return nil, StatusNotFound, fmt.Errorf("failed to refresh session: %w", err)
	}

	// A refresh that rescues a session from the back half of its idle
	// window is audit-worthy; failing to log it must not fail the
	// request.
	if maxIdle > 0 && idle > maxIdle/2 {
		_ = m.store.RecordActivity(ctx, &Activity{
			ID:           uuid.NewString(),
			UserID:       s.UserID,
			SessionToken: s.Token,
			Type:         ActivitySessionExtended,
			Detail:       "idle deadline extended after " + idle.Round(time.Second).String(),
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			CreatedAt:    now,
		})
	}

	s.LastActivity = now
	return s, StatusValid, nil
}

// GetActive returns the user's active session, or nil. Read-only; used
// to warn about a multi-device conflict before superseding.
func (m *Manager) GetActive(ctx context.Context, userID string) (*Session, error) {
	return m.store.ActiveForUser(ctx, userID)
}

// Invalidate marks a session inactive. Used on explicit logout.
func (m *Manager) Invalidate(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	if err := m.store.Deactivate(ctx, s.Token); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	s.Active = false
	return nil
}

// CleanupExpired bulk-deactivates sessions idle past maxIdle and returns
// the count. Best-effort housekeeping; Validate performs on-demand
// expiry regardless.
func (m *Manager) CleanupExpired(ctx context.Context, maxIdle time.Duration) (int64, error) {
	return m.store.DeactivateIdle(ctx, m.now().Add(-maxIdle))
}

// RecordActivity appends an activity-log record, filling in ID and
// timestamp.
func (m *Manager) RecordActivity(ctx context.Context, a Activity) error {
	a.ID = uuid.NewString()
	a.CreatedAt = m.now()
	return m.store.RecordActivity(ctx, &a)
}

// VerifyPseudocode resolves a login code to a user.
func (m *Manager) VerifyPseudocode(ctx context.Context, code string) (*User, error) {
	return m.store.VerifyPseudocode(ctx, code)
}
