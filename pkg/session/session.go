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

// Package session enforces single-device login with idle-timeout expiry.
//
// At most one session per user is active at any time: creating a session
// deactivates every prior session for that user inside one transaction.
// Expiry is detected on-demand during validation; an opportunistic bulk
// sweep reclaims sessions that never return. Inactive is terminal; a
// token is never reactivated.
package session

import (
	"context"
	"errors"
	"time"
)

// Session is a persisted single-device login session.
type Session struct {
	// Token is the opaque session identifier presented by the client.
	Token string `json:"token"`

	// UserID is the owning user's pseudocode.
	UserID string `json:"user_id"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActivity is when the session last passed validation.
	LastActivity time.Time `json:"last_activity"`

	// Active reports whether the session is live. False is terminal.
	Active bool `json:"active"`

	// UserAgent is the client's reported user agent at login.
	UserAgent string `json:"user_agent,omitempty"`

	// IPAddress is the client's network origin at login.
	IPAddress string `json:"ip_address,omitempty"`
}

// User is a pseudocode identity: an anonymous five-digit code.
type User struct {
	Pseudocode string     `json:"pseudocode"`
	CreatedAt  time.Time  `json:"created_at"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	Active     bool       `json:"active"`
}

// ActivityType classifies an activity-log event.
type ActivityType string

const (
	ActivityLogin           ActivityType = "login"
	ActivityLogout          ActivityType = "logout"
	ActivityTranslation     ActivityType = "translation"
	ActivityForcedLogout    ActivityType = "forced_logout"
	ActivityTimeoutLogout   ActivityType = "timeout_logout"
	ActivitySessionExtended ActivityType = "session_extended"
)

// Activity is one append-only activity-log record.
// Records are never mutated or deleted by this package.
type Activity struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	SessionToken string       `json:"session_token,omitempty"`
	Type         ActivityType `json:"type"`
	Detail       string       `json:"detail,omitempty"`
	IPAddress    string       `json:"ip_address,omitempty"`
	UserAgent    string       `json:"user_agent,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ClientMeta carries client metadata captured at login.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// ErrUserNotFound is returned when a pseudocode does not exist or is
// deactivated.
var ErrUserNotFound = errors.New("user not found")

// Store is the persistence layer for sessions, users, and the activity
// log. Implementations must be safe for concurrent use.
type Store interface {
	// CreateSession deactivates every active session for
	// session.UserID, then inserts the new session, both inside a
	// single transaction, so a user never briefly has zero or two
	// active sessions.
	CreateSession(ctx context.Context, s *Session) error

	// FindActiveByToken returns the active session with the given
	// token, or (nil, nil) when no such session exists.
	FindActiveByToken(ctx context.Context, token string) (*Session, error)

	// ActiveForUser returns the user's active session, or (nil, nil).
	ActiveForUser(ctx context.Context, userID string) (*Session, error)

	// Touch sets last_activity on an active session.
	Touch(ctx context.Context, token string, at time.Time) error

	// Deactivate marks a session inactive. Idempotent.
	Deactivate(ctx context.Context, token string) error

	// DeactivateIdle marks every active session with last_activity
	// before the cutoff inactive, returning how many were affected.
	DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error)

	// RecordActivity appends an activity-log record.
	RecordActivity(ctx context.Context, a *Activity) error

	// VerifyPseudocode looks up an active pseudocode user and stamps
	// last_login. Returns ErrUserNotFound if absent or deactivated.
	VerifyPseudocode(ctx context.Context, code string) (*User, error)

	// CreatePseudocode registers a new pseudocode user.
	CreatePseudocode(ctx context.Context, code string) (*User, error)
}
