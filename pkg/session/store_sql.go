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
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const createSessionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS user_sessions (
    token VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(8) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    last_activity TIMESTAMP NOT NULL,
    is_active BOOLEAN NOT NULL,
    user_agent TEXT,
    ip_address VARCHAR(64)
)`

const createSessionsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions(user_id, is_active)`

const createUsersSchemaSQL = `
CREATE TABLE IF NOT EXISTS pseudocodes (
    pseudocode VARCHAR(8) PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    last_login TIMESTAMP,
    is_active BOOLEAN NOT NULL
)`

const createActivitiesSchemaSQL = `
CREATE TABLE IF NOT EXISTS user_activities (
    id VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(8) NOT NULL,
    session_token VARCHAR(36),
    activity_type VARCHAR(32) NOT NULL,
    detail TEXT,
    ip_address VARCHAR(64),
    user_agent TEXT,
    created_at TIMESTAMP NOT NULL
)`

const createActivitiesIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_user_activities_user ON user_activities(user_id, created_at)`

// SQLStore is the SQL-backed session store.
// Supports Postgres, MySQL, and SQLite; concurrency is handled by
// database-level locking and transactions.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates a session store on db and initializes the schema.
// Supported dialects: "postgres", "mysql", "sqlite".
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stmts := []string{
		createSessionsSchemaSQL,
		createUsersSchemaSQL,
		createActivitiesSchemaSQL,
	}
	// MySQL before 8.0.13 rejects CREATE INDEX IF NOT EXISTS; index
	// creation is best-effort there.
	if s.dialect != "mysql" {
		stmts = append(stmts, createSessionsIndexSQL, createActivitiesIndexSQL)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// bind rewrites ? placeholders to $N for postgres.
func (s *SQLStore) bind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateSession deactivates the user's active sessions and inserts the
// new one in a single transaction.
func (s *SQLStore) CreateSession(ctx context.Context, sess *Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deactivate := s.bind(`UPDATE user_sessions SET is_active = ? WHERE user_id = ? AND is_active = ?`)
	if _, err := tx.ExecContext(ctx, deactivate, false, sess.UserID, true); err != nil {
		return fmt.Errorf("failed to deactivate prior sessions: %w", err)
	}

	insert := s.bind(`INSERT INTO user_sessions
		(token, user_id, created_at, last_activity, is_active, user_agent, ip_address)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		sess.Token, sess.UserID, sess.CreatedAt, sess.LastActivity,
		sess.Active, sess.UserAgent, sess.IPAddress); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// FindActiveByToken returns the active session for token, or (nil, nil).
func (s *SQLStore) FindActiveByToken(ctx context.Context, token string) (*Session, error) {
	query := s.bind(`SELECT token, user_id, created_at, last_activity, is_active, user_agent, ip_address
		FROM user_sessions WHERE token = ? AND is_active = ?`)
	return s.scanSession(s.db.QueryRowContext(ctx, query, token, true))
}

// ActiveForUser returns the user's active session, or (nil, nil).
func (s *SQLStore) ActiveForUser(ctx context.Context, userID string) (*Session, error) {
	query := s.bind(`SELECT token, user_id, created_at, last_activity, is_active, user_agent, ip_address
		FROM user_sessions WHERE user_id = ? AND is_active = ?
		ORDER BY created_at DESC LIMIT 1`)
	return s.scanSession(s.db.QueryRowContext(ctx, query, userID, true))
}

func (s *SQLStore) scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var userAgent, ipAddress sql.NullString
	err := row.Scan(&sess.Token, &sess.UserID, &sess.CreatedAt, &sess.LastActivity,
		&sess.Active, &userAgent, &ipAddress)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.UserAgent = userAgent.String
	sess.IPAddress = ipAddress.String
	return &sess, nil
}

// Touch refreshes last_activity on an active session.
func (s *SQLStore) Touch(ctx context.Context, token string, at time.Time) error {
	query := s.bind(`UPDATE user_sessions SET last_activity = ? WHERE token = ? AND is_active = ?`)
	if _, err := s.db.ExecContext(ctx, query, at, token, true); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Deactivate marks a session inactive. Idempotent.
func (s *SQLStore) Deactivate(ctx context.Context, token string) error {
	query := s.bind(`UPDATE user_sessions SET is_active = ? WHERE token = ?`)
	if _, err := s.db.ExecContext(ctx, query, false, token); err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

// DeactivateIdle bulk-expires sessions whose last activity predates
// cutoff.
func (s *SQLStore) DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.bind(`UPDATE user_sessions SET is_active = ? WHERE is_active = ? AND last_activity < ?`)
	res, err := s.db.ExecContext(ctx, query, false, true, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// RecordActivity appends an activity-log record.
func (s *SQLStore) RecordActivity(ctx context.Context, a *Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := s.bind(`INSERT INTO user_activities
		(id, user_id, session_token, activity_type, detail, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.SessionToken, string(a.Type), a.Detail,
		a.IPAddress, a.UserAgent, a.CreatedAt); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// VerifyPseudocode looks up an active pseudocode user and stamps
// last_login.
func (s *SQLStore) VerifyPseudocode(ctx context.Context, code string) (*User, error) {
	query := s.bind(`SELECT pseudocode, created_at, last_login, is_active
		FROM pseudocodes WHERE pseudocode = ? AND is_active = ?`)

	var u User
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, query, code, true).
		Scan(&u.Pseudocode, &u.CreatedAt, &lastLogin, &u.Active)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up pseudocode: %w", err)
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}

	now := time.Now()
	update := s.bind(`UPDATE pseudocodes SET last_login = ? WHERE pseudocode = ?`)
	if _, err := s.db.ExecContext(ctx, update, now, code); err != nil {
		return nil, fmt.Errorf("failed to stamp last login: %w", err)
	}
	u.LastLogin = &now
	return &u, nil
}

// CreatePseudocode registers a new pseudocode user.
func (s *SQLStore) CreatePseudocode(ctx context.Context, code string) (*User, error) {
	u := &User{
		Pseudocode: code,
		CreatedAt:  time.Now(),
		Active:     true,
	}
	query := s.bind(`INSERT INTO pseudocodes (pseudocode, created_at, last_login, is_active)
		VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, u.Pseudocode, u.CreatedAt, nil, u.Active); err != nil {
		return nil, fmt.Errorf("failed to create pseudocode: %w", err)
	}
	return u, nil
}

// Ensure interface compliance at compile time.
var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
