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
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory session store for tests and local
// development. State is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session // token -> session
	users      map[string]*User    // pseudocode -> user
	activities []Activity
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		users:    make(map[string]*User),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.UserID == sess.UserID && existing.Active {
			existing.Active = false
		}
	}
	cp := *sess
	m.sessions[sess.Token] = &cp
	return nil
}

func (m *MemoryStore) FindActiveByToken(_ context.Context, token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[token]
	if !ok || !sess.Active {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (m *MemoryStore) ActiveForUser(_ context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Session
	for _, sess := range m.sessions {
		if sess.UserID != userID || !sess.Active {
			continue
		}
		if latest == nil || sess.CreatedAt.After(latest.CreatedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) Touch(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[token]; ok && sess.Active {
		sess.LastActivity = at
	}
	return nil
}

func (m *MemoryStore) Deactivate(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[token]; ok {
		sess.Active = false
	}
	return nil
}

func (m *MemoryStore) DeactivateIdle(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, sess := range m.sessions {
		if sess.Active && sess.LastActivity.Before(cutoff) {
			sess.Active = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RecordActivity(_ context.Context, a *Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.activities = append(m.activities, *a)
	return nil
}

func (m *MemoryStore) VerifyPseudocode(_ context.Context, code string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[code]
	if !ok || !u.Active {
		return nil, ErrUserNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) CreatePseudocode(_ context.Context, code string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &User{Pseudocode: code, CreatedAt: time.Now(), Active: true}
	m.users[code] = u
	cp := *u
	return &cp, nil
}

// Activities returns a copy of recorded activities, newest last.
func (m *MemoryStore) Activities() []Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Activity, len(m.activities))
	copy(out, m.activities)
	return out
}
