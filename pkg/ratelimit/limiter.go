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

package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tenselens/tenselens/pkg/config"
)

// dupKey identifies a cached request fingerprint.
type dupKey struct {
	identity    string
	fingerprint string
}

// Limiter is the in-memory admission controller.
//
// Limiter is safe for concurrent use. Check never blocks on I/O; its cost
// is bounded by the number of timestamps inside the configured windows.
type Limiter struct {
	cfg *config.RateLimitConfig
	now func() time.Time

	mu sync.Mutex

	// identityTimes holds accepted-request timestamps per identity,
	// oldest first. Entries outside the window are swept lazily.
	identityTimes map[string][]time.Time

	// lastRequest holds the last accepted request time per identity,
	// for minimum-interval enforcement.
	lastRequest map[string]time.Time

	// globalTimes holds all accepted-request timestamps, oldest first.
	globalTimes []time.Time

	// duplicates maps (identity, fingerprint) to the time the
	// fingerprint was cached.
	duplicates map[dupKey]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source. Tests advance a fake
// clock instead of sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter from config.
func New(cfg *config.RateLimitConfig, opts ...Option) (*Limiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rate limit config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}

	l := &Limiter{
		cfg:           cfg,
		now:           time.Now,
		identityTimes: make(map[string][]time.Time),
		lastRequest:   make(map[string]time.Time),
		duplicates:    make(map[dupKey]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check decides whether a request from identity may proceed.
//
// fingerprint is an optional request-content fingerprint for duplicate
// suppression; pass "" to skip that policy. The whole decision, including
// the lazy sweep and the budget mutation on the allowed path, happens
// atomically under the limiter's lock. Rejected requests consume no
// budget.
func (l *Limiter) Check(identity, fingerprint string) Decision {
	if !l.cfg.IsEnabled() {
		return allowed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	// Duplicate suppression first: cheapest check, and it protects
	// against accidental double-submits before any shared budget is
	// consulted.
	if fingerprint != "" {
		if _, seen := l.duplicates[dupKey{identity, fingerprint}]; seen {
			return rejected(ReasonDuplicate, 5, "Duplicate request detected")
		}
	}

	if last, ok := l.lastRequest[identity]; ok {
		elapsed := now.Sub(last)
		minInterval := time.Duration(l.cfg.MinInterval) * time.Second
		if elapsed < minInterval {
			wait := ceilSeconds(minInterval - elapsed)
			return rejected(ReasonTooFrequent, wait,
				"Please wait %d seconds before making another request", wait)
		}
	}

	window := time.Duration(l.cfg.PerIdentityWindow) * time.Second
	if times := l.identityTimes[identity]; len(times) >= l.cfg.PerIdentityRequests {
		if age := now.Sub(times[0]); age < window {
			wait := ceilSeconds(window - age)
			return rejected(ReasonPerIdentityLimit, wait,
				"Too many requests. Try again in %d seconds", wait)
		}
	}

	globalWindow := time.Duration(l.cfg.GlobalWindow) * time.Second
	if len(l.globalTimes) >= l.cfg.GlobalRequests {
		if age := now.Sub(l.globalTimes[0]); age < globalWindow {
			wait := ceilSeconds(globalWindow - age)
			return rejected(ReasonGlobalLimit, wait,
				"Server busy. Try again in %d seconds", wait)
		}
	}

	l.identityTimes[identity] = append(l.identityTimes[identity], now)
	l.globalTimes = append(l.globalTimes, now)
	l.lastRequest[identity] = now
	if fingerprint != "" {
		l.duplicates[dupKey{identity, fingerprint}] = now
	}

	return allowed
}

// Stats returns a snapshot of limiter state after a sweep.
// It never mutates accepted-request budget.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(l.now())

	return Stats{
		ActiveIdentities:       len(l.identityTimes),
		GlobalRequestsInWindow: len(l.globalTimes),
		CachedFingerprints:     len(l.duplicates),
		PerIdentityLimit:       l.cfg.PerIdentityRequests,
		GlobalLimit:            l.cfg.GlobalRequests,
	}
}

// Usage returns one identity's position against the limits, for display
// to that caller. Read-only apart from the sweep.
func (l *Limiter) Usage(identity string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	var nextAllowed int
	if last, ok := l.lastRequest[identity]; ok {
		minInterval := time.Duration(l.cfg.MinInterval) * time.Second
		if elapsed := now.Sub(last); elapsed < minInterval {
			nextAllowed = ceilSeconds(minInterval - elapsed)
		}
	}

	return Usage{
		IdentityRequests: len(l.identityTimes[identity]),
		IdentityLimit:    l.cfg.PerIdentityRequests,
		GlobalRequests:   len(l.globalTimes),
		GlobalLimit:      l.cfg.GlobalRequests,
		NextAllowedIn:    nextAllowed,
		MinInterval:      l.cfg.MinInterval,
	}
}

// sweep drops entries that have aged out of their windows.
// Callers must hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	window := time.Duration(l.cfg.PerIdentityWindow) * time.Second
	for identity, times := range l.identityTimes {
		i := 0
		for i < len(times) && now.Sub(times[i]) > window {
			i++
		}
		if i == len(times) {
			delete(l.identityTimes, identity)
		} else if i > 0 {
			l.identityTimes[identity] = times[i:]
		}
	}

	globalWindow := time.Duration(l.cfg.GlobalWindow) * time.Second
	i := 0
	for i < len(l.globalTimes) && now.Sub(l.globalTimes[i]) > globalWindow {
		i++
	}
	if i > 0 {
		l.globalTimes = l.globalTimes[i:]
	}

	ttl := time.Duration(l.cfg.DuplicateCacheTTL) * time.Second
	for key, at := range l.duplicates {
		if now.Sub(at) >= ttl {
			delete(l.duplicates, key)
		}
	}

	// lastRequest entries older than the minimum interval no longer
	// influence decisions; drop them so idle identities do not
	// accumulate.
	minInterval := time.Duration(l.cfg.MinInterval) * time.Second
	for identity, at := range l.lastRequest {
		if now.Sub(at) >= minInterval {
			if _, live := l.identityTimes[identity]; !live {
				delete(l.lastRequest, identity)
			}
		}
	}
}

// ceilSeconds rounds a duration up to whole seconds, never below zero.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
