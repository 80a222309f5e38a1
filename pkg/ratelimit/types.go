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
	"hash/fnv"
)

// Reason identifies why a request was rejected.
type Reason string

const (
	// ReasonDuplicate means the same fingerprint was seen recently.
	ReasonDuplicate Reason = "duplicate_request"

	// ReasonTooFrequent means the minimum inter-request interval was not
	// respected.
	ReasonTooFrequent Reason = "too_frequent"

	// ReasonPerIdentityLimit means the identity's window is full.
	ReasonPerIdentityLimit Reason = "per_identity_limit"

	// ReasonGlobalLimit means the system-wide window is full.
	ReasonGlobalLimit Reason = "global_limit"
)

// Decision is the outcome of an admission check.
// It is a value, never an error: rejection is expected operation.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Reason is set when the request was rejected.
	Reason Reason `json:"reason,omitempty"`

	// Message is a human-readable explanation including the wait time.
	Message string `json:"message,omitempty"`

	// RetryAfter is the whole number of seconds the caller should wait
	// before retrying. Zero when allowed.
	RetryAfter int `json:"retry_after,omitempty"`
}

// allowed is the decision for an admitted request.
var allowed = Decision{Allowed: true}

func rejected(reason Reason, retryAfter int, format string, args ...any) Decision {
	return Decision{
		Reason:     reason,
		Message:    fmt.Sprintf(format, args...),
		RetryAfter: retryAfter,
	}
}

// Stats is a read-only snapshot of limiter state.
type Stats struct {
	// ActiveIdentities is the number of identities with at least one
	// request in the current window.
	ActiveIdentities int `json:"active_identities"`

	// GlobalRequestsInWindow is the number of accepted requests in the
	// current global window.
	GlobalRequestsInWindow int `json:"global_requests_in_window"`

	// CachedFingerprints is the number of live duplicate-cache entries.
	CachedFingerprints int `json:"cached_fingerprints"`

	// PerIdentityLimit is the configured per-identity cap.
	PerIdentityLimit int `json:"per_identity_limit"`

	// GlobalLimit is the configured global cap.
	GlobalLimit int `json:"global_limit"`
}

// Usage describes one identity's position against the limits.
// Served to callers so clients can display wait times up front.
type Usage struct {
	// IdentityRequests is the identity's accepted requests in the
	// current window.
	IdentityRequests int `json:"identity_requests"`

	// IdentityLimit is the per-identity cap.
	IdentityLimit int `json:"identity_limit"`

	// GlobalRequests is the accepted requests in the global window.
	GlobalRequests int `json:"global_requests"`

	// GlobalLimit is the global cap.
	GlobalLimit int `json:"global_limit"`

	// NextAllowedIn is the seconds until the minimum-interval policy
	// permits another request. Zero when a request would be allowed now.
	NextAllowedIn int `json:"next_allowed_in"`

	// MinInterval is the configured minimum interval in seconds.
	MinInterval int `json:"min_interval"`
}

// Fingerprint derives a duplicate-detection fingerprint from request
// content. FNV-1a, not a cryptographic hash: collisions are possible but
// unlikely, and the duplicate cache is a best-effort double-submit guard,
// not a security control.
func Fingerprint(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
