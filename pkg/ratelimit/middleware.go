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
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// maxFingerprintBody bounds how much of the request body is read for
// fingerprinting.
const maxFingerprintBody = 64 << 10

// IdentityFunc resolves the rate-limit identity for a request.
type IdentityFunc func(r *http.Request) string

// IPIdentity derives the identity from the client network origin.
// Used as the fallback when no authenticated identity is available.
func IPIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip_" + host
}

// MiddlewareConfig configures the admission middleware.
type MiddlewareConfig struct {
	// Limiter is the admission controller. Required.
	Limiter *Limiter

	// Identity resolves the caller identity. Defaults to IPIdentity.
	Identity IdentityFunc

	// OnRejected is invoked for rejected requests. Defaults to a JSON
	// 429 response carrying the retry hint.
	OnRejected func(w http.ResponseWriter, r *http.Request, d Decision)
}

// Middleware returns an HTTP middleware enforcing admission control.
//
// The request body (up to 64 KiB) plus the request path form the
// duplicate-detection fingerprint; the body is restored for downstream
// handlers. Rejections are logged at info level: they are expected
// operation, not errors.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Identity == nil {
		cfg.Identity = IPIdentity
	}
	if cfg.OnRejected == nil {
		cfg.OnRejected = WriteRejection
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity := cfg.Identity(r)
			fingerprint := requestFingerprint(r)

			decision := cfg.Limiter.Check(identity, fingerprint)
			if !decision.Allowed {
				slog.Info("Request rejected by rate limiter",
					"identity", identity,
					"reason", decision.Reason,
					"retry_after", decision.RetryAfter)
				cfg.OnRejected(w, r, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestFingerprint hashes the body and path. The body is replaced with
// a fresh reader so downstream handlers see it untouched.
func requestFingerprint(r *http.Request) string {
	if r.Body == nil {
		return Fingerprint(r.URL.Path)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBody))
	_ = r.Body.Close()
	if err != nil {
		return Fingerprint(r.URL.Path)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	return Fingerprint(string(body), r.URL.Path)
}

// WriteRejection sends the structured 429 response. It is the default
// OnRejected handler and is exported for callers that wrap it.
// Machine clients get JSON; interactive clients get a plain notice. Both
// carry the same Retry-After semantics.
func WriteRejection(w http.ResponseWriter, r *http.Request, d Decision) {
	w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))

	if acceptsHTML(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "Rate limit exceeded: "+d.Message+"\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":       "Rate limit exceeded",
		"message":     d.Message,
		"retry_after": d.RetryAfter,
	})
}

func acceptsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
