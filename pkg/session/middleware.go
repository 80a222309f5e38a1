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
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

type contextKey struct{}

// FromContext returns the authenticated session placed on the request
// context by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// MiddlewareConfig configures the session validation middleware.
type MiddlewareConfig struct {
	Manager     *Manager
	CookieName  string
	IdleTimeout time.Duration

	// LoginPath is where browser clients are redirected when their
	// session is missing or expired.
	LoginPath string

	// CleanupProbability triggers a background bulk expiry sweep on
	// roughly that fraction of requests. Zero disables it.
	CleanupProbability float64

	Logger *slog.Logger
}

// Middleware validates the session cookie on every request and puts the
// session on the request context. Requests without a valid session get
// a 401 JSON body, or a redirect to LoginPath for browser clients.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.CleanupProbability > 0 && rand.Float64() < cfg.CleanupProbability {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					n, err := cfg.Manager.CleanupExpired(ctx, cfg.IdleTimeout)
					if err != nil {
						logger.Warn("Session cleanup sweep failed", "error", err)
					} else if n > 0 {
						logger.Info("Expired idle sessions", "count", n)
					}
				}()
			}

			token := ""
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				token = c.Value
			}

			sess, status, err := cfg.Manager.Validate(r.Context(), token, cfg.IdleTimeout)
			if err != nil {
				logger.Error("Session validation failed", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			switch status {
			case StatusValid:
				next.ServeHTTP(w, r.WithContext(
					context.WithValue(r.Context(), contextKey{}, sess)))
			case StatusExpired:
				// Validate already deactivated the session; leave an
				// audit trail before rejecting.
				if sess != nil {
					_ = cfg.Manager.RecordActivity(r.Context(), Activity{
						UserID:       sess.UserID,
						SessionToken: sess.Token,
						Type:         ActivityTimeoutLogout,
						Detail:       "session idle timeout",
						IPAddress:    remoteHost(r),
						UserAgent:    r.UserAgent(),
					})
				}
				rejectUnauthenticated(w, r, cfg.CookieName, loginPath, "session_expired", "idle_timeout")
			default:
				rejectUnauthenticated(w, r, cfg.CookieName, loginPath, "unauthorized", "no_active_session")
			}
		})
	}
}

func rejectUnauthenticated(w http.ResponseWriter, r *http.Request, cookieName, loginPath, errCode, reason string) {
	if cookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
	if wantsHTML(r) {
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":  errCode,
		"reason": reason,
	})
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") &&
		!strings.Contains(accept, "application/json")
}

func remoteHost(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
