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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tenselens/tenselens/pkg/session"
)

var pseudocodePattern = regexp.MustCompile(`^\d{5}$`)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func clientMeta(r *http.Request) session.ClientMeta {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return session.ClientMeta{
		UserAgent: r.UserAgent(),
		IPAddress: strings.Trim(host, "[]"),
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pseudocode string `json:"pseudocode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "request body must be JSON with a pseudocode field")
		return
	}
	if !pseudocodePattern.MatchString(req.Pseudocode) {
		writeError(w, http.StatusBadRequest, "invalid_pseudocode", "pseudocode must be five digits")
		return
	}

	user, err := s.deps.Sessions.VerifyPseudocode(r.Context(), req.Pseudocode)
	if err != nil {
		if errors.Is(err, session.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown_pseudocode", "no active account for that pseudocode")
			return
		}
		s.logger.Error("Pseudocode lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}

	meta := clientMeta(r)

	// Logging in from a second device supersedes the first session;
	// tell the client so it can warn the user.
	conflict := false
	if prior, err := s.deps.Sessions.GetActive(r.Context(), user.Pseudocode); err != nil {
		s.logger.Warn("Active-session lookup failed", "error", err)
	} else if prior != nil {
		conflict = true
		_ = s.deps.Sessions.RecordActivity(r.Context(), session.Activity{
			UserID:       user.Pseudocode,
			SessionToken: prior.Token,
			Type:         session.ActivityForcedLogout,
			Detail:       "superseded by new login",
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		})
	}

	sess, err := s.deps.Sessions.Create(r.Context(), user.Pseudocode, meta)
	if err != nil {
		s.logger.Error("Session creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}

	_ = s.deps.Sessions.RecordActivity(r.Context(), session.Activity{
		UserID:       user.Pseudocode,
		SessionToken: sess.Token,
		Type:         session.ActivityLogin,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	s.deps.Metrics.RecordLogin(r.Context())

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.Pseudocode,
		"conflict": conflict,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	if err := s.deps.Sessions.Invalidate(r.Context(), sess); err != nil {
		s.logger.Error("Session invalidation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "logout failed")
		return
	}
	meta := clientMeta(r)
	_ = s.deps.Sessions.RecordActivity(r.Context(), session.Activity{
		UserID:       sess.UserID,
		SessionToken: sess.Token,
		Type:         session.ActivityLogout,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleValidate serves the as-you-type validation summary. It sits
// outside the session and rate-limit middleware: it consumes no budget.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "request body must be JSON with a text field")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Validator.Summarize(req.Text))
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Limiter.Usage(s.identity(r)))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Limiter.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"reason": "database unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
