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

package config

import "fmt"

// SessionConfig defines single-device session settings.
type SessionConfig struct {
	// IdleTimeoutMinutes is the idle timeout after which a session
	// expires. Expiry is detected on-demand during validation; the
	// opportunistic sweep only reclaims rows for sessions that never
	// come back.
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes,omitempty" json:"idle_timeout_minutes,omitempty"`

	// CleanupProbability is the chance, per validated request, that a
	// bulk expiry sweep runs. Replaces a dedicated scheduler thread.
	CleanupProbability float64 `yaml:"cleanup_probability,omitempty" json:"cleanup_probability,omitempty"`

	// CookieName is the name of the session token cookie.
	CookieName string `yaml:"cookie_name,omitempty" json:"cookie_name,omitempty"`
}

// SetDefaults applies default values to the session config.
func (c *SessionConfig) SetDefaults() {
	if c.IdleTimeoutMinutes == 0 {
		c.IdleTimeoutMinutes = 15
	}
	if c.CleanupProbability == 0 {
		c.CleanupProbability = 0.01
	}
	if c.CookieName == "" {
		c.CookieName = "tenselens_session"
	}
}

// Validate validates the session config.
func (c *SessionConfig) Validate() error {
	if c.IdleTimeoutMinutes < 1 {
		return fmt.Errorf("idle_timeout_minutes must be positive, got %d", c.IdleTimeoutMinutes)
	}
	if c.CleanupProbability < 0 || c.CleanupProbability > 1 {
		return fmt.Errorf("cleanup_probability must be in [0,1], got %g", c.CleanupProbability)
	}
	return nil
}
