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

// RateLimitConfig defines admission-control limiter settings.
//
// The limiter is in-memory and per-process: distinct worker processes each
// enforce their own independent limits. Deploy a single process when the
// limits must hold globally.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// PerIdentityRequests is the maximum accepted requests per identity
	// per PerIdentityWindow.
	PerIdentityRequests int `yaml:"per_identity_requests,omitempty" json:"per_identity_requests,omitempty"`

	// PerIdentityWindow is the per-identity window in seconds.
	PerIdentityWindow int `yaml:"per_identity_window,omitempty" json:"per_identity_window,omitempty"`

	// GlobalRequests is the maximum accepted requests system-wide per
	// GlobalWindow.
	GlobalRequests int `yaml:"global_requests,omitempty" json:"global_requests,omitempty"`

	// GlobalWindow is the global window in seconds.
	GlobalWindow int `yaml:"global_window,omitempty" json:"global_window,omitempty"`

	// MinInterval is the minimum number of seconds between two accepted
	// requests from the same identity.
	MinInterval int `yaml:"min_interval,omitempty" json:"min_interval,omitempty"`

	// DuplicateCacheTTL is the number of seconds a request fingerprint is
	// remembered for duplicate suppression.
	DuplicateCacheTTL int `yaml:"duplicate_cache_ttl,omitempty" json:"duplicate_cache_ttl,omitempty"`
}

// SetDefaults applies default values to the rate limit config.
func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.PerIdentityRequests == 0 {
		c.PerIdentityRequests = 2
	}
	if c.PerIdentityWindow == 0 {
		c.PerIdentityWindow = 60
	}
	if c.GlobalRequests == 0 {
		c.GlobalRequests = 10
	}
	if c.GlobalWindow == 0 {
		c.GlobalWindow = 60
	}
	if c.MinInterval == 0 {
		c.MinInterval = 15
	}
	if c.DuplicateCacheTTL == 0 {
		c.DuplicateCacheTTL = 30
	}
}

// IsEnabled returns true if rate limiting is enabled.
func (c *RateLimitConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// Validate validates the rate limit config.
func (c *RateLimitConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.PerIdentityRequests < 1 {
		return fmt.Errorf("per_identity_requests must be positive, got %d", c.PerIdentityRequests)
	}
	if c.PerIdentityWindow < 1 {
		return fmt.Errorf("per_identity_window must be positive, got %d", c.PerIdentityWindow)
	}
	if c.GlobalRequests < 1 {
		return fmt.Errorf("global_requests must be positive, got %d", c.GlobalRequests)
	}
	if c.GlobalWindow < 1 {
		return fmt.Errorf("global_window must be positive, got %d", c.GlobalWindow)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("min_interval must be non-negative, got %d", c.MinInterval)
	}
	if c.DuplicateCacheTTL < 0 {
		return fmt.Errorf("duplicate_cache_ttl must be non-negative, got %d", c.DuplicateCacheTTL)
	}
	return nil
}
