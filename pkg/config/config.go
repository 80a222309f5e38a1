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

// Package config defines the tenselens configuration model.
//
// Configuration is loaded from a single YAML file with ${VAR} environment
// expansion. Every section implements SetDefaults and Validate; a zero
// config is a valid development config (sqlite database, mock pipeline
// stages, limiter defaults).
package config

import "fmt"

// Config is the root configuration for the tenselens service.
type Config struct {
	// Server holds HTTP listener settings.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Database holds SQL connection settings for sessions, activity
	// records, and performance samples.
	Database DatabaseConfig `yaml:"database,omitempty" json:"database,omitempty"`

	// RateLimit holds admission-control limiter settings.
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`

	// Session holds single-device session settings.
	Session SessionConfig `yaml:"session,omitempty" json:"session,omitempty"`

	// Pipeline holds inference stage settings.
	Pipeline PipelineConfig `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`

	// Validation holds input validation settings.
	Validation ValidationConfig `yaml:"validation,omitempty" json:"validation,omitempty"`

	// Observability holds metrics and tracing settings.
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// SetDefaults applies defaults to all sections.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Session.SetDefaults()
	c.Pipeline.SetDefaults()
	c.Validation.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Host is the listen address.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the listen port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// SecureCookies marks the session cookie Secure; enable behind TLS.
	SecureCookies bool `yaml:"secure_cookies,omitempty" json:"secure_cookies,omitempty"`

	// ShutdownGraceSeconds bounds graceful shutdown. In-flight prediction
	// streams run to completion within this budget.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds,omitempty" json:"shutdown_grace_seconds,omitempty"`
}

// SetDefaults applies default values to the server config.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ShutdownGraceSeconds == 0 {
		c.ShutdownGraceSeconds = 90
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	// MetricsEnabled exposes prometheus metrics on /metrics.
	MetricsEnabled *bool `yaml:"metrics_enabled,omitempty" json:"metrics_enabled,omitempty"`

	// TracingEnabled installs a stdout span exporter. Intended for
	// debugging; leave off in production.
	TracingEnabled bool `yaml:"tracing_enabled,omitempty" json:"tracing_enabled,omitempty"`
}

// SetDefaults applies default values to the observability config.
func (c *ObservabilityConfig) SetDefaults() {
	if c.MetricsEnabled == nil {
		c.MetricsEnabled = BoolPtr(true)
	}
}

// IsMetricsEnabled returns true if metrics are enabled.
func (c *ObservabilityConfig) IsMetricsEnabled() bool {
	return c.MetricsEnabled != nil && *c.MetricsEnabled
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}
