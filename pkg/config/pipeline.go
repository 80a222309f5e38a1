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

// StageConfig holds settings for one remote inference stage.
type StageConfig struct {
	// Endpoint is the HTTP endpoint of the stage service. Empty means
	// the built-in mock stage is used.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// TimeoutSeconds bounds a single stage call.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// MaxRetries is the number of retries on transient failures.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// SetDefaults applies default values to the stage config.
func (c *StageConfig) SetDefaults(timeoutSeconds int) {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = timeoutSeconds
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

// PipelineConfig holds settings for the three inference stages.
type PipelineConfig struct {
	// Translate is the Thai-to-English translation stage.
	Translate StageConfig `yaml:"translate,omitempty" json:"translate,omitempty"`

	// Classify is the tense classification stage.
	Classify StageConfig `yaml:"classify,omitempty" json:"classify,omitempty"`

	// Explain is the grammar explanation stage. Slowest of the three;
	// gets a larger default timeout.
	Explain StageConfig `yaml:"explain,omitempty" json:"explain,omitempty"`
}

// SetDefaults applies default values to the pipeline config.
func (c *PipelineConfig) SetDefaults() {
	c.Translate.SetDefaults(15)
	c.Classify.SetDefaults(10)
	c.Explain.SetDefaults(30)
}

// Validate validates the pipeline config.
func (c *PipelineConfig) Validate() error {
	for name, stage := range map[string]StageConfig{
		"translate": c.Translate,
		"classify":  c.Classify,
		"explain":   c.Explain,
	} {
		if stage.TimeoutSeconds < 1 {
			return fmt.Errorf("%s.timeout_seconds must be positive, got %d", name, stage.TimeoutSeconds)
		}
		if stage.MaxRetries < 0 {
			return fmt.Errorf("%s.max_retries must be non-negative, got %d", name, stage.MaxRetries)
		}
	}
	return nil
}

// ValidationConfig holds input validation settings.
type ValidationConfig struct {
	// MaxTokens is the maximum estimated token count of the input.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// MinThaiPercentage is the minimum fraction of Thai-script
	// characters required in the input.
	MinThaiPercentage float64 `yaml:"min_thai_percentage,omitempty" json:"min_thai_percentage,omitempty"`

	// ProfanityFilter enables the profanity word filter.
	ProfanityFilter *bool `yaml:"profanity_filter,omitempty" json:"profanity_filter,omitempty"`
}

// SetDefaults applies default values to the validation config.
func (c *ValidationConfig) SetDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 500
	}
	if c.MinThaiPercentage == 0 {
		c.MinThaiPercentage = 0.8
	}
	if c.ProfanityFilter == nil {
		c.ProfanityFilter = BoolPtr(true)
	}
}

// IsProfanityFilterEnabled reports whether the profanity filter is on.
func (c *ValidationConfig) IsProfanityFilterEnabled() bool {
	return c.ProfanityFilter == nil || *c.ProfanityFilter
}

// Validate validates the validation config.
func (c *ValidationConfig) Validate() error {
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.MinThaiPercentage < 0 || c.MinThaiPercentage > 1 {
		return fmt.Errorf("min_thai_percentage must be in [0,1], got %g", c.MinThaiPercentage)
	}
	return nil
}
