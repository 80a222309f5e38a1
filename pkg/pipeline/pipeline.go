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

// Package pipeline runs the three-stage tense inference pipeline
// (translate, classify, explain) and streams progress events to the
// caller while it runs.
//
// A stage failure degrades the result instead of aborting the stream:
// the client always receives exactly one terminal event once streaming
// has begun. Performance samples are recorded after the terminal event
// and never affect the response.
package pipeline

import "context"

// Stage names used in results, performance samples, and metrics.
const (
	StageTranslation    = "translation"
	StageClassification = "classification"
	StageExplanation    = "explanation"
)

// Classification is the tense label pair produced by the classifier.
type Classification struct {
	Coarse     string  `json:"coarse_label"`
	Fine       string  `json:"fine_label"`
	FineCode   string  `json:"fine_code,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Alternatives are lower-confidence candidate labels, most likely
	// first.
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Alternative is a candidate label the classifier considered but did
// not pick.
type Alternative struct {
	FineLabel  string  `json:"fine_label"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Result accumulates the outcome of one pipeline run.
type Result struct {
	InputThai   string  `json:"input_thai"`
	Translation string  `json:"translation"`
	CoarseLabel string  `json:"coarse_label"`
	FineLabel   string  `json:"fine_label"`
	Confidence  float64 `json:"confidence,omitempty"`
	Explanation string  `json:"explanation"`

	// Success is false when any stage failed; FailedStage names the
	// first failure.
	Success     bool   `json:"success"`
	FailedStage string `json:"failed_stage,omitempty"`

	// StageMillis holds per-stage elapsed time. A stage that never ran
	// has no entry.
	StageMillis map[string]int64 `json:"stage_millis,omitempty"`
}

// Event is one frame of the progress stream. Stage and Progress are
// monotonically non-decreasing across a stream; Progress reaches 100
// only on the terminal event, which sets Complete and carries the
// accumulated result.
type Event struct {
	Stage       int    `json:"stage"`
	Progress    int    `json:"progress"`
	Message     string `json:"message,omitempty"`
	MessageThai string `json:"message_thai,omitempty"`

	Complete bool               `json:"complete,omitempty"`
	Result   *Result            `json:"result,omitempty"`
	Sections map[string]Section `json:"explanation_sections,omitempty"`
}

// Translator turns a Thai sentence into English.
type Translator interface {
	Translate(ctx context.Context, thaiText string) (string, error)
}

// Classifier labels the tense of an English sentence.
type Classifier interface {
	Classify(ctx context.Context, englishText string) (Classification, error)
}

// Explainer produces a sectioned grammar explanation for a classified
// sentence. The output uses "[SECTION n: Title]" markers.
type Explainer interface {
	Explain(ctx context.Context, result *Result) (string, error)
}

// Sample is one performance record handed to the Recorder after every
// run, successful or not.
type Sample struct {
	InputLength int
	StageMillis map[string]int64
	Success     bool
	FailedStage string
}

// Recorder persists performance samples. Recording is best-effort:
// errors are logged by the orchestrator and never reach the client.
type Recorder interface {
	Record(ctx context.Context, s Sample) error
}
