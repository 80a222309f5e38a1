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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Orchestrator drives the three stages in order and emits progress
// events. Safe for concurrent use; per-run state lives on the stack.
type Orchestrator struct {
	translator Translator
	classifier Classifier
	explainer  Explainer
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a performance recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator over the three stage implementations.
func New(t Translator, c Classifier, e Explainer, opts ...Option) (*Orchestrator, error) {
	if t == nil || c == nil || e == nil {
		return nil, fmt.Errorf("all three stages are required")
	}
	o := &Orchestrator{
		translator: t,
		classifier: c,
		explainer:  e,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes the pipeline on thaiText, calling emit for every stream
// event in order. The last call to emit is always the single terminal
// event with Complete set, whatever happened in between. Run returns
// the accumulated result for callers that do not stream.
//
// ctx bounds the stage calls; a cancelled context surfaces as stage
// failures, not as a truncated stream.
func (o *Orchestrator) Run(ctx context.Context, thaiText string, emit func(Event)) *Result {
	res := &Result{
		InputThai:   thaiText,
		Success:     true,
		StageMillis: make(map[string]int64),
	}

	emit(Event{
		Stage: 0, Progress: 0,
		Message:     "Starting analysis",
		MessageThai: "เริ่มการวิเคราะห์",
	})

	o.runTranslation(ctx, res, emit)
	o.runClassification(ctx, res, emit)
	o.runExplanation(ctx, res, emit)

	emit(Event{
		Stage: 3, Progress: 100,
		Complete: true,
		Result:   res,
		Sections: ParseExplanation(res.Explanation),
	})

	o.record(res)
	return res
}

func (o *Orchestrator) runTranslation(ctx context.Context, res *Result, emit func(Event)) {
	emit(Event{
		Stage: 1, Progress: 10,
		Message:     "Translating to English",
		MessageThai: "กำลังแปลเป็นภาษาอังกฤษ",
	})

	start := o.now()
	translation, err := o.translator.Translate(ctx, res.InputThai)
	res.StageMillis[StageTranslation] = o.now().Sub(start).Milliseconds()

	if err != nil {
		o.logger.Warn("Translation stage failed", "error", err)
		res.Translation = "Translation service unavailable"
		res.markFailed(StageTranslation)
		return
	}
	res.Translation = translation

	emit(Event{
		Stage: 1, Progress: 40,
		Message:     "Translation complete",
		MessageThai: "แปลเสร็จแล้ว",
	})
}

func (o *Orchestrator) runClassification(ctx context.Context, res *Result, emit func(Event)) {
	// A failed translation leaves nothing to classify.
	if res.FailedStage == StageTranslation {
		res.CoarseLabel = "UNKNOWN"
		res.FineLabel = "UNKNOWN"
		return
	}

	emit(Event{
		Stage: 2, Progress: 45,
		Message:     "Classifying tense",
		MessageThai: "กำลังจำแนก tense",
	})

	start := o.now()
	c, err := o.classifier.Classify(ctx, res.Translation)
	res.StageMillis[StageClassification] = o.now().Sub(start).Milliseconds()

	if err != nil {
		o.logger.Warn("Classification stage failed", "error", err)
		res.CoarseLabel = "UNKNOWN"
		res.FineLabel = "UNKNOWN"
		res.markFailed(StageClassification)
		return
	}
	res.CoarseLabel = c.Coarse
	res.FineLabel = c.Fine
	res.Confidence = c.Confidence

	emit(Event{
		Stage: 2, Progress: 70,
		Message:     "Tense identified",
		MessageThai: "ระบุ tense แล้ว",
	})
}

func (o *Orchestrator) runExplanation(ctx context.Context, res *Result, emit func(Event)) {
	if res.FailedStage != "" {
		res.Explanation = "[SECTION 1: Context Cues]\nExplanation service unavailable"
		return
	}

	emit(Event{
		Stage: 3, Progress: 75,
		Message:     "Generating explanation",
		MessageThai: "กำลังสร้างคำอธิบาย",
	})

	start := o.now()
	explanation, err := o.explainer.Explain(ctx, res)
	res.StageMillis[StageExplanation] = o.now().Sub(start).Milliseconds()

	if err != nil {
		o.logger.Warn("Explanation stage failed", "error", err)
		res.Explanation = fmt.Sprintf("[SECTION 1: Context Cues]\nExplanation generation failed: %v", err)
		res.markFailed(StageExplanation)
		return
	}
	res.Explanation = explanation

	emit(Event{
		Stage: 3, Progress: 95,
		Message:     "Explanation ready",
		MessageThai: "คำอธิบายพร้อมแล้ว",
	})
}

func (r *Result) markFailed(stage string) {
	r.Success = false
	if r.FailedStage == "" {
		r.FailedStage = stage
	}
}

// record hands the run to the performance recorder. Failures here are
// logged and swallowed: the response to the caller is already final.
func (o *Orchestrator) record(res *Result) {
	if o.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := o.recorder.Record(ctx, Sample{
		InputLength: len([]rune(res.InputThai)),
		StageMillis: res.StageMillis,
		Success:     res.Success,
		FailedStage: res.FailedStage,
	})
	if err != nil {
		o.logger.Warn("Failed to record performance sample", "error", err)
	}
}
