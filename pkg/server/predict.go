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
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tenselens/tenselens/pkg/observability"
	"github.com/tenselens/tenselens/pkg/pipeline"
	"github.com/tenselens/tenselens/pkg/session"
)

// handlePredict streams pipeline progress over SSE. Once streaming has
// begun the client is guaranteed exactly one terminal event; failures
// before the first stage (malformed body, invalid input) instead
// produce a single error frame and close.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	var req struct {
		ThaiText string `json:"thai_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFrame(w, flusher, map[string]string{"error": "request body must be JSON with a thai_text field"})
		return
	}

	result := s.deps.Validator.Validate(req.ThaiText)
	if !result.Valid {
		s.writeFrame(w, flusher, map[string]any{
			"error":  result.Errors[0].Message.EN,
			"errors": result.Errors,
		})
		return
	}
	if len(result.Warnings) > 0 {
		// Surface advisory warnings before inference begins.
		s.writeFrame(w, flusher, map[string]any{
			"stage":    0,
			"progress": 0,
			"warnings": result.Warnings,
		})
	}

	// A disconnected client must not abort inference: the run completes
	// and its performance sample is still recorded.
	runCtx := context.WithoutCancel(r.Context())

	runCtx, span := observability.Tracer("tenselens/server").Start(runCtx, "pipeline.run",
		trace.WithAttributes(attribute.Int("input.runes", len([]rune(req.ThaiText)))))
	res := s.deps.Orchestrator.Run(runCtx, req.ThaiText, func(ev pipeline.Event) {
		s.writeFrame(w, flusher, ev)
	})
	span.SetAttributes(
		attribute.Bool("pipeline.success", res.Success),
		attribute.String("pipeline.failed_stage", res.FailedStage),
	)
	span.End()

	s.recordRun(runCtx, r, res)
}

func (s *Server) writeFrame(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode stream frame", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		// Client gone; the pipeline keeps running by contract.
		return
	}
	flusher.Flush()
}

func (s *Server) recordRun(ctx context.Context, r *http.Request, res *pipeline.Result) {
	s.deps.Metrics.RecordAdmission(ctx, true, "")
	s.deps.Metrics.RecordPipelineRun(ctx, res.Success, res.FailedStage)
	for stage, ms := range res.StageMillis {
		s.deps.Metrics.RecordStage(ctx, stage, float64(ms)/1000)
	}

	if sess := session.FromContext(r.Context()); sess != nil {
		meta := clientMeta(r)
		err := s.deps.Sessions.RecordActivity(ctx, session.Activity{
			UserID:       sess.UserID,
			SessionToken: sess.Token,
			Type:         session.ActivityTranslation,
			Detail:       truncate(res.InputThai, 200),
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		})
		if err != nil {
			s.logger.Warn("Failed to record translation activity", "error", err)
		}
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
