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

// Package observability provides prometheus-exported metrics, optional
// tracing, and the SQL performance-sample recorder.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service's instruments. The zero value is a no-op,
// used when metrics are disabled.
type Metrics struct {
	admissions    metric.Int64Counter
	stageDuration metric.Float64Histogram
	pipelineRuns  metric.Int64Counter
	logins        metric.Int64Counter
}

// InitMetrics wires an otel meter to the prometheus exporter and
// creates the instruments. Disabled metrics return a no-op Metrics.
func InitMetrics(enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("tenselens")

	admissions, err := meter.Int64Counter(
		"tenselens_admission_decisions_total",
		metric.WithDescription("Rate limiter decisions by outcome and reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admissions counter: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		"tenselens_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}

	pipelineRuns, err := meter.Int64Counter(
		"tenselens_pipeline_runs_total",
		metric.WithDescription("Total pipeline runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline runs counter: %w", err)
	}

	logins, err := meter.Int64Counter(
		"tenselens_logins_total",
		metric.WithDescription("Total successful logins"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logins counter: %w", err)
	}

	return &Metrics{
		admissions:    admissions,
		stageDuration: stageDuration,
		pipelineRuns:  pipelineRuns,
		logins:        logins,
	}, nil
}

// RecordAdmission counts one limiter decision.
func (m *Metrics) RecordAdmission(ctx context.Context, allowed bool, reason string) {
	if m.admissions == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.Bool("allowed", allowed)}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	m.admissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStage observes one stage duration.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	if m.stageDuration == nil {
		return
	}
	m.stageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordPipelineRun counts one pipeline run.
func (m *Metrics) RecordPipelineRun(ctx context.Context, success bool, failedStage string) {
	if m.pipelineRuns == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.Bool("success", success)}
	if failedStage != "" {
		attrs = append(attrs, attribute.String("failed_stage", failedStage))
	}
	m.pipelineRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLogin counts one successful login.
func (m *Metrics) RecordLogin(ctx context.Context) {
	if m.logins == nil {
		return
	}
	m.logins.Add(ctx, 1)
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
