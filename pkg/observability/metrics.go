// Copyright 2025 Kadir Pekel
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

package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the Prometheus-backed metrics pipeline.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Metrics holds the router's instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	runDuration        metric.Float64Histogram
	runs               metric.Int64Counter
	stepDuration       metric.Float64Histogram
	steps              metric.Int64Counter
	invocationDuration metric.Float64Histogram
	invocations        metric.Int64Counter
	httpDuration       metric.Float64Histogram
	httpRequests       metric.Int64Counter
}

var globalMetrics atomic.Pointer[Metrics]

// InitMetrics builds the OTel meter over the Prometheus exporter and
// installs the instruments globally. The exporter registers with the default
// Prometheus registry, served by the HTTP /metrics endpoint.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("switchboard")

	m := &Metrics{}

	if m.runDuration, err = meter.Float64Histogram(
		"switchboard_run_duration_seconds",
		metric.WithDescription("Plan run duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter(
		"switchboard_runs_total",
		metric.WithDescription("Total plan runs by outcome"),
	); err != nil {
		return nil, err
	}
	if m.stepDuration, err = meter.Float64Histogram(
		"switchboard_step_duration_seconds",
		metric.WithDescription("Step execution duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.steps, err = meter.Int64Counter(
		"switchboard_steps_total",
		metric.WithDescription("Total executed steps by status"),
	); err != nil {
		return nil, err
	}
	if m.invocationDuration, err = meter.Float64Histogram(
		"switchboard_invocation_duration_seconds",
		metric.WithDescription("Tool invocation duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.invocations, err = meter.Int64Counter(
		"switchboard_invocations_total",
		metric.WithDescription("Total tool invocations by terminal state"),
	); err != nil {
		return nil, err
	}
	if m.httpDuration, err = meter.Float64Histogram(
		"switchboard_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.httpRequests, err = meter.Int64Counter(
		"switchboard_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, err
	}

	globalMetrics.Store(m)
	return m, nil
}

// RecordRun records a completed plan run.
func RecordRun(ctx context.Context, planID, outcome string, d time.Duration) {
	m := globalMetrics.Load()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("plan", planID),
		attribute.String("outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordStep records a settled step.
func RecordStep(ctx context.Context, stepID, status string, d time.Duration) {
	m := globalMetrics.Load()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("step", stepID),
		attribute.String("status", status),
	)
	m.steps.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordInvocation records a settled tool invocation.
func RecordInvocation(ctx context.Context, toolName, state string, d time.Duration) {
	m := globalMetrics.Load()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("state", state),
	)
	m.invocations.Add(ctx, 1, attrs)
	m.invocationDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	m := globalMetrics.Load()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
}
