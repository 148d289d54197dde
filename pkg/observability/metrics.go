// Copyright 2025 LangChain, Inc.
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
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records supervisor-level measurements. Implementations must be
// safe for concurrent use.
type Metrics interface {
	// RecordAgentRun records one top-level supervisor invocation.
	RecordAgentRun(ctx context.Context, agent string, duration time.Duration, err error)

	// RecordDelegation records one handoff to a sub-agent.
	RecordDelegation(ctx context.Context, target string, duration time.Duration, err error)

	// RecordLLMCall records one model request with token usage.
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)

	// RecordHTTPRequest records one served HTTP request.
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, responseSize int64)
}

var (
	globalMetrics Metrics = NoopMetrics{}
	metricsMu     sync.RWMutex
)

// SetGlobalMetrics installs the process-wide metrics recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics recorder, never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordAgentRun(context.Context, string, time.Duration, error) {}
func (NoopMetrics) RecordDelegation(context.Context, string, time.Duration, error) {
}
func (NoopMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {}
func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration, int64) {
}

var _ Metrics = NoopMetrics{}

// PrometheusMetrics exposes measurements through a Prometheus registry.
// All recorders are nil-safe so a zero value can stand in when metrics are
// disabled.
type PrometheusMetrics struct {
	agentDuration      metric.Float64Histogram
	agentRunsTotal     metric.Int64Counter
	agentErrorsTotal   metric.Int64Counter
	delegationDuration metric.Float64Histogram
	delegationsTotal   metric.Int64Counter
	delegationErrors   metric.Int64Counter
	llmDuration        metric.Float64Histogram
	llmInputTokens     metric.Int64Counter
	llmOutputTokens    metric.Int64Counter
	llmErrorsTotal     metric.Int64Counter
	httpDuration       metric.Float64Histogram
	httpRequestsTotal  metric.Int64Counter

	handler http.Handler
}

// initMetrics builds the Prometheus-backed recorder. A dedicated registry
// keeps the /metrics output limited to supervisor series.
func initMetrics(registry *promclient.Registry) (*PrometheusMetrics, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter("supervisor")

	m := &PrometheusMetrics{
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	instruments := []struct {
		hist *metric.Float64Histogram
		ctr  *metric.Int64Counter
		name string
		desc string
	}{
		{hist: &m.agentDuration, name: "supervisor_run_duration_seconds", desc: "Supervisor run duration in seconds"},
		{ctr: &m.agentRunsTotal, name: "supervisor_runs_total", desc: "Total supervisor runs"},
		{ctr: &m.agentErrorsTotal, name: "supervisor_run_errors_total", desc: "Total failed supervisor runs"},
		{hist: &m.delegationDuration, name: "supervisor_delegation_duration_seconds", desc: "Sub-agent delegation duration in seconds"},
		{ctr: &m.delegationsTotal, name: "supervisor_delegations_total", desc: "Total sub-agent delegations"},
		{ctr: &m.delegationErrors, name: "supervisor_delegation_errors_total", desc: "Total failed sub-agent delegations"},
		{hist: &m.llmDuration, name: "supervisor_llm_request_duration_seconds", desc: "LLM request duration in seconds"},
		{ctr: &m.llmInputTokens, name: "supervisor_llm_tokens_input_total", desc: "Total input tokens sent to the LLM"},
		{ctr: &m.llmOutputTokens, name: "supervisor_llm_tokens_output_total", desc: "Total output tokens from the LLM"},
		{ctr: &m.llmErrorsTotal, name: "supervisor_llm_errors_total", desc: "Total failed LLM requests"},
		{hist: &m.httpDuration, name: "supervisor_http_request_duration_seconds", desc: "HTTP request duration in seconds"},
		{ctr: &m.httpRequestsTotal, name: "supervisor_http_requests_total", desc: "Total HTTP requests served"},
	}
	for _, inst := range instruments {
		if inst.hist != nil {
			*inst.hist, err = meter.Float64Histogram(inst.name, metric.WithDescription(inst.desc))
		} else {
			*inst.ctr, err = meter.Int64Counter(inst.name, metric.WithDescription(inst.desc))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create instrument %s: %w", inst.name, err)
		}
	}

	return m, nil
}

// Handler serves the Prometheus scrape endpoint.
func (m *PrometheusMetrics) Handler() http.Handler {
	if m == nil || m.handler == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *PrometheusMetrics) RecordAgentRun(ctx context.Context, agent string, duration time.Duration, err error) {
	if m == nil || m.agentDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("agent", agent))
	m.agentDuration.Record(ctx, duration.Seconds(), attrs)
	m.agentRunsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.agentErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordDelegation(ctx context.Context, target string, duration time.Duration, err error) {
	if m == nil || m.delegationDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("target", target))
	m.delegationDuration.Record(ctx, duration.Seconds(), attrs)
	m.delegationsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.delegationErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if inputTokens > 0 {
		m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	}
	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, responseSize int64) {
	if m == nil || m.httpDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", statusCode),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
}

var _ Metrics = (*PrometheusMetrics)(nil)
