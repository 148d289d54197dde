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

// Package observability wires OpenTelemetry tracing and Prometheus metrics
// for the supervisor server.
package observability

import (
	"context"
	"net/http"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
)

// Manager owns the tracer provider and metrics recorder for one process.
type Manager struct {
	cfg            config.ObservabilityConfig
	tracerProvider trace.TracerProvider
	metrics        Metrics
	metricsHandler http.Handler
	mu             sync.RWMutex
}

// NewManager creates a manager from config. Call Initialize before use.
func NewManager(cfg config.ObservabilityConfig) *Manager {
	return &Manager{cfg: cfg}
}

// NoopManager returns a manager with tracing and metrics disabled.
func NoopManager() *Manager {
	m := NewManager(config.ObservabilityConfig{})
	_ = m.Initialize(context.Background())
	return m
}

// Initialize sets up the exporters. Disabled subsystems get noop
// implementations so callers never nil-check.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := initTracer(ctx, m.cfg.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	if m.cfg.Metrics.Enabled {
		metrics, err := initMetrics(promclient.NewRegistry())
		if err != nil {
			return err
		}
		m.metrics = metrics
		m.metricsHandler = metrics.Handler()
	} else {
		m.metrics = NoopMetrics{}
		m.metricsHandler = (*PrometheusMetrics)(nil).Handler()
	}
	SetGlobalMetrics(m.metrics)

	return nil
}

// GetTracer returns a named tracer from the manager's provider.
func (m *Manager) GetTracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// GetMetrics returns the metrics recorder, never nil after Initialize.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return NoopMetrics{}
	}
	return m.metrics
}

// MetricsHandler returns the Prometheus scrape handler.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metricsHandler == nil {
		return (*PrometheusMetrics)(nil).Handler()
	}
	return m.metricsHandler
}

// Shutdown flushes pending spans.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tp, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return tp.Shutdown(ctx)
	}
	return nil
}
