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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
)

func TestNilSafeRecording(t *testing.T) {
	ctx := context.Background()

	// A zero-value recorder stands in when metrics are disabled.
	var m *PrometheusMetrics
	m.RecordAgentRun(ctx, "supervisor", 100*time.Millisecond, nil)
	m.RecordDelegation(ctx, "researcher", 50*time.Millisecond, nil)
	m.RecordLLMCall(ctx, "gpt-4o", 500*time.Millisecond, 100, 50, nil)
	m.RecordHTTPRequest(ctx, http.MethodPost, "/agents/supervisor", 200, 10*time.Millisecond, 128)
}

func TestPrometheusMetricsExposition(t *testing.T) {
	metrics, err := initMetrics(promclient.NewRegistry())
	if err != nil {
		t.Fatalf("initMetrics failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordAgentRun(ctx, "supervisor", 120*time.Millisecond, nil)
	metrics.RecordDelegation(ctx, "researcher", 80*time.Millisecond, context.DeadlineExceeded)
	metrics.RecordLLMCall(ctx, "gpt-4o", 300*time.Millisecond, 42, 17, nil)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, series := range []string{
		"supervisor_runs_total",
		"supervisor_delegations_total",
		"supervisor_delegation_errors_total",
		"supervisor_llm_tokens_input_total",
	} {
		if !strings.Contains(body, series) {
			t.Errorf("metrics output missing %s", series)
		}
	}
}

func TestManagerDisabled(t *testing.T) {
	m := NewManager(config.ObservabilityConfig{})
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if m.GetMetrics() == nil {
		t.Fatal("GetMetrics returned nil")
	}
	m.GetMetrics().RecordAgentRun(context.Background(), "supervisor", time.Millisecond, nil)

	// Tracer must be usable even when tracing is off.
	_, span := m.GetTracer("test").Start(context.Background(), "noop_span")
	span.End()

	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled metrics handler status = %d, want 503", rec.Code)
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestManagerMetricsEnabled(t *testing.T) {
	m := NewManager(config.ObservabilityConfig{
		Metrics: config.MetricsConfig{Enabled: true},
	})
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	m.GetMetrics().RecordHTTPRequest(context.Background(), http.MethodGet, "/health", 200, time.Millisecond, 2)

	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "supervisor_http_requests_total") {
		t.Error("metrics output missing supervisor_http_requests_total")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	metrics, err := initMetrics(promclient.NewRegistry())
	if err != nil {
		t.Fatalf("initMetrics failed: %v", err)
	}

	handler := HTTPMiddleware(nil, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agents", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(scrape.Body.String(), "supervisor_http_requests_total") {
		t.Error("middleware did not record the request")
	}
}

func TestResponseWriterCapture(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	n, err := w.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v), want (5, nil)", n, err)
	}
	w.WriteHeader(http.StatusInternalServerError) // late header change is ignored

	if w.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", w.statusCode)
	}
	if w.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d, want 5", w.bytesWritten)
	}
}
