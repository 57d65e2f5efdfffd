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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics when enabled")
	}
	return m
}

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil Metrics when disabled")
	}
	// Nil-safe: recording against a nil *Metrics must not panic.
	m.RecordToolCall("search", 10*time.Millisecond)
	m.RecordToolError("search")
}

func TestMetricsToolRecording(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordToolCall("search", 50*time.Millisecond)
	m.RecordToolError("search")

	count := testutil.ToFloat64(m.toolCalls.WithLabelValues("search"))
	if count != 1 {
		t.Fatalf("expected 1 tool call recorded, got %v", count)
	}
}

func TestMetricsSessionRecording(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordSessionCreated("anthropic")
	m.SetSessionsActive("anthropic", 3)
	m.RecordSessionTurn("anthropic", 200*time.Millisecond, false)
	m.RecordSessionTurn("anthropic", 50*time.Millisecond, true)
}

func TestMetricsBackgroundRecording(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordBackgroundStarted("run_tests")
	m.RecordBackgroundFinished("run_tests", "done", time.Second)
}

func TestMetricsExternalRecording(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordExternalRequest("filesystem", "tools/call", 5*time.Millisecond, nil)
	m.RecordExternalRequest("filesystem", "tools/call", 5*time.Millisecond, errors.New("boom"))
}

func TestNoopMetricsSatisfiesRecorder(t *testing.T) {
	var r Recorder = NoopMetrics{}
	r.RecordToolCall("t", time.Millisecond)
	r.RecordToolError("t")
	r.RecordSessionCreated("anthropic")
	r.SetSessionsActive("anthropic", 0)
	r.RecordSessionTurn("anthropic", time.Millisecond, false)
	r.RecordBackgroundStarted("t")
	r.RecordBackgroundFinished("t", "done", time.Millisecond)
	r.RecordExternalRequest("s", "m", time.Millisecond, nil)
}

func TestGlobalMetricsDefaultsToNoop(t *testing.T) {
	if _, ok := GetGlobalMetrics().(NoopMetrics); !ok {
		t.Fatal("expected GetGlobalMetrics to default to NoopMetrics")
	}

	m := newTestMetrics(t)
	SetGlobalMetrics(m)
	defer SetGlobalMetrics(nil)

	if GetGlobalMetrics() != Recorder(m) {
		t.Fatal("expected GetGlobalMetrics to return the installed Recorder")
	}
}

func TestNoopManagerIsInert(t *testing.T) {
	m := NoopManager()
	if m.TracingEnabled() || m.MetricsEnabled() {
		t.Fatal("expected a noop Manager to have nothing enabled")
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// Tracer()/Metrics() are nil; calling through them must not panic.
	ctx, span := m.Tracer().StartSessionTurn(context.Background(), "sess-1")
	span.End()
	_ = ctx
	m.Metrics().RecordToolCall("noop", time.Millisecond)
}

func TestDebugExporterCapturesAndQueries(t *testing.T) {
	exp := NewDebugExporter()

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(time.Millisecond)))
	tracer := provider.Tracer("test")

	_, span := tracer.Start(context.Background(), SpanToolExecution)
	span.End()

	if err := provider.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	spans := exp.GetSpansByName(SpanToolExecution)
	if len(spans) != 1 {
		t.Fatalf("expected 1 captured span, got %d", len(spans))
	}

	exp.Clear()
	if exp.Count() != 0 {
		t.Fatal("expected Clear to empty the exporter")
	}
}
