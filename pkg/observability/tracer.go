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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer provider scoped to the daemon's
// session/tool/background/external-pool spans.
type Tracer struct {
	provider        *sdktrace.TracerProvider
	tracer          trace.Tracer
	debugExporter   *DebugExporter
	capturePayloads bool
}

// TracerOption configures optional Tracer behavior.
type TracerOption func(*Tracer)

// WithDebugExporter attaches an in-memory span exporter alongside the
// configured stdout exporter, for local inspection.
func WithDebugExporter(d *DebugExporter) TracerOption {
	return func(t *Tracer) {
		t.debugExporter = d
	}
}

// WithCapturePayloads enables recording full tool/provider payloads on
// spans via AddPayload. Off by default since payloads can be large.
func WithCapturePayloads(enabled bool) TracerOption {
	return func(t *Tracer) {
		t.capturePayloads = enabled
	}
}

// NewTracer builds a Tracer from a TracingConfig, wiring a stdout span
// exporter (and, if requested, a DebugExporter) into batching span
// processors. The stdout exporter requires no collector endpoint, so
// tracing works out of the box for a local single-user daemon; an
// operator piping stdout to a collector-side adapter gets OTLP-shaped
// spans without this process depending on one.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: create stdout exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	t := &Tracer{}
	for _, opt := range opts {
		opt(t)
	}

	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if t.debugExporter != nil {
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(t.debugExporter))
	}

	provider := sdktrace.NewTracerProvider(tracerOpts...)
	t.provider = provider
	t.tracer = provider.Tracer(cfg.ServiceName)

	return t, nil
}

// Start begins a span with the given name and options.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartSessionTurn begins a span around one SessionLoop turn.
func (t *Tracer) StartSessionTurn(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanSessionTurn, trace.WithAttributes(attribute.String(AttrSessionID, sessionID)))
}

// StartToolExecution begins a span around one tool invocation.
func (t *Tracer) StartToolExecution(ctx context.Context, sessionID, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanToolExecution, trace.WithAttributes(
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrToolName, toolName),
	))
}

// StartBackgroundTask begins a span around one background task run.
func (t *Tracer) StartBackgroundTask(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanBackgroundTask, trace.WithAttributes(attribute.String(AttrBackgroundTask, taskID)))
}

// StartExternalCall begins a span around one ExternalPool MCP call.
func (t *Tracer) StartExternalCall(ctx context.Context, server, method string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanExternalCall, trace.WithAttributes(
		attribute.String(AttrExternalServer, server),
		attribute.String("external.method", method),
	))
}

// AddPayload attaches a payload attribute to a span, gated on
// capturePayloads since payloads can be large.
func (t *Tracer) AddPayload(span trace.Span, key, value string) {
	if t == nil || !t.capturePayloads || span == nil {
		return
	}
	span.SetAttributes(attribute.String(key, value))
}

// RecordError records an error on the span and marks it failed.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(AttrErrorType, err.Error()))
}

// DebugExporter returns the attached in-memory span exporter, or nil.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and closes the underlying tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
