// Copyright 2025 LumenFlow Authors
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

// Package observability wires distributed tracing around the
// orchestration kernel's slower, cross-process operations — worktree
// merges and sandboxed command execution — the two places SPEC_FULL.md
// Part C calls out as worth a span. Ported from the teacher's
// pkg/observability tracer setup, narrowed to a single stdout exporter
// since LumenFlow has no OTLP collector to ship spans to.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig controls whether and how spans are emitted.
type TracerConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SamplingRate float64 `yaml:"samplingRate"`
	ServiceName  string  `yaml:"serviceName"`
	PrettyPrint  bool    `yaml:"prettyPrint"`
}

// InitGlobalTracer installs a stdout-exporting tracer provider as the
// process-global default, or a no-op provider when tracing is
// disabled. Returned so callers can Shutdown it on exit.
func InitGlobalTracer(ctx context.Context, cfg TracerConfig) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return nil, nil
	}

	opts := []stdouttrace.Option{}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "lumenflow"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// GetTracer returns the named tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartMergeSpan starts a span around a worktree complete() merge
// sequence for lane.
func StartMergeSpan(ctx context.Context, lane, wuID string) (context.Context, trace.Span) {
	return GetTracer("lumenflow/worktree").Start(ctx, "worktree.complete",
		trace.WithAttributes(
			attribute.String("lumenflow.lane", lane),
			attribute.String("lumenflow.wu_id", wuID),
		),
	)
}

// StartSandboxSpan starts a span around a sandboxed command
// invocation.
func StartSandboxSpan(ctx context.Context, backendID string, enforced bool) (context.Context, trace.Span) {
	return GetTracer("lumenflow/sandbox").Start(ctx, "sandbox.exec",
		trace.WithAttributes(
			attribute.String("lumenflow.sandbox_backend", backendID),
			attribute.Bool("lumenflow.sandbox_enforced", enforced),
		),
	)
}

// RecordError marks span as errored and attaches err, mirroring the
// teacher's observability.Tracer.RecordError helper.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
