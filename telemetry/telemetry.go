// Package telemetry defines logging, metrics and tracing contracts with Noop
// and clue/OpenTelemetry-backed implementations. The interfaces are
// intentionally small so callers stay agnostic of the concrete backend, and
// tests can substitute lightweight stubs. The step loop, graph executor and
// team controller do not call these contracts.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer and gauge helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// StepTelemetry captures observability metadata collected during a single
// step-loop iteration: one model call plus whatever tool calls it produced.
type StepTelemetry struct {
	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
	// TokensUsed tracks the total tokens consumed by the model call.
	TokensUsed int
	// Model identifies which model served the call (e.g. "claude-opus-4").
	Model string
	// Extra holds step-specific metadata not captured by the common fields.
	Extra map[string]any
}
