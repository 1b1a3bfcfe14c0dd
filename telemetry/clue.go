package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

type (
	// ClueLogger delegates to goa.design/clue/log. Formatting and debug
	// settings are read from the context set up via log.Context.
	ClueLogger struct{}

	// ClueMetrics delegates to the global OTEL MeterProvider.
	ClueMetrics struct {
		meter metric.Meter
	}

	// ClueTracer delegates to the global OTEL TracerProvider.
	ClueTracer struct {
		tracer trace.Tracer
	}

	clueSpan struct {
		span trace.Span
	}
)

// NewClueLogger constructs a Logger backed by goa.design/clue/log.
func NewClueLogger() Logger { return ClueLogger{} }

// NewClueMetrics constructs a Metrics recorder backed by OTEL metrics.
// Configure the global MeterProvider (e.g. via clue.ConfigureOpenTelemetry)
// before invoking any runtime methods.
func NewClueMetrics() Metrics {
	return &ClueMetrics{meter: otel.Meter("github.com/agentkit-go/agentkit")}
}

// NewClueTracer constructs a Tracer backed by OTEL tracing.
func NewClueTracer() Tracer {
	return &ClueTracer{tracer: otel.Tracer("github.com/agentkit-go/agentkit")}
}

func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fieldersFor(msg, keyvals)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fieldersFor(msg, keyvals)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	fielders := append([]log.Fielder{log.KV{K: "msg", V: msg}, log.KV{K: "severity", V: "warning"}}, kvToFielders(keyvals)...)
	log.Warn(ctx, fielders...)
}

func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, fieldersFor(msg, keyvals)...)
}

func (m *ClueMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *ClueMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	// OTEL has no synchronous gauge instrument; approximate with a histogram.
	hist, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	hist.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (t *ClueTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &clueSpan{span: span}
}

func (t *ClueTracer) Span(ctx context.Context) Span {
	return &clueSpan{span: trace.SpanFromContext(ctx)}
}

func (s *clueSpan) End(opts ...trace.SpanEndOption)             { s.span.End(opts...) }
func (s *clueSpan) SetStatus(code codes.Code, desc string)      { s.span.SetStatus(code, desc) }
func (s *clueSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

func (s *clueSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvToAttrs(attrs)...))
}

func fieldersFor(msg string, keyvals []any) []log.Fielder {
	return append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(keyvals)...)
}

// kvToFielders converts variadic (k1, v1, k2, v2, ...) pairs into clue fielders.
// A trailing unpaired key is logged against a nil value.
func kvToFielders(keyvals []any) []log.Fielder {
	var out []log.Fielder
	for i := 0; i < len(keyvals); i += 2 {
		k := fmt.Sprintf("%v", keyvals[i])
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		out = append(out, log.KV{K: k, V: v})
	}
	return out
}

func kvToAttrs(keyvals []any) []attribute.KeyValue {
	var out []attribute.KeyValue
	for i := 0; i < len(keyvals); i += 2 {
		k := fmt.Sprintf("%v", keyvals[i])
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		out = append(out, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	return out
}

func tagAttrs(tags []string) []attribute.KeyValue {
	var out []attribute.KeyValue
	for i := 0; i+1 < len(tags); i += 2 {
		out = append(out, attribute.String(tags[i], tags[i+1]))
	}
	return out
}
