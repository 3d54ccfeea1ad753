// Package telemetry records outstanding tasks and registry shutdowns as
// OpenTelemetry spans.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vinayprograms/drainkit/outstanding"
)

// Tracer wraps an OpenTelemetry tracer with registry helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer wraps t.
func NewTracer(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// NamedTracer returns a tracer from the global provider.
func NamedTracer(name string) *Tracer {
	return NewTracer(otel.Tracer(name))
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Task Spans ---

// StartTaskSpan starts a span for one outstanding task.
func (t *Tracer) StartTaskSpan(ctx context.Context, token outstanding.Token, task outstanding.Task) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "task "+task.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(task.RegisteredAt),
		trace.WithAttributes(
			attribute.String("task.name", task.Name),
			attribute.String("task.token", string(token)),
		),
	)
}

// EndTaskSpan ends a task span.
func (t *Tracer) EndTaskSpan(span trace.Span, elapsed time.Duration) {
	span.SetAttributes(attribute.Int64("task.duration_ms", elapsed.Milliseconds()))
	span.SetStatus(codes.Ok, "")
	span.End()
}

// --- Shutdown Spans ---

// StartShutdownSpan starts a span covering a registry drain.
func (t *Tracer) StartShutdownSpan(ctx context.Context, pending int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "shutdown", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.Int("shutdown.pending", pending))
	return ctx, span
}

// EndShutdownSpan ends a shutdown span. A timeout marks the span as failed
// and records the tasks still outstanding.
func (t *Tracer) EndShutdownSpan(span trace.Span, result outstanding.ShutdownResult) {
	span.SetAttributes(attribute.Int("task.outstanding", len(result.Outstanding)))
	if result.Err != nil {
		span.SetAttributes(attribute.StringSlice("task.outstanding_names", result.Outstanding.Names()))
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Registry Observer ---

// TaskObserver implements outstanding.Observer. Each task gets a span from
// registration to clear, and each shutdown gets one span.
type TaskObserver struct {
	tracer *Tracer
	ctx    context.Context

	mu       sync.Mutex
	spans    map[outstanding.Token]trace.Span
	shutdown trace.Span
}

var _ outstanding.Observer = (*TaskObserver)(nil)

// NewTaskObserver creates an observer whose spans are children of ctx.
func NewTaskObserver(ctx context.Context, tracer *Tracer) *TaskObserver {
	if tracer == nil {
		tracer = GetTracer()
	}
	return &TaskObserver{
		tracer: tracer,
		ctx:    ctx,
		spans:  make(map[outstanding.Token]trace.Span),
	}
}

// TaskRegistered implements outstanding.Observer.
func (o *TaskObserver) TaskRegistered(token outstanding.Token, task outstanding.Task) {
	_, span := o.tracer.StartTaskSpan(o.ctx, token, task)
	o.mu.Lock()
	o.spans[token] = span
	o.mu.Unlock()
}

// TaskCleared implements outstanding.Observer.
func (o *TaskObserver) TaskCleared(token outstanding.Token, task outstanding.Task, elapsed time.Duration) {
	o.mu.Lock()
	span, ok := o.spans[token]
	delete(o.spans, token)
	o.mu.Unlock()
	if ok {
		o.tracer.EndTaskSpan(span, elapsed)
	}
}

// ShutdownStarted implements outstanding.Observer.
func (o *TaskObserver) ShutdownStarted(pending int) {
	_, span := o.tracer.StartShutdownSpan(o.ctx, pending)
	o.mu.Lock()
	o.shutdown = span
	o.mu.Unlock()
}

// ShutdownCompleted implements outstanding.Observer.
func (o *TaskObserver) ShutdownCompleted(result outstanding.ShutdownResult) {
	o.mu.Lock()
	span := o.shutdown
	o.shutdown = nil
	o.mu.Unlock()
	if span != nil {
		o.tracer.EndShutdownSpan(span, result)
	}
}

// Open returns the number of task spans not yet ended.
func (o *TaskObserver) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.spans)
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
