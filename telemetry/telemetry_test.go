package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/outstanding"
)

func newRecorder() (*tracetest.SpanRecorder, *Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, NewTracer(tp.Tracer("test"))
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTaskObserver_TaskSpans(t *testing.T) {
	sr, tracer := newRecorder()
	obs := NewTaskObserver(context.Background(), tracer)
	reg := outstanding.New(outstanding.Config{}, outstanding.WithObserver(obs))

	token, err := reg.Register("upload")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if obs.Open() != 1 {
		t.Fatalf("expected 1 open span, got %d", obs.Open())
	}
	if len(sr.Ended()) != 0 {
		t.Fatal("span should not end before clear")
	}

	reg.Clear(token)

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	span := ended[0]
	if span.Name() != "task upload" {
		t.Errorf("expected span 'task upload', got %q", span.Name())
	}
	if v, ok := attr(span, "task.token"); !ok || v.AsString() != string(token) {
		t.Errorf("expected task.token=%s, got %v", token, v.AsString())
	}
	if _, ok := attr(span, "task.duration_ms"); !ok {
		t.Error("expected task.duration_ms attribute")
	}
	if obs.Open() != 0 {
		t.Errorf("expected no open spans, got %d", obs.Open())
	}
}

func TestTaskObserver_ShutdownSpan(t *testing.T) {
	sr, tracer := newRecorder()
	obs := NewTaskObserver(context.Background(), tracer)
	reg := outstanding.New(outstanding.Config{}, outstanding.WithObserver(obs))

	if err := reg.Shutdown(func(outstanding.ShutdownResult) {}); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	span := ended[0]
	if span.Name() != "shutdown" {
		t.Errorf("expected span 'shutdown', got %q", span.Name())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", span.Status().Code)
	}
	if v, _ := attr(span, "shutdown.pending"); v.AsInt64() != 0 {
		t.Errorf("expected shutdown.pending=0, got %d", v.AsInt64())
	}
}

func TestTaskObserver_ShutdownTimeout(t *testing.T) {
	sr, tracer := newRecorder()
	obs := NewTaskObserver(context.Background(), tracer)
	reg := outstanding.New(outstanding.Config{Timeout: 20 * time.Millisecond}, outstanding.WithObserver(obs))

	reg.Register("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := reg.ShutdownContext(ctx); err == nil {
		t.Fatal("expected timeout error")
	}

	var shutdown sdktrace.ReadOnlySpan
	for _, span := range sr.Ended() {
		if span.Name() == "shutdown" {
			shutdown = span
		}
	}
	if shutdown == nil {
		t.Fatal("expected shutdown span")
	}
	if shutdown.Status().Code != codes.Error {
		t.Errorf("expected Error status, got %v", shutdown.Status().Code)
	}
	if v, _ := attr(shutdown, "task.outstanding"); v.AsInt64() != 1 {
		t.Errorf("expected task.outstanding=1, got %d", v.AsInt64())
	}
	if v, _ := attr(shutdown, "task.outstanding_names"); len(v.AsStringSlice()) != 1 || v.AsStringSlice()[0] != "stuck" {
		t.Errorf("expected outstanding names [stuck], got %v", v.AsStringSlice())
	}

	// The stuck task's span stays open.
	if obs.Open() != 1 {
		t.Errorf("expected 1 open span, got %d", obs.Open())
	}
}

func TestTaskObserver_UnknownClear(t *testing.T) {
	sr, tracer := newRecorder()
	obs := NewTaskObserver(context.Background(), tracer)

	obs.TaskCleared("missing", outstanding.Task{Name: "x"}, time.Second)
	obs.ShutdownCompleted(outstanding.ShutdownResult{})

	if len(sr.Ended()) != 0 {
		t.Errorf("expected no spans, got %d", len(sr.Ended()))
	}
}

func TestGetTracer_Noop(t *testing.T) {
	SetGlobalTracer(nil)
	tracer := GetTracer()
	_, span := tracer.StartSpan(context.Background(), "noop")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("expected no-op span")
	}
}

func TestContextPropagation(t *testing.T) {
	_, tracer := newRecorder()
	ctx, span := tracer.StartSpan(context.Background(), "parent")
	defer span.End()

	otel.SetTextMapPropagator(propagation.TraceContext{})
	carrier := MapCarrier{}
	InjectContext(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatal("expected traceparent header")
	}

	extracted := ExtractContext(context.Background(), carrier)
	got := trace.SpanContextFromContext(extracted).TraceID().String()
	if got != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace %s, got %s", span.SpanContext().TraceID().String(), got)
	}
	if len(carrier.Keys()) == 0 {
		t.Error("expected carrier keys")
	}
}

func TestProviderConfig_Resolve(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_SERVICE_NAME", "")

	cfg, err := ProviderConfig{}.resolve()
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.Endpoint != "collector:4318" {
		t.Errorf("endpoint = %q", cfg.Endpoint)
	}
	if cfg.ServiceName != DefaultServiceName {
		t.Errorf("service name = %q", cfg.ServiceName)
	}
	if cfg.Protocol != ProtocolGRPC {
		t.Errorf("protocol = %q", cfg.Protocol)
	}
	if cfg.InstanceID == "" {
		t.Error("expected a generated instance id")
	}

	other, _ := ProviderConfig{}.resolve()
	if other.InstanceID == cfg.InstanceID {
		t.Error("expected distinct instance ids")
	}
}

func TestProviderConfig_Resource(t *testing.T) {
	cfg := ProviderConfig{ServiceName: "worker", ServiceVersion: "1.2.0", InstanceID: "registry-1"}
	res, err := cfg.resource()
	if err != nil {
		t.Fatalf("resource failed: %v", err)
	}

	want := map[attribute.Key]string{
		semconv.ServiceNameKey:       "worker",
		semconv.ServiceVersionKey:    "1.2.0",
		semconv.ServiceInstanceIDKey: "registry-1",
	}
	for key, value := range want {
		got, ok := res.Set().Value(key)
		if !ok || got.AsString() != value {
			t.Errorf("%s = %q, want %q", key, got.AsString(), value)
		}
	}
}

func TestInitProvider_Errors(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	_, err := InitProvider(context.Background(), ProviderConfig{})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT without endpoint, got %v", err)
	}
	_, err = InitProvider(context.Background(), ProviderConfig{
		Endpoint: "localhost:4317",
		Protocol: "carrier-pigeon",
	})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for unknown protocol, got %v", err)
	}
}

// restoreGlobals undoes the otel and tracer globals InitProvider installs.
func restoreGlobals(t *testing.T) {
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
		SetGlobalTracer(nil)
	})
}

func TestInitProvider_HTTPExport(t *testing.T) {
	restoreGlobals(t)

	var (
		requests atomic.Int32
		mu       sync.Mutex
		paths    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		requests.Add(1)
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	provider, err := InitProvider(ctx, ProviderConfig{
		Endpoint:   srv.URL,
		Protocol:   ProtocolHTTP,
		Insecure:   true,
		InstanceID: "registry-1",
	})
	if err != nil {
		t.Fatalf("InitProvider failed: %v", err)
	}
	if provider.InstanceID() != "registry-1" {
		t.Errorf("instance id = %q", provider.InstanceID())
	}
	if GetTracer() != provider.Tracer() {
		t.Error("expected provider tracer to be the global tracer")
	}

	obs := provider.Observer(ctx)
	reg := outstanding.New(outstanding.Config{}, outstanding.WithObserver(obs))
	token, _ := reg.Register("upload")
	reg.Clear(token)
	if _, err := reg.ShutdownContext(ctx); err != nil {
		t.Fatalf("ShutdownContext failed: %v", err)
	}
	if obs.Open() != 0 {
		t.Errorf("expected no open spans, got %d", obs.Open())
	}

	if err := provider.ForceFlush(ctx); err != nil {
		t.Fatalf("ForceFlush failed: %v", err)
	}
	if requests.Load() == 0 {
		t.Fatal("expected spans to be exported")
	}
	mu.Lock()
	if paths[0] != "/v1/traces" {
		t.Errorf("export path = %q", paths[0])
	}
	mu.Unlock()

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitProvider_GRPC(t *testing.T) {
	restoreGlobals(t)

	provider, err := InitProvider(context.Background(), ProviderConfig{
		Endpoint: "localhost:4317",
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("InitProvider failed: %v", err)
	}
	if provider.Tracer() == nil || provider.InstanceID() == "" {
		t.Fatal("expected tracer and instance id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown with no spans failed: %v", err)
	}
}
