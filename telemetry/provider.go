package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/vinayprograms/drainkit/errors"
)

// DefaultServiceName is used when neither the config nor OTEL_SERVICE_NAME
// names the service.
const DefaultServiceName = "drainkit"

// Exporter protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// ProviderConfig configures OTLP export of task and shutdown spans.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// InstanceID is recorded as service.instance.id so spans from one
	// draining process can be told apart. A random UUID when empty.
	InstanceID string

	// Endpoint is host:port. Falls back to OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Protocol is ProtocolGRPC (default) or ProtocolHTTP.
	Protocol string
	Insecure bool
	Headers  map[string]string

	// FlushInterval bounds how long ended spans wait in the batch.
	FlushInterval time.Duration

	ExportTimeout time.Duration
}

// resolve fills defaults from the environment and checks the protocol.
func (c ProviderConfig) resolve() (ProviderConfig, error) {
	if c.Endpoint == "" {
		c.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if c.Endpoint == "" {
		return c, errors.InvalidInput("telemetry endpoint not configured (set endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")
	}
	c.Endpoint = strings.TrimPrefix(c.Endpoint, "http://")
	c.Endpoint = strings.TrimPrefix(c.Endpoint, "https://")

	if c.ServiceName == "" {
		c.ServiceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}

	switch c.Protocol {
	case "":
		c.Protocol = ProtocolGRPC
	case ProtocolGRPC, ProtocolHTTP:
	default:
		return c, errors.InvalidInput(fmt.Sprintf("unknown protocol %q (use grpc or http)", c.Protocol))
	}
	return c, nil
}

func (c ProviderConfig) resource() (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
		semconv.ServiceInstanceID(c.InstanceID),
	))
	if err != nil {
		return nil, errors.Wrap(err, "creating resource")
	}
	return res, nil
}

func (c ProviderConfig) exporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	if c.Protocol == ProtocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.Endpoint)}
		if c.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(c.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(c.Headers))
		}
		if c.ExportTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(c.ExportTimeout))
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	} else {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.Endpoint)}
		if c.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(c.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(c.Headers))
		}
		if c.ExportTimeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(c.ExportTimeout))
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, fmt.Sprintf("creating %s exporter", c.Protocol))
	}
	return exp, nil
}

// Provider exports registry spans over OTLP.
type Provider struct {
	tp         *sdktrace.TracerProvider
	tracer     *Tracer
	instanceID string
}

// InitProvider builds the exporter and tracer provider, installs them as the
// otel globals and sets the global Tracer. Shut it down after the registry
// has drained so the final spans are exported.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	res, err := cfg.resource()
	if err != nil {
		return nil, err
	}
	exp, err := cfg.exporter(ctx)
	if err != nil {
		return nil, err
	}

	var batch []sdktrace.BatchSpanProcessorOption
	if cfg.FlushInterval > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(cfg.FlushInterval))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, batch...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := NewTracer(tp.Tracer(cfg.ServiceName))
	SetGlobalTracer(tracer)

	return &Provider{tp: tp, tracer: tracer, instanceID: cfg.InstanceID}, nil
}

// Tracer returns the provider's tracer.
func (p *Provider) Tracer() *Tracer {
	return p.tracer
}

// Observer returns a TaskObserver recording into this provider, for use
// with outstanding.WithObserver.
func (p *Provider) Observer(ctx context.Context) *TaskObserver {
	return NewTaskObserver(ctx, p.tracer)
}

// InstanceID returns the service.instance.id attached to every span.
func (p *Provider) InstanceID() string {
	return p.instanceID
}

// ForceFlush exports ended spans now.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if err := p.tp.ForceFlush(ctx); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "flushing spans")
	}
	return nil
}

// Shutdown flushes and stops the exporter. It matches shutdown.ShutdownFunc.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "stopping trace provider")
	}
	return nil
}
