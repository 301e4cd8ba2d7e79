package telemetry

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tagAttributePrefix = "arena."

func newLogger(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.format == LogFormatPretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(cfg.level).With().Timestamp().Caller().Logger()
}

// newTracer exports spans to the OTLP collector when tracing is enabled. Otherwise it returns a no-op
// tracer and a shutdown that does nothing.
func newTracer(ctx context.Context, cfg Config, opts Options) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.TracingEnabled {
		return noopTracer(opts.ServiceName), func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "failed to create OTLP trace exporter")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, resourceAttributes(cfg, opts)...)),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Tracer(opts.ServiceName), provider.Shutdown, nil
}

// resourceAttributes identifies this arena process. Each tag becomes an "arena.<key>" attribute.
func resourceAttributes(cfg Config, opts Options) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
		semconv.ServiceInstanceID(instanceID()),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	}

	keys := make([]string, 0, len(opts.Tags))
	for k := range opts.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(tagAttributePrefix+k, opts.Tags[k]))
	}
	return attrs
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// instanceID is the hostname, which is the pod name under Kubernetes.
func instanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func noopTracer(name string) trace.Tracer {
	return noop.NewTracerProvider().Tracer(name)
}
