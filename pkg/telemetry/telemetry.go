// Package telemetry builds the process logger, tracer and error reporter.
package telemetry

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/argus-labs/arena/pkg/telemetry/sentry"
)

const sentryFlushTimeout = 2 * time.Second

type Telemetry struct {
	Logger      zerolog.Logger
	Tracer      trace.Tracer
	serviceName string

	shutdown func(context.Context) error
}

// New builds the logger, tracer and error reporter from OTEL_* variables and opts.
func New(opts Options) (Telemetry, error) {
	config, err := loadConfig()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to load otel config")
	}

	options := newDefaultOptions()
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid otel options")
	}

	logger := newLogger(config)
	tracer, shutdown, err := newTracer(context.Background(), config, options)
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup tracing")
	}

	err = sentry.New(sentry.Options{Dsn: config.SentryDSN, Environment: config.Environment, Tags: options.Tags})
	if err != nil {
		_ = shutdown(context.Background())
		return Telemetry{}, eris.Wrap(err, "failed to setup sentry")
	}

	return Telemetry{
		Logger:      logger,
		Tracer:      tracer,
		serviceName: options.ServiceName,
		shutdown:    shutdown,
	}, nil
}

// NewNop returns a telemetry instance that discards logs and records no spans.
func NewNop() Telemetry {
	return Telemetry{
		Logger:      zerolog.Nop(),
		Tracer:      noopTracer("nop"),
		serviceName: "nop",
	}
}

// Shutdown flushes pending error reports and stops the tracer provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	sentry.Shutdown(ctx, sentryFlushTimeout)
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}

// GetLoggerWithTrace returns a component-specific logger enriched with trace context.
func (t *Telemetry) GetLoggerWithTrace(ctx context.Context, component string) zerolog.Logger {
	span := trace.SpanFromContext(ctx)

	logger := t.Logger.With().Str("component", t.serviceName+"."+component)

	if span.IsRecording() {
		spanCtx := span.SpanContext()
		logger = logger.
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String())
	}

	return logger.Logger()
}

// CaptureException forwards a handled error to the error reporter, if one is configured.
func (t *Telemetry) CaptureException(ctx context.Context, err error) {
	sentry.CaptureException(ctx, err)
}

// RecoverAndFlush reports a panic in the calling goroutine and rethrows it.
// It must be deferred directly.
func RecoverAndFlush() {
	if r := recover(); r != nil {
		sentry.Recover(r)
		panic(r)
	}
}
