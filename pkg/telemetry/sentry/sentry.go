// Package sentry reports tick failures and process panics to Sentry.
// Every function is a no-op until New is called with a DSN.
package sentry

import (
	"context"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/trace"
)

const panicFlushTimeout = 5 * time.Second

type Options struct {
	Dsn         string
	Environment string
	Tags        map[string]string
}

// New sets up Sentry using the provided options.
// If the DSN is empty, initialization is skipped.
func New(opt Options) error {
	if opt.Dsn == "" {
		return nil
	}

	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn:         opt.Dsn,
		Environment: opt.Environment,
		Tags:        opt.Tags,
	})
	if err != nil {
		return eris.Wrap(err, "failed to initialize sentry")
	}

	return nil
}

// Recover reports a recovered panic value and flushes so the event survives a crash.
func Recover(r any) {
	if !isInitialized() || r == nil {
		return
	}
	sentrygo.CurrentHub().Recover(r)
	sentrygo.Flush(panicFlushTimeout)
}

// CaptureException reports a handled error to Sentry.
func CaptureException(ctx context.Context, err error) {
	if !isInitialized() || err == nil {
		return
	}
	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			scope.SetTag("trace_id", spanCtx.TraceID().String())
			scope.SetTag("span_id", spanCtx.SpanID().String())
		}
		scope.SetExtra("stack", eris.ToString(err, true))
		sentrygo.CaptureException(err)
	})
}

// Shutdown flushes buffered events with the provided timeout or context deadline.
func Shutdown(ctx context.Context, timeout time.Duration) {
	if !isInitialized() {
		return
	}
	t := timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until > 0 && until < t {
			t = until
		}
	}
	if t <= 0 {
		t = 1 * time.Second
	}
	sentrygo.Flush(t)
}

func isInitialized() bool {
	return sentrygo.CurrentHub().Client() != nil
}
