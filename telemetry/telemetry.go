// Package telemetry provides the logging/tracing/metrics facade shared by
// every CCOS component. It mirrors goa-ai's runtime/agent/telemetry split
// between a thin interface and swappable noop/clue/otel implementations, so
// components never import goa.design/clue or go.opentelemetry.io/otel
// directly.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log messages keyed by free-form key/value pairs.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters and timers for runtime instrumentation.
	Metrics interface {
		IncCounter(name string, value float64, labels ...string)
		RecordTimer(name string, d time.Duration, labels ...string)
	}

	// Tracer starts spans for long-running or externally-visible operations.
	Tracer interface {
		Start(ctx context.Context, name string) (context.Context, Span)
	}

	// Span is a started trace span.
	Span interface {
		SetAttribute(key string, value any)
		RecordError(err error)
		End()
	}
)
