package core

import (
	"context"
	"time"
)

// MetricsRecorder observes the outcome and duration of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span around a service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended once with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
