package core

import (
	"context"
	"time"
)

// MetricsRecorder receives aggregate timing and result observations for each
// service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan finalizes a span. A non-nil error marks it failed.
type TraceSpan interface {
	End(err error)
}
