package infrastructure

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// maxRequestIDLen bounds caller-supplied correlation IDs echoed into logs
// and response headers.
const maxRequestIDLen = 128

// NewRequestID returns a fresh correlation ID.
func NewRequestID() string {
	return uuid.NewString()
}

// AcceptRequestID returns incoming when it is usable as a correlation ID and
// a fresh one otherwise. Empty, oversized, or non-printable IDs are replaced.
func AcceptRequestID(incoming string) string {
	if incoming == "" || len(incoming) > maxRequestIDLen {
		return NewRequestID()
	}
	for i := 0; i < len(incoming); i++ {
		if c := incoming[i]; c < 0x21 || c > 0x7e {
			return NewRequestID()
		}
	}
	return incoming
}

// EnsureTraceID gives ctx a correlation ID unless it already carries one.
// Entry points outside HTTP (the admin CLI, background jobs) call it so
// their log lines can be grouped the same way request logs are.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, NewRequestID())
}

// ContextLogger returns the process logger for ctx. The trace handler
// installed by InitializeLogger already stamps trace_id on every record,
// so the ID is only attached here when some other handler is in place.
func ContextLogger(ctx context.Context) *slog.Logger {
	logger := GetLogger()
	if _, ok := logger.Handler().(*traceHandler); ok {
		return logger
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		return logger.With("trace_id", traceID)
	}
	return logger
}

// WithComponent tags logger with the subsystem that owns its records.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// ComponentLogger is ContextLogger tagged with component.
func ComponentLogger(ctx context.Context, component string) *slog.Logger {
	return WithComponent(ContextLogger(ctx), component)
}
