package logger

import (
	"context"
	"time"
)

// Standard field keys
const (
	KeyRequestID = "request_id"
	KeyServlet   = "servlet"
	KeyModule    = "module"
	KeySymbol    = "symbol"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyDuration  = "duration_ms"
	KeyError     = "error"
)

type contextKey struct{}

// LogContext holds request-scoped logging fields
type LogContext struct {
	RequestID string
	Servlet   string
	Module    string
	StartTime time.Time
}

// WithContext returns a new context carrying lc
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// DurationMs returns the time since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 6+len(args))
	if lc.RequestID != "" {
		out = append(out, KeyRequestID, lc.RequestID)
	}
	if lc.Servlet != "" {
		out = append(out, KeyServlet, lc.Servlet)
	}
	if lc.Module != "" {
		out = append(out, KeyModule, lc.Module)
	}
	return append(out, args...)
}
