// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, services and the orchestrator
// read them, tests inject them directly.
package requestcontext

import "context"

type (
	correlationIDKey struct{}
	requestIDKey     struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyCorrelationID = correlationIDKey{}
	ContextKeyRequestID     = requestIDKey{}
)

// CorrelationID retrieves the correlation identifier threaded through an
// event's processing. Returns "" if not set.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}

// WithCorrelationID injects a correlation identifier into the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, id)
}

// RequestID retrieves the per-HTTP-request identifier. Returns "" if not set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request identifier into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}
