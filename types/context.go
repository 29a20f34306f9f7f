package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID contextKey = "trace_id"
	keyUserID  contextKey = "user_id"
	keyPlanID  contextKey = "plan_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithUserID adds the caller identity to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts the caller identity from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithPlanID adds plan ID to context.
func WithPlanID(ctx context.Context, planID string) context.Context {
	return context.WithValue(ctx, keyPlanID, planID)
}

// PlanID extracts plan ID from context.
func PlanID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyPlanID).(string)
	return v, ok && v != ""
}
