package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID   contextKey = "trace_id"
	keyProjectID contextKey = "project_id"
	keySessionID contextKey = "session_id"
	keyRunID     contextKey = "run_id"
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

// WithProjectID adds project ID to context.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, keyProjectID, projectID)
}

// ProjectID extracts project ID from context.
func ProjectID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyProjectID).(string)
	return v, ok && v != ""
}

// WithSessionID adds agent session ID to context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, keySessionID, sessionID)
}

// SessionID extracts agent session ID from context.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySessionID).(string)
	return v, ok && v != ""
}

// WithRunID adds workflow run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts workflow run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}
