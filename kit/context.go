package kit

import "context"

type contextKey string

const (
	TraceIDKey   contextKey = "kit_trace_id"
	SessionIDKey contextKey = "kit_session_id"
	SourceKey    contextKey = "kit_source"
)

// Event sources.
const (
	SourceHook   = "hook"   // keys typed into the page
	SourceRemote = "remote" // HTTP remote control
)

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

func WithSource(ctx context.Context, s string) context.Context {
	return context.WithValue(ctx, SourceKey, s)
}
func GetSource(ctx context.Context) string {
	if v, ok := ctx.Value(SourceKey).(string); ok {
		return v
	}
	return SourceHook
}
