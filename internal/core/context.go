package core

import "context"

type contextKey string

const (
	ctxKeyClient    contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// ContextWithClient adds the client address to context for session
// attribution and logging.
func ContextWithClient(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClient, ip)
}

// ContextWithUserAgent adds User-Agent to context.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ClientFromContext extracts the client address from context.
func ClientFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClient).(string); ok {
		return v
	}
	return ""
}

// UserAgentFromContext extracts User-Agent from context.
func UserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}
