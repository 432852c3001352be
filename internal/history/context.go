package history

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "history_ip"
	ctxKeyUserAgent contextKey = "history_ua"
	ctxKeySource    contextKey = "history_source"
)

// ContextWithIPAddress adds the client IP address to ctx.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the client User-Agent to ctx.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithSource records which entry point started the export.
func ContextWithSource(ctx context.Context, src Source) context.Context {
	return context.WithValue(ctx, ctxKeySource, src)
}

// IPAddressFromContext extracts the client IP address from ctx.
func IPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// UserAgentFromContext extracts the client User-Agent from ctx.
func UserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// SourceFromContext extracts the export source from ctx.
func SourceFromContext(ctx context.Context) Source {
	if v, ok := ctx.Value(ctxKeySource).(Source); ok {
		return v
	}
	return ""
}
