package core

import "context"

type contextKey string

const (
	ctxKeySource    contextKey = "run_source"
	ctxKeyIPAddress contextKey = "run_ip"
	ctxKeyUserAgent contextKey = "run_ua"
)

// Run sources recorded in the run log.
const (
	SourceCLI  = "cli"
	SourceHTTP = "http"
)

// ContextWithSource marks runs started with ctx as coming from source.
func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ctxKeySource, source)
}

// ContextWithIPAddress adds the client IP address to context for the run log.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the client User-Agent to context for the run log.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// GetIPAddressFromContext extracts IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// SourceFromContext describes who started the run: the source followed by
// the client IP when known, e.g. "http 10.0.0.7".
func SourceFromContext(ctx context.Context) string {
	source, _ := ctx.Value(ctxKeySource).(string)
	ip := GetIPAddressFromContext(ctx)
	switch {
	case source == "":
		return ip
	case ip == "":
		return source
	default:
		return source + " " + ip
	}
}
