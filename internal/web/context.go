package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/dbpipeline/internal/core"
)

// WithRequestMetadata marks ctx as an HTTP run and adds the client IP and
// User-Agent for the run log.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // already rewritten by TrustedRealIP for trusted proxies
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ctx = core.ContextWithSource(ctx, core.SourceHTTP)
	ctx = core.ContextWithIPAddress(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}
