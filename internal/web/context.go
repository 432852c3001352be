package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/tabexport/internal/history"
)

// WithRequestMetadata adds client IP, User-Agent and the API source to ctx
// so export history entries can be attributed.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = history.ContextWithIPAddress(ctx, r.RemoteAddr) // already resolved by TrustedRealIP
	ctx = history.ContextWithUserAgent(ctx, r.UserAgent())
	ctx = history.ContextWithSource(ctx, history.SourceAPI)
	return ctx
}

// requestMetadata is the middleware form of WithRequestMetadata.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequestMetadata(r.Context(), r)))
	})
}
