// Package middleware provides HTTP middleware for the export server.
package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/tabexport/internal/logging"
)

// Logger logs one line per request: method, path, status, bytes,
// duration_ms, ip (after TrustedRealIP) and user_agent. Export responses
// also carry export_format, the format actually delivered.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if f := ww.Header().Get("X-Export-Format"); f != "" {
			args = append(args, "export_format", f)
		}

		logger := logging.FromContext(r.Context())
		if status >= http.StatusInternalServerError {
			logger.Warn("request", args...)
			return
		}
		logger.Info("request", args...)
	})
}
