package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/tabexport/internal/config"
	"github.com/JonMunkholm/tabexport/internal/logging"
)

type authError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIKeyAuth rejects requests without a configured API key when
// RequireAPIKey is set. The key comes from X-API-Key or a Bearer
// Authorization header. With no keys configured every request is rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			status, reason, code := 0, "", ""
			switch key := requestAPIKey(r); {
			case key == "":
				status, reason, code = http.StatusUnauthorized, "missing API key", "AUTH001"
			case !isValidAPIKey(key, cfg.APIKeys):
				status, reason, code = http.StatusForbidden, "invalid API key", "AUTH002"
			default:
				next.ServeHTTP(w, r)
				return
			}

			logging.FromContext(r.Context()).Warn("auth: request rejected",
				"reason", reason,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeAuthError(w, status, reason, code)
		})
	}
}

func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authError{Error: msg, Code: code})
}

// isValidAPIKey checks if the provided key matches any configured key.
// Every key is compared in constant time so the duration does not reveal
// which key matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
