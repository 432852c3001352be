package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonMunkholm/tabexport/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(r.RemoteAddr))
})

func TestAPIKeyAuth(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"alpha", "beta"}}
	h := APIKeyAuth(cfg)(okHandler)

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantCode   string
	}{
		{"valid header key", "X-API-Key", "beta", http.StatusOK, ""},
		{"valid bearer", "Authorization", "Bearer alpha", http.StatusOK, ""},
		{"missing", "", "", http.StatusUnauthorized, "AUTH001"},
		{"invalid", "X-API-Key", "gamma", http.StatusForbidden, "AUTH002"},
		{"basic auth is not a key", "Authorization", "Basic YWxwaGE=", http.StatusUnauthorized, "AUTH001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" && !strings.Contains(rec.Body.String(), tt.wantCode) {
				t.Errorf("body = %s, want code %s", rec.Body.String(), tt.wantCode)
			}
		})
	}
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	h := APIKeyAuth(&config.SecurityConfig{})(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestIsValidAPIKey(t *testing.T) {
	if isValidAPIKey("x", nil) {
		t.Error("no keys configured should reject")
	}
	if !isValidAPIKey("k", []string{"a", "k"}) {
		t.Error("matching key rejected")
	}
}

func TestTrustedRealIP(t *testing.T) {
	h := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.5", "bogus"})(okHandler)

	tests := []struct {
		name   string
		remote string
		realIP string
		xff    string
		want   string
	}{
		{"untrusted ignores headers", "203.0.113.9:5555", "1.2.3.4", "", "203.0.113.9"},
		{"trusted cidr uses X-Real-IP", "10.1.2.3:5555", "1.2.3.4", "", "1.2.3.4"},
		{"trusted single ip uses XFF", "192.168.1.5:80", "", "5.6.7.8, 10.0.0.1", "5.6.7.8"},
		{"invalid header keeps proxy", "10.1.2.3:5555", "not-an-ip", "", "10.1.2.3"},
		{"no headers", "10.1.2.3:5555", "", "", "10.1.2.3"},
		{"ipv4-mapped remote", "[::ffff:10.1.2.3]:80", "9.9.9.9", "", "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Body.String(); got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Export-Format", "csv")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/export/excel", nil))

	out := buf.String()
	for _, want := range []string{"status=201", "bytes=5", "export_format=csv", "path=/api/export/excel"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}
}
