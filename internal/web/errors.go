package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//   - Formatted for the client (HTMX fragment, JSON, or plain text)
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err), optionally with an explicit status
//  3. Error is mapped via export.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is rendered in appropriate format for the client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/logging"
	"github.com/JonMunkholm/tabexport/internal/report"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errReportsUnavailable is returned by report routes when no report service
// is configured.
var errReportsUnavailable = &unavailableError{
	msg: export.UserMessage{
		Message: "Reports are not available",
		Action:  "Ask an administrator to configure the report service",
		Code:    "RPT004",
	},
}

type unavailableError struct {
	msg export.UserMessage
}

func (e *unavailableError) Error() string { return strings.ToLower(e.msg.Message) }
func (e *unavailableError) UserMessage() export.UserMessage { return e.msg }

// statusFor picks the HTTP status for an export error.
func statusFor(err error) int {
	var (
		unsupported *export.UnsupportedFormatError
		unknown     *report.UnknownReportError
		remote      *report.RemoteError
		unavailable *unavailableError
	)
	switch {
	case errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, export.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooManyExports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &remote):
		if remote.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		if remote.Status >= 400 && remote.Status < 500 {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError handles error responses with user-friendly messages. The
// status is derived from err.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

// respondErrorStatus logs the technical error server-side and returns an
// appropriate response based on the request type.
func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := export.MapError(err)

	logging.With(r.Context(), s.logger).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	switch {
	case isHTMX(r):
		renderErrorPartial(w, r, userMsg, statusCode)
	case wantsJSON(r):
		respondErrorJSON(w, userMsg, statusCode)
	default:
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg export.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg export.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	errorAlert(msg).Render(r.Context(), w)
}

// errorAlert is the fragment swapped into the page on a failed export.
func errorAlert(msg export.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="export-error" role="alert"><p class="export-error-message">`)
		b.WriteString(templ.EscapeString(msg.Message))
		b.WriteString(`</p>`)
		if msg.Action != "" {
			b.WriteString(`<p class="export-error-action">`)
			b.WriteString(templ.EscapeString(msg.Action))
			b.WriteString(`</p>`)
		}
		b.WriteString(`<p class="export-error-code">Code: `)
		b.WriteString(templ.EscapeString(msg.Code))
		b.WriteString(`</p></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
