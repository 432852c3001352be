package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/tabexport/internal/export"
)

// Filters narrow a report (date range, machine, status, ...).
type Filters map[string]string

// Client is the remote report service.
type Client interface {
	// ExportReport returns the server-rendered artifact for a report.
	ExportReport(ctx context.Context, t ReportType, f export.Format, filters Filters) ([]byte, error)
	// FetchReportData returns the raw report data as JSON.
	FetchReportData(ctx context.Context, t ReportType, filters Filters) ([]byte, error)
}

// RemoteError is a failed call to the report service. Status is the HTTP
// status, or 0 when no response was received.
type RemoteError struct {
	Status  int
	Message string
	Cause   error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("report service: %s", e.Message)
	}
	return fmt.Sprintf("report service returned %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Cause }

// ServerSide reports whether the failure is a 5xx response.
func (e *RemoteError) ServerSide() bool { return e.Status >= 500 && e.Status <= 599 }

// UserMessage keeps the remote diagnostic visible to the user.
func (e *RemoteError) UserMessage() export.UserMessage {
	msg := export.UserMessage{Message: e.Message, Action: "Please try again later", Code: "RPT002"}
	switch {
	case e.Status == 0 && e.Message == emptyArtifactMessage:
		msg.Code = "RPT003"
	case e.Status == http.StatusNotFound:
		msg.Action = "Check that the report exists"
	case e.Status >= 400 && e.Status < 500:
		msg.Action = "Check the report filters"
	}
	if msg.Message == "" {
		msg.Message = "The report service failed"
	}
	return msg
}

const emptyArtifactMessage = "empty report artifact"

// maxResponseBytes caps report downloads.
const maxResponseBytes = 100 << 20

// maxDiagnosticBytes caps the error text kept from a failed response.
const maxDiagnosticBytes = 200

// HTTPClient calls the report service over HTTP:
//
//	GET {base}/reports/{type}/export?format=pdf|excel&<filters>
//	GET {base}/reports/{type}/data?<filters>
type HTTPClient struct {
	baseURL  string
	token    string
	http     *http.Client
	maxBytes int64
}

// NewHTTPClient creates a client. token is sent as a bearer token when set.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: timeout},
		maxBytes: maxResponseBytes,
	}
}

// ExportReport implements Client.
func (c *HTTPClient) ExportReport(ctx context.Context, t ReportType, f export.Format, filters Filters) ([]byte, error) {
	q := filters.values()
	q.Set("format", string(f))
	return c.get(ctx, fmt.Sprintf("/reports/%s/export", url.PathEscape(string(t))), q)
}

// FetchReportData implements Client.
func (c *HTTPClient) FetchReportData(ctx context.Context, t ReportType, filters Filters) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/reports/%s/data", url.PathEscape(string(t))), filters.values())
}

func (c *HTTPClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &RemoteError{Message: err.Error(), Cause: err}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &RemoteError{Status: resp.StatusCode, Message: "read response: " + err.Error(), Cause: err}
	}
	if int64(len(body)) > c.maxBytes {
		// A truncated artifact is corrupt; never hand it on.
		return nil, &RemoteError{Message: fmt.Sprintf("response exceeds %d bytes", c.maxBytes)}
	}

	if resp.StatusCode >= 400 {
		return nil, &RemoteError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	return body, nil
}

func (f Filters) values() url.Values {
	q := url.Values{}
	for k, v := range f {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// errorMessage extracts a diagnostic from an error response body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}
	return truncateRunes(text, maxDiagnosticBytes)
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// IsRemoteError reports whether err is a *RemoteError and returns it.
func IsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	ok := errors.As(err, &re)
	return re, ok
}
