// Package web provides the HTTP API of the export service.
// This file contains shared utilities and helper functions used across handlers.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tabexport/internal/download"
	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/logging"
	"github.com/JonMunkholm/tabexport/internal/report"
)

// Response headers describing a delivered export.
const (
	HeaderExportFormat    = "X-Export-Format"
	HeaderExportNotice    = "X-Export-Notice"
	HeaderExportRecovered = "X-Export-Recovered"
)

// errInvalidBody wraps request decoding failures (EXP003).
var errInvalidBody = errors.New("invalid request body")

// decodeBody reads a size-limited JSON body into v.
func (s *Server) decodeBody(r *http.Request, v any) error {
	data, err := export.ReadInput(r.Body, s.cfg.Server.MaxBodySize)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty body", errInvalidBody)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseFilters extracts report filters from filter[name]=value query
// parameters. Empty values are dropped.
func parseFilters(r *http.Request) report.Filters {
	filters := make(report.Filters)
	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		name := strings.TrimSpace(key[7 : len(key)-1])
		if name == "" || len(values) == 0 || values[0] == "" {
			continue
		}
		filters[name] = values[0]
	}
	return filters
}

// writeJSON encodes v as JSON with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.With(r.Context(), s.logger).Error("json encode error", "error", err)
	}
}

// captureSink keeps the delivered file in memory so the handler can set
// export headers before the response is written.
type captureSink struct {
	name     string
	mimeType string
	data     []byte
	saved    bool
}

func (c *captureSink) Save(ctx context.Context, f download.File) error {
	data, err := io.ReadAll(f.Body)
	if err != nil {
		return fmt.Errorf("buffer %s: %w", f.Name, err)
	}
	c.name, c.mimeType, c.data, c.saved = f.Name, f.MIMEType, data, true
	return nil
}

func (c *captureSink) file() download.File {
	return download.File{
		Name:     c.name,
		MIMEType: c.mimeType,
		Size:     int64(len(c.data)),
		Body:     bytes.NewReader(c.data),
	}
}

// deliver writes a captured export as an attachment, annotated with the
// produced format and any degradation notice, and archives a copy when an
// archive sink is configured.
func (s *Server) deliver(w http.ResponseWriter, r *http.Request, c *captureSink, res export.Result) {
	if !c.saved {
		s.respondError(w, r, &export.DeliveryError{Filename: res.Filename, Cause: errors.New("export produced no file")})
		return
	}

	h := w.Header()
	h.Set(HeaderExportFormat, string(res.Produced))
	if res.Notice != "" {
		h.Set(HeaderExportNotice, res.Notice)
	}

	s.archiveCopy(r.Context(), c)

	if err := (download.HTTPSink{W: w}).Save(r.Context(), c.file()); err != nil {
		// Headers are gone; the client sees a truncated body.
		logging.With(r.Context(), s.logger).Warn("export response interrupted", "file", c.name, "error", err)
	}
}

func (s *Server) archiveCopy(ctx context.Context, c *captureSink) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Save(ctx, c.file()); err != nil {
		logging.With(ctx, s.logger).Error("failed to archive export", "file", c.name, "error", err)
	}
}

// withExportSlot runs fn while holding an export limiter slot.
func (s *Server) withExportSlot(ctx context.Context, fn func() error) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.limiter.Release()
	return fn()
}
