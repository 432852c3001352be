package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/history"
)

// historyExportOptions is used when the history itself is downloaded.
var historyExportOptions = export.Options{
	Filename: "export_history",
	Title:    "Export History",
	Headers:  history.Headers,
}

// handleHistory handles GET /api/exports/history.
//
// Query parameters:
//   - format: only entries requesting or producing this format
//   - report_type: only report exports of this type
//   - since: RFC 3339 lower bound on creation time
//   - limit: maximum entries (default 100, max 1000)
//   - download: csv|excel|pdf exports the listed entries instead of JSON
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, r, http.StatusOK, map[string]any{"entries": []history.Entry{}})
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		Format:     q.Get("format"),
		ReportType: q.Get("report_type"),
		Limit:      parseIntParam(r, "limit", history.DefaultLimit),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.respondErrorStatus(w, r, fmt.Errorf("%w: since must be RFC 3339: %v", errInvalidBody, err), http.StatusBadRequest)
			return
		}
		filter.Since = t
	}

	entries, err := s.history.Recent(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("load export history: %w", err))
		return
	}

	asFile := q.Get("download")
	if asFile == "" {
		if entries == nil {
			entries = []history.Entry{}
		}
		s.writeJSON(w, r, http.StatusOK, map[string]any{"entries": entries})
		return
	}

	var (
		capture captureSink
		res     export.Result
	)
	err = s.withExportSlot(r.Context(), func() error {
		var err error
		res, err = s.exporter.Export(r.Context(), history.ToRecords(entries), asFile, historyExportOptions, &capture)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.deliver(w, r, &capture, res)
}
