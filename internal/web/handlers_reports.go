package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/report"
)

// handleListReports handles GET /api/reports.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.respondError(w, r, errReportsUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"reports": s.reports.Catalog().All(),
	})
}

// handleExportReport handles GET /api/reports/{reportType}/export.
//
// Query: format=pdf|excel (default pdf), filter[name]=value.
// The remote artifact is streamed back as is. When the report was rebuilt
// locally the response carries X-Export-Recovered: true.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.respondError(w, r, errReportsUnavailable)
		return
	}

	token := r.URL.Query().Get("format")
	if token == "" {
		token = string(export.FormatPDF)
	}
	f, err := export.ParseFormat(token)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	t := report.ReportType(chi.URLParam(r, "reportType"))
	filters := parseFilters(r)

	var (
		capture captureSink
		out     report.Outcome
	)
	err = s.withExportSlot(r.Context(), func() error {
		out = s.reports.Export(r.Context(), t, f, filters, &capture)
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch out.Kind {
	case report.OutcomeDownloaded:
		art := out.Artifact
		if err := s.downloads.Trigger(r.Context(), art.Filename, art.MIMEType, art.Data, &capture); err != nil {
			s.respondError(w, r, &export.DeliveryError{Filename: art.Filename, Cause: err})
			return
		}
		s.deliver(w, r, &capture, export.Result{Requested: f, Produced: art.Format, Filename: art.Filename})

	case report.OutcomeAlreadyHandled:
		w.Header().Set(HeaderExportRecovered, "true")
		s.deliver(w, r, &capture, out.Result)

	default:
		s.respondError(w, r, out.Err)
	}
}
