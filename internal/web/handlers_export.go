package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabexport/internal/export"
)

type exportRequest struct {
	Records []export.Record `json:"records"`
	Options export.Options  `json:"options"`
}

type compositeRequest struct {
	Report  export.CompositeReport `json:"report"`
	Options export.Options         `json:"options"`
}

type formatsResponse struct {
	Formats []export.Format   `json:"formats"`
	Codecs  map[string]string `json:"codecs"`
}

// handleExport handles POST /api/export/{format}.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")

	var req exportRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	var (
		capture captureSink
		res     export.Result
	)
	err := s.withExportSlot(r.Context(), func() error {
		var err error
		res, err = s.exporter.Export(r.Context(), req.Records, format, req.Options, &capture)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.deliver(w, r, &capture, res)
}

// handleExportComposite handles POST /api/export/composite.
func (s *Server) handleExportComposite(w http.ResponseWriter, r *http.Request) {
	var req compositeRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	var (
		capture captureSink
		res     export.Result
	)
	err := s.withExportSlot(r.Context(), func() error {
		var err error
		res, err = s.exporter.ExportComposite(r.Context(), req.Report, req.Options, &capture)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.deliver(w, r, &capture, res)
}

// handleFormats handles GET /api/formats.
func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, formatsResponse{
		Formats: export.Formats(),
		Codecs:  s.codecStates(),
	})
}

func (s *Server) codecStates() map[string]string {
	out := make(map[string]string)
	if s.registry == nil {
		return out
	}
	for c, st := range s.registry.States() {
		out[string(c)] = st.String()
	}
	return out
}
