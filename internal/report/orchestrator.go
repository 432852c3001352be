// Package report exports system reports, preferring the artifact rendered by
// the remote report service and rebuilding it locally when that fails.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/tabexport/internal/download"
	"github.com/JonMunkholm/tabexport/internal/export"
)

// OutcomeKind classifies the result of a report export.
type OutcomeKind int

const (
	// OutcomeDownloaded: the remote artifact is in Outcome.Artifact; the
	// caller delivers it.
	OutcomeDownloaded OutcomeKind = iota + 1
	// OutcomeAlreadyHandled: the report was rebuilt locally and delivered.
	OutcomeAlreadyHandled
	// OutcomeFailed: Outcome.Err holds the original failure.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeAlreadyHandled:
		return "already_handled"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the result of Orchestrator.Export.
type Outcome struct {
	Kind     OutcomeKind
	Artifact *export.Artifact
	Result   export.Result
	Err      error
}

// UnknownReportError is returned for a report type missing from the catalog.
type UnknownReportError struct {
	Type ReportType
}

func (e *UnknownReportError) Error() string {
	return fmt.Sprintf("unknown report type %q", e.Type)
}

// UserMessage implements export.UserFacing.
func (e *UnknownReportError) UserMessage() export.UserMessage {
	return export.UserMessage{
		Message: fmt.Sprintf("Unknown report type %q", e.Type),
		Action:  "Choose one of the listed reports",
		Code:    "RPT001",
	}
}

// TabularExporter is the local export path used for recovery.
type TabularExporter interface {
	ExportFormat(ctx context.Context, records []export.Record, f export.Format, opts export.Options, sink download.Sink) (export.Result, error)
}

// Event describes one finished report export.
type Event struct {
	Type      ReportType
	Format    export.Format
	Kind      OutcomeKind
	Filename  string
	Rows      int
	Recovered bool
	Err       error
	Duration  time.Duration
}

// Observer is notified after every report export, on the exporting
// goroutine. Implementations should bound any I/O they do.
type Observer interface {
	ObserveReport(ctx context.Context, ev Event)
}

// Orchestrator runs the server-first export with local recovery.
type Orchestrator struct {
	client    Client
	local     TabularExporter
	catalog   *Catalog
	logger    *slog.Logger
	now       func() time.Time
	observers []Observer
}

// NewOrchestrator creates an orchestrator. A nil catalog selects the
// built-in one.
func NewOrchestrator(client Client, local TabularExporter, catalog *Catalog, logger *slog.Logger) *Orchestrator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{client: client, local: local, catalog: catalog, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for report filenames.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// AddObserver registers an observer.
func (o *Orchestrator) AddObserver(obs Observer) {
	if obs != nil {
		o.observers = append(o.observers, obs)
	}
}

// Catalog returns the report catalog.
func (o *Orchestrator) Catalog() *Catalog { return o.catalog }

// Export requests the report from the remote service.
//
// A non-empty artifact is returned to the caller (OutcomeDownloaded). When the
// service fails with a 5xx for an excel request, the raw data is fetched and
// exported locally through the tabular path (OutcomeAlreadyHandled). Any other
// failure, or a failed recovery, yields OutcomeFailed carrying the original
// error; recovery errors are only logged.
func (o *Orchestrator) Export(ctx context.Context, t ReportType, f export.Format, filters Filters, sink download.Sink) (out Outcome) {
	start := time.Now()
	logger := o.logger.With("report_type", string(t), "format", string(f))
	defer func() { o.finish(ctx, logger, t, f, start, out) }()

	def, ok := o.catalog.Get(t)
	if !ok {
		return Outcome{Kind: OutcomeFailed, Err: &UnknownReportError{Type: t}}
	}
	if f != export.FormatPDF && f != export.FormatExcel {
		return Outcome{Kind: OutcomeFailed, Err: &export.UnsupportedFormatError{Format: string(f)}}
	}

	data, err := o.client.ExportReport(ctx, t, f, filters)
	if err == nil && len(data) == 0 {
		return Outcome{Kind: OutcomeFailed, Err: &RemoteError{Message: emptyArtifactMessage}}
	}
	if err == nil {
		return Outcome{
			Kind: OutcomeDownloaded,
			Artifact: &export.Artifact{
				Filename: o.baseName(t) + f.Extension(),
				MIMEType: f.MIMEType(),
				Format:   f,
				Data:     data,
			},
		}
	}

	if re, ok := IsRemoteError(err); ok && re.ServerSide() && f == export.FormatExcel {
		logger.Warn("remote export failed, rebuilding locally", "status", re.Status, "error", err)
		res, recErr := o.recoverLocally(ctx, t, def, filters, sink)
		if recErr == nil {
			return Outcome{Kind: OutcomeAlreadyHandled, Result: res}
		}
		logger.Error("local recovery failed", "error", recErr)
	}

	return Outcome{Kind: OutcomeFailed, Err: err}
}

func (o *Orchestrator) recoverLocally(ctx context.Context, t ReportType, def Definition, filters Filters, sink download.Sink) (export.Result, error) {
	if o.local == nil {
		return export.Result{}, fmt.Errorf("no local exporter configured")
	}

	raw, err := o.client.FetchReportData(ctx, t, filters)
	if err != nil {
		return export.Result{}, fmt.Errorf("fetch report data: %w", err)
	}
	records, err := ExtractRecords(raw)
	if err != nil {
		return export.Result{}, err
	}

	opts := export.Options{Filename: o.baseName(t), Title: def.Title}
	if headersMatch(def.Headers, records[0]) {
		opts.Headers = def.Headers
	}
	return o.local.ExportFormat(ctx, records, export.FormatExcel, opts, sink)
}

func (o *Orchestrator) baseName(t ReportType) string {
	return fmt.Sprintf("%s_report_%s", t, o.now().Format("2006-01-02"))
}

// headersMatch reports whether the catalog headers describe the data: at
// least one header key must be present in the first record.
func headersMatch(h export.HeaderMap, first export.Record) bool {
	for _, key := range h.Keys() {
		if _, ok := first.Get(key); ok {
			return true
		}
	}
	return false
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, t ReportType, f export.Format, start time.Time, out Outcome) {
	ev := Event{
		Type:      t,
		Format:    f,
		Kind:      out.Kind,
		Recovered: out.Kind == OutcomeAlreadyHandled,
		Err:       out.Err,
		Duration:  time.Since(start),
	}
	switch out.Kind {
	case OutcomeDownloaded:
		ev.Filename = out.Artifact.Filename
		logger.Info("report exported", "filename", ev.Filename, "bytes", len(out.Artifact.Data))
	case OutcomeAlreadyHandled:
		ev.Filename = out.Result.Filename
		ev.Rows = out.Result.Rows
		logger.Info("report rebuilt locally", "filename", ev.Filename, "rows", ev.Rows, "produced", string(out.Result.Produced))
	default:
		logger.Warn("report export failed", "error", out.Err)
	}

	for _, obs := range o.observers {
		obs.ObserveReport(ctx, ev)
	}
}
