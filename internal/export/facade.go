package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/tabexport/internal/download"
)

// Downloader delivers encoded bytes to a sink.
type Downloader interface {
	Trigger(ctx context.Context, name, mimeType string, data []byte, sink download.Sink) error
}

// Event describes one finished export call, successful or not.
type Event struct {
	Requested Format
	Produced  Format
	Filename  string
	Rows      int
	Degraded  bool
	Notice    string
	Composite bool
	Err       error
	Duration  time.Duration
}

// Observer is notified after every export. Observers run on the exporting
// goroutine after delivery, so a slow observer delays the caller's return;
// implementations should bound any I/O they do.
type Observer interface {
	ObserveExport(ctx context.Context, ev Event)
}

// DeliveryError wraps a failure to hand a finished artifact to its sink.
type DeliveryError struct {
	Filename string
	Cause    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Filename, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// Config configures an Exporter. Downloads is required.
type Config struct {
	Registry     *CodecRegistry
	Downloads    Downloader
	Logger       *slog.Logger
	ColumnWidth  float64
	MaxLogRows   int
	DefaultTitle string
	Now          func() time.Time
	Observers    []Observer
}

// Exporter is the single entry point for tabular exports. It validates the
// request, picks the encoder for the format, applies the degradation rules
// and hands the artifact to the download manager.
type Exporter struct {
	workbook     *WorkbookEncoder
	document     *DocumentEncoder
	downloads    Downloader
	observers    []Observer
	logger       *slog.Logger
	now          func() time.Time
	defaultTitle string
}

// NewExporter creates an exporter from cfg.
func NewExporter(cfg Config) *Exporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	title := cfg.DefaultTitle
	if title == "" {
		title = DefaultTitle
	}

	return &Exporter{
		workbook:     NewWorkbookEncoder(registry, cfg.ColumnWidth, logger),
		document:     NewDocumentEncoder(registry, cfg.MaxLogRows, logger),
		downloads:    cfg.Downloads,
		observers:    cfg.Observers,
		logger:       logger,
		now:          now,
		defaultTitle: title,
	}
}

// AddObserver registers an observer for subsequent exports.
func (e *Exporter) AddObserver(o Observer) {
	if o != nil {
		e.observers = append(e.observers, o)
	}
}

// Export parses the format token and exports records to sink.
//
// An unknown format yields *UnsupportedFormatError and no records yields
// ErrEmptyInput; both are checked before any encoding, and nothing is
// delivered on failure.
func (e *Exporter) Export(ctx context.Context, records []Record, format string, opts Options, sink download.Sink) (Result, error) {
	f, err := ParseFormat(format)
	if err != nil {
		e.finish(ctx, time.Now(), Event{Requested: Format(format), Rows: len(records), Err: err})
		return Result{}, err
	}
	return e.ExportFormat(ctx, records, f, opts, sink)
}

// ExportFormat exports records in an already parsed format.
func (e *Exporter) ExportFormat(ctx context.Context, records []Record, f Format, opts Options, sink download.Sink) (res Result, err error) {
	start := time.Now()
	defer func() {
		e.finish(ctx, start, Event{
			Requested: f,
			Produced:  res.Produced,
			Filename:  res.Filename,
			Rows:      len(records),
			Degraded:  res.Degraded,
			Notice:    res.Notice,
			Err:       err,
		})
	}()

	switch f {
	case FormatCSV, FormatExcel, FormatPDF:
	default:
		return Result{}, &UnsupportedFormatError{Format: string(f)}
	}
	if len(records) == 0 {
		return Result{}, ErrEmptyInput
	}

	cols, err := ResolveColumns(records, opts.Headers)
	if err != nil {
		return Result{}, err
	}

	switch f {
	case FormatExcel:
		return e.exportWorkbook(ctx, records, cols, opts, sink)
	case FormatPDF:
		return e.exportDocument(ctx, records, cols, opts, sink)
	default:
		return e.exportCSV(ctx, records, cols, opts, FormatCSV, sink)
	}
}

// ExportComposite renders a composite report as a document and delivers it.
func (e *Exporter) ExportComposite(ctx context.Context, report CompositeReport, opts Options, sink download.Sink) (res Result, err error) {
	start := time.Now()
	defer func() {
		e.finish(ctx, start, Event{
			Requested: FormatPDF,
			Produced:  res.Produced,
			Filename:  res.Filename,
			Rows:      report.Rows(),
			Degraded:  res.Degraded,
			Notice:    res.Notice,
			Composite: true,
			Err:       err,
		})
	}()

	if report.IsEmpty() {
		return Result{}, ErrEmptyInput
	}
	if opts.Title == "" && report.Title == "" {
		opts.Title = e.defaultTitle
	}

	art, err := e.document.EncodeComposite(ctx, report, opts, e.now())
	if err != nil {
		return Result{}, err
	}
	return e.deliverArtifact(ctx, art, FormatPDF, report.Rows(), sink)
}

func (e *Exporter) exportCSV(ctx context.Context, records []Record, cols Columns, opts Options, requested Format, sink download.Sink) (Result, error) {
	text := EncodeCSV(records, cols)
	art := &Artifact{
		Filename: ResolveFilename(opts.Filename, defaultPrefix(FormatCSV), FormatCSV.Extension(), e.now()),
		MIMEType: MIMECSV,
		Format:   FormatCSV,
		Data:     []byte(text),
		Text:     true,
	}
	return e.deliverArtifact(ctx, art, requested, len(records), sink)
}

func (e *Exporter) exportWorkbook(ctx context.Context, records []Record, cols Columns, opts Options, sink download.Sink) (Result, error) {
	art, err := e.workbook.Encode(ctx, records, cols, opts, e.now())
	if err != nil {
		if !errors.Is(err, ErrCodecUnavailable) {
			return Result{}, err
		}
		e.logger.Info("workbook codec unavailable, exporting csv instead", "error", err)
		return e.exportCSV(ctx, records, cols, opts, FormatExcel, sink)
	}
	return e.deliverArtifact(ctx, art, FormatExcel, len(records), sink)
}

func (e *Exporter) exportDocument(ctx context.Context, records []Record, cols Columns, opts Options, sink download.Sink) (Result, error) {
	if opts.Title == "" {
		opts.Title = e.defaultTitle
	}
	art, err := e.document.Encode(ctx, records, cols, opts, e.now())
	if err != nil {
		return Result{}, err
	}
	return e.deliverArtifact(ctx, art, FormatPDF, len(records), sink)
}

func (e *Exporter) deliverArtifact(ctx context.Context, art *Artifact, requested Format, rows int, sink download.Sink) (Result, error) {
	if e.downloads == nil {
		return Result{}, &DeliveryError{Filename: art.Filename, Cause: errors.New("no download manager configured")}
	}
	if err := e.downloads.Trigger(ctx, art.Filename, art.MIMEType, art.Data, sink); err != nil {
		return Result{}, &DeliveryError{Filename: art.Filename, Cause: err}
	}
	return Result{
		Requested: requested,
		Produced:  art.Format,
		Filename:  art.Filename,
		Rows:      rows,
		Degraded:  art.Format != requested,
		Notice:    art.Notice,
	}, nil
}

func (e *Exporter) finish(ctx context.Context, start time.Time, ev Event) {
	ev.Duration = time.Since(start)

	if ev.Err != nil {
		e.logger.Warn("export failed",
			"requested", string(ev.Requested),
			"rows", ev.Rows,
			"error", ev.Err,
		)
	} else {
		e.logger.Info("export completed",
			"requested", string(ev.Requested),
			"produced", string(ev.Produced),
			"filename", ev.Filename,
			"rows", ev.Rows,
			"degraded", ev.Degraded,
			"duration", ev.Duration,
		)
	}

	for _, o := range e.observers {
		o.ObserveExport(ctx, ev)
	}
}
