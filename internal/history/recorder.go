package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/report"
)

// insertTimeout is the default bound of a single history write.
const insertTimeout = 5 * time.Second

// Recorder turns export and report events into history entries. It
// implements export.Observer and report.Observer.
//
// A report rebuilt locally is recorded once, by the export event of the
// local path; the matching report event is skipped.
//
// Writes are synchronous so an entry exists once the export call returns;
// each write is bounded by the insert timeout.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now, timeout: insertTimeout}
}

// ObserveExport implements export.Observer.
func (r *Recorder) ObserveExport(ctx context.Context, ev export.Event) {
	kind := KindTabular
	if ev.Composite {
		kind = KindComposite
	}
	r.record(ctx, Entry{
		Kind:       kind,
		Requested:  string(ev.Requested),
		Produced:   string(ev.Produced),
		Filename:   ev.Filename,
		Rows:       ev.Rows,
		Degraded:   ev.Degraded,
		Notice:     ev.Notice,
		Error:      errorText(ev.Err),
		DurationMS: ev.Duration.Milliseconds(),
	})
}

// ObserveReport implements report.Observer.
func (r *Recorder) ObserveReport(ctx context.Context, ev report.Event) {
	if ev.Kind == report.OutcomeAlreadyHandled {
		return
	}
	e := Entry{
		Kind:       KindReport,
		ReportType: string(ev.Type),
		Requested:  string(ev.Format),
		Filename:   ev.Filename,
		Rows:       ev.Rows,
		Error:      errorText(ev.Err),
		DurationMS: ev.Duration.Milliseconds(),
	}
	if ev.Kind == report.OutcomeDownloaded {
		e.Produced = string(ev.Format)
	}
	r.record(ctx, e)
}

func (r *Recorder) record(ctx context.Context, e Entry) {
	e.ID = uuid.NewString()
	e.CreatedAt = r.now().UTC()
	e.Source = SourceFromContext(ctx)
	e.IPAddress = IPAddressFromContext(ctx)
	e.UserAgent = UserAgentFromContext(ctx)

	// The write outlives a cancelled request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Insert(ctx, e); err != nil {
		r.logger.Error("failed to record export history",
			"kind", string(e.Kind),
			"filename", e.Filename,
			"error", err,
		)
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Headers is the column layout used when history itself is exported.
var Headers = export.HeaderMap{
	{Key: "created_at", Label: "Time"},
	{Key: "kind", Label: "Kind"},
	{Key: "report_type", Label: "Report"},
	{Key: "requested", Label: "Requested"},
	{Key: "produced", Label: "Produced"},
	{Key: "filename", Label: "Filename"},
	{Key: "rows", Label: "Rows"},
	{Key: "degraded", Label: "Degraded"},
	{Key: "error", Label: "Error"},
	{Key: "source", Label: "Source"},
	{Key: "ip_address", Label: "Client IP"},
}

// ToRecords converts entries to export records keyed like Headers.
func ToRecords(entries []Entry) []export.Record {
	out := make([]export.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, export.NewRecord(
			"created_at", e.CreatedAt,
			"kind", string(e.Kind),
			"report_type", e.ReportType,
			"requested", e.Requested,
			"produced", e.Produced,
			"filename", e.Filename,
			"rows", e.Rows,
			"degraded", e.Degraded,
			"error", e.Error,
			"source", string(e.Source),
			"ip_address", e.IPAddress,
		))
	}
	return out
}
