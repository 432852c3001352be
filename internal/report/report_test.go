package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/tabexport/internal/download"
	"github.com/JonMunkholm/tabexport/internal/export"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }

// fakeClient is a scripted report service.
type fakeClient struct {
	mu         sync.Mutex
	artifact   []byte
	exportErr  error
	data       []byte
	dataErr    error
	exports    int
	fetches    int
	lastFormat export.Format
	lastFilter Filters
}

func (c *fakeClient) ExportReport(ctx context.Context, t ReportType, f export.Format, filters Filters) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exports++
	c.lastFormat = f
	c.lastFilter = filters
	return c.artifact, c.exportErr
}

func (c *fakeClient) FetchReportData(ctx context.Context, t ReportType, filters Filters) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	return c.data, c.dataErr
}

// fakeLocal records local exports.
type fakeLocal struct {
	calls   int
	records []export.Record
	format  export.Format
	opts    export.Options
	err     error
}

func (l *fakeLocal) ExportFormat(ctx context.Context, records []export.Record, f export.Format, opts export.Options, sink download.Sink) (export.Result, error) {
	l.calls++
	l.records, l.format, l.opts = records, f, opts
	if l.err != nil {
		return export.Result{}, l.err
	}
	return export.Result{Requested: f, Produced: f, Filename: opts.Filename + ".xlsx", Rows: len(records)}, nil
}

type captureReportObserver struct{ events []Event }

func (o *captureReportObserver) ObserveReport(ctx context.Context, ev Event) { o.events = append(o.events, ev) }

func newTestOrchestrator(client Client, local TabularExporter) *Orchestrator {
	return NewOrchestrator(client, local, nil, quietLogger()).WithClock(fixedNow)
}

var nopSink = download.SinkFunc(func(ctx context.Context, f download.File) error { return nil })

// =============================================================================
// Orchestrator
// =============================================================================

func TestOrchestrator_RemoteArtifact(t *testing.T) {
	client := &fakeClient{artifact: []byte("%PDF-1.7")}
	local := &fakeLocal{}
	o := newTestOrchestrator(client, local)

	out := o.Export(context.Background(), "machines", export.FormatPDF, Filters{"status": "active"}, nopSink)

	if out.Kind != OutcomeDownloaded || out.Err != nil {
		t.Fatalf("Outcome = %+v", out)
	}
	if out.Artifact.Filename != "machines_report_2026-03-14.pdf" || out.Artifact.MIMEType != export.MIMEPDF {
		t.Errorf("artifact = %s %s", out.Artifact.Filename, out.Artifact.MIMEType)
	}
	if client.lastFilter["status"] != "active" {
		t.Errorf("filters not forwarded: %v", client.lastFilter)
	}
	if local.calls != 0 || client.fetches != 0 {
		t.Errorf("unexpected recovery: local=%d fetches=%d", local.calls, client.fetches)
	}
}

func TestOrchestrator_ExcelArtifactName(t *testing.T) {
	o := newTestOrchestrator(&fakeClient{artifact: []byte("PK")}, nil)
	out := o.Export(context.Background(), "quality_checks", export.FormatExcel, nil, nopSink)
	if out.Artifact == nil || out.Artifact.Filename != "quality_checks_report_2026-03-14.xlsx" {
		t.Errorf("Outcome = %+v", out)
	}
}

// Failures other than a 5xx on an excel request are never recovered.
func TestOrchestrator_NoRecovery(t *testing.T) {
	tests := []struct {
		name   string
		format export.Format
		err    error
	}{
		{"pdf server error", export.FormatPDF, &RemoteError{Status: 500, Message: "render crashed"}},
		{"excel client error", export.FormatExcel, &RemoteError{Status: 400, Message: "bad filter"}},
		{"excel not found", export.FormatExcel, &RemoteError{Status: 404, Message: "no such report"}},
		{"excel transport error", export.FormatExcel, &RemoteError{Status: 0, Message: "connection refused"}},
		{"excel foreign error", export.FormatExcel, errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{exportErr: tt.err, data: []byte(`[{"a":1}]`)}
			local := &fakeLocal{}
			out := newTestOrchestrator(client, local).Export(context.Background(), "machines", tt.format, nil, nopSink)

			if out.Kind != OutcomeFailed {
				t.Fatalf("Kind = %v, want failed", out.Kind)
			}
			if out.Err != tt.err {
				t.Errorf("Err = %v, want original %v", out.Err, tt.err)
			}
			if client.fetches != 0 || local.calls != 0 {
				t.Errorf("recovery attempted: fetches=%d local=%d", client.fetches, local.calls)
			}
		})
	}
}

func TestOrchestrator_RecoversExcelFromServerError(t *testing.T) {
	client := &fakeClient{
		exportErr: &RemoteError{Status: 503, Message: "renderer down"},
		data:      []byte(`{"data":[{"name":"Loom-1","status":"active"},{"name":"Loom-2","status":"idle"}]}`),
	}
	local := &fakeLocal{}
	obs := &captureReportObserver{}
	o := newTestOrchestrator(client, local)
	o.AddObserver(obs)

	out := o.Export(context.Background(), "machines", export.FormatExcel, nil, nopSink)

	if out.Kind != OutcomeAlreadyHandled || out.Err != nil {
		t.Fatalf("Outcome = %+v", out)
	}
	if local.calls != 1 || local.format != export.FormatExcel || len(local.records) != 2 {
		t.Errorf("local export = %d calls, %s, %d records", local.calls, local.format, len(local.records))
	}
	if local.opts.Filename != "machines_report_2026-03-14" || local.opts.Title != "Machines Report" {
		t.Errorf("opts = %+v", local.opts)
	}
	if got := local.opts.Headers.Labels(); len(got) == 0 || got[0] != "Machine" {
		t.Errorf("catalog headers not applied: %v", got)
	}
	if len(obs.events) != 1 || !obs.events[0].Recovered || obs.events[0].Rows != 2 {
		t.Errorf("events = %+v", obs.events)
	}
}

func TestOrchestrator_RecoveryIgnoresMismatchedHeaders(t *testing.T) {
	client := &fakeClient{
		exportErr: &RemoteError{Status: 500},
		data:      []byte(`[{"serial":"A1"}]`),
	}
	local := &fakeLocal{}
	newTestOrchestrator(client, local).Export(context.Background(), "machines", export.FormatExcel, nil, nopSink)

	if local.opts.Headers != nil {
		t.Errorf("headers = %v, want nil", local.opts.Headers)
	}
}

func TestOrchestrator_FailedRecoveryKeepsOriginalError(t *testing.T) {
	original := &RemoteError{Status: 502, Message: "bad gateway"}

	tests := []struct {
		name   string
		client *fakeClient
		local  *fakeLocal
	}{
		{"data fetch fails", &fakeClient{exportErr: original, dataErr: &RemoteError{Status: 500, Message: "db down"}}, &fakeLocal{}},
		{"no records", &fakeClient{exportErr: original, data: []byte(`{"data":[]}`)}, &fakeLocal{}},
		{"only scalars", &fakeClient{exportErr: original, data: []byte(`[1,"two",null]`)}, &fakeLocal{}},
		{"malformed json", &fakeClient{exportErr: original, data: []byte(`{"data":`)}, &fakeLocal{}},
		{"local export fails", &fakeClient{exportErr: original, data: []byte(`[{"a":1}]`)}, &fakeLocal{err: errors.New("disk full")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newTestOrchestrator(tt.client, tt.local).Export(context.Background(), "machines", export.FormatExcel, nil, nopSink)
			if out.Kind != OutcomeFailed {
				t.Fatalf("Kind = %v, want failed", out.Kind)
			}
			if out.Err != original {
				t.Errorf("Err = %v, want original %v", out.Err, original)
			}
		})
	}
}

func TestOrchestrator_EmptyArtifactIsFailure(t *testing.T) {
	client := &fakeClient{artifact: []byte{}, data: []byte(`[{"a":1}]`)}
	local := &fakeLocal{}
	out := newTestOrchestrator(client, local).Export(context.Background(), "machines", export.FormatExcel, nil, nopSink)

	re, ok := IsRemoteError(out.Err)
	if out.Kind != OutcomeFailed || !ok || re.Message != "empty report artifact" {
		t.Fatalf("Outcome = %+v", out)
	}
	if local.calls != 0 {
		t.Error("empty artifact triggered recovery")
	}
	if export.MapError(out.Err).Code != "RPT003" {
		t.Errorf("code = %s", export.MapError(out.Err).Code)
	}
}

func TestOrchestrator_UnknownReport(t *testing.T) {
	client := &fakeClient{artifact: []byte("x")}
	out := newTestOrchestrator(client, nil).Export(context.Background(), "payroll", export.FormatPDF, nil, nopSink)

	var ure *UnknownReportError
	if out.Kind != OutcomeFailed || !errors.As(out.Err, &ure) {
		t.Fatalf("Outcome = %+v", out)
	}
	if client.exports != 0 {
		t.Error("remote called for unknown report")
	}
	if export.MapError(out.Err).Code != "RPT001" {
		t.Errorf("code = %s", export.MapError(out.Err).Code)
	}
}

func TestOrchestrator_CSVNotServedRemotely(t *testing.T) {
	client := &fakeClient{artifact: []byte("x")}
	out := newTestOrchestrator(client, nil).Export(context.Background(), "machines", export.FormatCSV, nil, nopSink)

	var ufe *export.UnsupportedFormatError
	if !errors.As(out.Err, &ufe) || client.exports != 0 {
		t.Errorf("Outcome = %+v, exports = %d", out, client.exports)
	}
}

// End-to-end recovery through the real exporter with the workbook codec
// unavailable: the report arrives as CSV.
func TestOrchestrator_RecoveryWithDegradedWorkbook(t *testing.T) {
	registry := export.NewCodecRegistry(export.DefaultLoaders()).WithLogger(quietLogger())
	registry.MarkUnavailable(export.CodecWorkbook, errors.New("not installed"))
	blobs := download.NewBlobStore()
	exp := export.NewExporter(export.Config{
		Registry:  registry,
		Downloads: download.NewManager(blobs, quietLogger()),
		Logger:    quietLogger(),
		Now:       fixedNow,
	})

	client := &fakeClient{
		exportErr: &RemoteError{Status: 500, Message: "boom"},
		data:      []byte(`{"meta":{"page":1},"rows":[{"date":"2026-03-01","machine":"Loom-1","cost":12.5}]}`),
	}

	var saved []download.File
	var body string
	sink := download.SinkFunc(func(ctx context.Context, f download.File) error {
		b, _ := io.ReadAll(f.Body)
		saved, body = append(saved, f), string(b)
		return nil
	})

	out := newTestOrchestrator(client, exp).Export(context.Background(), "maintenance", export.FormatExcel, nil, sink)
	if out.Kind != OutcomeAlreadyHandled {
		t.Fatalf("Outcome = %+v", out)
	}
	if out.Result.Produced != export.FormatCSV || out.Result.Filename != "maintenance_report_2026-03-14.csv" {
		t.Errorf("Result = %+v", out.Result)
	}
	if len(saved) != 1 || !strings.HasPrefix(body, "Date,Machine,Technician,Description,Cost,Status\n2026-03-01,Loom-1,,,12.5,") {
		t.Errorf("body = %q", body)
	}
	if blobs.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d", blobs.Outstanding())
	}
}

// =============================================================================
// ExtractRecords
// =============================================================================

func TestExtractRecords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantRows int
		wantKeys []string
		wantErr  bool
	}{
		{"bare array", `[{"b":1,"a":2},{"b":3}]`, 2, []string{"b", "a"}, false},
		{"data property", `{"total":2,"data":[{"x":1},{"x":2}]}`, 2, []string{"x"}, false},
		{"data wins over earlier array", `{"tags":["a"],"data":[{"x":1}]}`, 1, []string{"x"}, false},
		{"first array property", `{"meta":{"n":1},"items":[{"y":1}],"other":[{"z":1}]}`, 1, []string{"y"}, false},
		{"non-object elements skipped", `[{"a":1},2,"x",null,[1],{"a":3}]`, 2, []string{"a"}, false},
		{"data not an array", `{"data":{"a":1},"rows":[{"r":1}]}`, 1, []string{"r"}, false},
		{"empty array", `[]`, 0, nil, true},
		{"no arrays", `{"a":1}`, 0, nil, true},
		{"scalar", `42`, 0, nil, true},
		{"malformed", `[{"a":`, 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ExtractRecords([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractRecords() = %d records, want error", len(records))
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractRecords() error = %v", err)
			}
			if len(records) != tt.wantRows {
				t.Errorf("rows = %d, want %d", len(records), tt.wantRows)
			}
			if !reflect.DeepEqual(records[0].Keys(), tt.wantKeys) {
				t.Errorf("keys = %v, want %v", records[0].Keys(), tt.wantKeys)
			}
		})
	}
}

// =============================================================================
// HTTPClient
// =============================================================================

func TestHTTPClient(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		switch r.URL.Path {
		case "/api/reports/machines/export":
			w.Write([]byte("%PDF-1.7"))
		case "/api/reports/machines/data":
			w.Write([]byte(`[{"a":1}]`))
		case "/api/reports/broken/export":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message":"renderer crashed"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/api/", "secret", time.Second)

	data, err := c.ExportReport(context.Background(), "machines", export.FormatPDF, Filters{"from": "2026-01-01", "empty": ""})
	if err != nil || string(data) != "%PDF-1.7" {
		t.Fatalf("ExportReport() = %q, %v", data, err)
	}
	if gotAuth != "Bearer secret" || gotPath != "/api/reports/machines/export" || gotQuery != "format=pdf&from=2026-01-01" {
		t.Errorf("request auth=%q path=%q query=%q", gotAuth, gotPath, gotQuery)
	}

	if _, err := c.FetchReportData(context.Background(), "machines", nil); err != nil || gotQuery != "" {
		t.Errorf("FetchReportData() error = %v, query = %q", err, gotQuery)
	}

	_, err = c.ExportReport(context.Background(), "broken", export.FormatExcel, nil)
	re, ok := IsRemoteError(err)
	if !ok || re.Status != 500 || re.Message != "renderer crashed" || !re.ServerSide() {
		t.Errorf("error = %#v", err)
	}

	_, err = c.ExportReport(context.Background(), "missing", export.FormatExcel, nil)
	if re, ok := IsRemoteError(err); !ok || re.Status != 404 || re.ServerSide() {
		t.Errorf("error = %#v", err)
	}
}

func TestHTTPClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, "", time.Second).ExportReport(context.Background(), "machines", export.FormatPDF, nil)
	re, ok := IsRemoteError(err)
	if !ok || re.Status != 0 || re.Cause == nil {
		t.Errorf("error = %#v", err)
	}
}

func TestHTTPClient_OversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.7 " + strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	c.maxBytes = 32

	data, err := c.ExportReport(context.Background(), "machines", export.FormatPDF, nil)
	re, ok := IsRemoteError(err)
	if !ok || data != nil {
		t.Fatalf("ExportReport() = %d bytes, %v; want a remote error", len(data), err)
	}
	if !strings.Contains(re.Message, "exceeds 32 bytes") || re.ServerSide() {
		t.Errorf("error = %#v", re)
	}

	c.maxBytes = 73
	if data, err := c.ExportReport(context.Background(), "machines", export.FormatPDF, nil); err != nil || len(data) != 73 {
		t.Errorf("body at the limit = %d bytes, %v", len(data), err)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"message":"m","error":"e"}`, "m"},
		{`{"error":"e"}`, "e"},
		{"plain failure\n", "plain failure"},
		{"", "Bad Gateway"},
		{strings.Repeat("x", 300), strings.Repeat("x", 200)},
		{strings.Repeat("x", 199) + "über", strings.Repeat("x", 199)},
		{strings.Repeat("€", 100), strings.Repeat("€", 66)},
	}
	for _, tt := range tests {
		if got := errorMessage(http.StatusBadGateway, []byte(tt.body)); got != tt.want {
			t.Errorf("errorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestRemoteError_UserMessage(t *testing.T) {
	msg := export.MapError(&RemoteError{Status: 500, Message: "renderer crashed"})
	if msg.Code != "RPT002" || msg.Message != "renderer crashed" {
		t.Errorf("MapError() = %+v", msg)
	}
}

// =============================================================================
// Catalog
// =============================================================================

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	want := []ReportType{"machines", "maintenance", "quality_checks", "users", "production"}

	var got []ReportType
	for _, def := range c.All() {
		got = append(got, def.Type)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}

	def, ok := c.Get("maintenance")
	if !ok || def.Title != "Maintenance Log Report" {
		t.Fatalf("Get(maintenance) = %+v, %v", def, ok)
	}
	if keys := def.Headers.Keys(); keys[0] != "date" || keys[len(keys)-1] != "status" {
		t.Errorf("header order = %v", keys)
	}
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(strings.NewReader(`
reports:
  - type: energy
    headers:
      kwh: Energy (kWh)
      machine: Machine
`))
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	def, ok := c.Get("energy")
	if !ok || def.Title != "energy" {
		t.Errorf("Get(energy) = %+v, %v", def, ok)
	}
	if labels := def.Headers.Labels(); !reflect.DeepEqual(labels, []string{"Energy (kWh)", "Machine"}) {
		t.Errorf("labels = %v", labels)
	}
}

func TestLoadCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate type", "reports:\n  - type: a\n  - type: a\n"},
		{"missing type", "reports:\n  - title: x\n"},
		{"unknown field", "reports:\n  - type: a\n    colour: red\n"},
		{"headers not mapping", "reports:\n  - type: a\n    headers: nope\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadCatalog(strings.NewReader(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadCatalogFile_EmptyPathUsesBuiltin(t *testing.T) {
	c, err := LoadCatalogFile("")
	if err != nil || len(c.Types()) != 5 {
		t.Errorf("LoadCatalogFile(\"\") = %v types, %v", len(c.Types()), err)
	}
	if _, err := LoadCatalogFile("/nonexistent/catalog.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
