package export

import (
	"fmt"
	"strings"
	"time"
)

// Format identifies an export output format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"

	// FormatHTML is only produced, as the fallback for FormatPDF.
	FormatHTML Format = "html"
)

// MIME types for produced artifacts.
const (
	MIMECSV  = "text/csv; charset=utf-8"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEPDF  = "application/pdf"
	MIMEHTML = "text/html; charset=utf-8"
)

// DefaultTitle is used for documents when Options.Title is empty.
const DefaultTitle = "Data Export"

// NoticeHTMLFallback is reported when a PDF request produced HTML instead.
const NoticeHTMLFallback = "PDF generation was unavailable; an HTML document was produced instead"

var formatAliases = map[string]Format{
	"csv":      FormatCSV,
	"excel":    FormatExcel,
	"workbook": FormatExcel,
	"xlsx":     FormatExcel,
	"pdf":      FormatPDF,
	"document": FormatPDF,
}

// ParseFormat resolves a format token (case-insensitive) to a Format.
func ParseFormat(token string) (Format, error) {
	if f, ok := formatAliases[strings.ToLower(strings.TrimSpace(token))]; ok {
		return f, nil
	}
	return "", &UnsupportedFormatError{Format: token}
}

// Formats returns the canonical formats in display order.
func Formats() []Format {
	return []Format{FormatCSV, FormatExcel, FormatPDF}
}

// Extension returns the file extension (with dot) for the format.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatExcel:
		return ".xlsx"
	case FormatPDF:
		return ".pdf"
	case FormatHTML:
		return ".html"
	}
	return ""
}

// MIMEType returns the content type of artifacts in this format.
func (f Format) MIMEType() string {
	switch f {
	case FormatCSV:
		return MIMECSV
	case FormatExcel:
		return MIMEXLSX
	case FormatPDF:
		return MIMEPDF
	case FormatHTML:
		return MIMEHTML
	}
	return "application/octet-stream"
}

// Options are the caller-supplied export settings. All fields are optional.
type Options struct {
	Filename string    `json:"filename,omitempty"`
	Title    string    `json:"title,omitempty"`
	Headers  HeaderMap `json:"headers,omitempty"`
}

// Artifact is an encoded export ready for download.
type Artifact struct {
	Filename string
	MIMEType string
	Format   Format
	Data     []byte
	// Text is set for textual payloads (CSV, HTML fallback).
	Text bool
	// Notice is set when the encoder fell back to a substitute format.
	Notice string
}

// Result describes the outcome of a successful export.
type Result struct {
	Requested Format `json:"requested"`
	Produced  Format `json:"produced"`
	Filename  string `json:"filename"`
	Rows      int    `json:"rows"`
	Degraded  bool   `json:"degraded"`
	Notice    string `json:"notice,omitempty"`
}

var knownExtensions = []string{".csv", ".xlsx", ".xls", ".pdf", ".html", ".htm"}

// ResolveFilename builds the final filename for an artifact. An empty base
// yields "<prefix>_<YYYY-MM-DD>". A trailing known extension on base is
// replaced by ext.
func ResolveFilename(base, prefix, ext string, now time.Time) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = fmt.Sprintf("%s_%s", prefix, now.Format("2006-01-02"))
	}
	lower := strings.ToLower(base)
	for _, known := range knownExtensions {
		if strings.HasSuffix(lower, known) {
			base = base[:len(base)-len(known)]
			break
		}
	}
	return base + ext
}

func defaultPrefix(f Format) string {
	if f == FormatPDF {
		return "report"
	}
	return "export"
}

func titleOrDefault(title, fallback string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if fallback != "" {
		return fallback
	}
	return DefaultTitle
}
