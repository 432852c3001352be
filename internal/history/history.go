// Package history records every export in a queryable log.
//
// Entries are written by a Recorder, which observes the export facade and the
// report orchestrator, and are kept in a Store: PostgresStore in production,
// MemoryStore for tests and database-less deployments. A Retention job purges
// entries older than the configured number of days.
package history

import (
	"context"
	"errors"
	"time"
)

// Kind classifies what produced an entry.
type Kind string

const (
	KindTabular   Kind = "tabular"
	KindComposite Kind = "composite"
	KindReport    Kind = "report"
)

// Source identifies the entry point that started the export.
type Source string

const (
	SourceAPI Source = "api"
	SourceCLI Source = "cli"
)

// DefaultLimit is the number of entries returned when a filter sets none.
const DefaultLimit = 100

// MaxLimit caps Filter.Limit.
const MaxLimit = 1000

// Entry is one recorded export.
type Entry struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Source     Source    `json:"source,omitempty"`
	ReportType string    `json:"reportType,omitempty"`
	Requested  string    `json:"requested"`
	Produced   string    `json:"produced,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Rows       int       `json:"rows"`
	Degraded   bool      `json:"degraded"`
	Notice     string    `json:"notice,omitempty"`
	Error      string    `json:"error,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Succeeded reports whether the export delivered an artifact.
func (e Entry) Succeeded() bool { return e.Error == "" }

// Filter narrows a history query.
type Filter struct {
	// Format matches either the requested or the produced format.
	Format     string
	ReportType string
	Since      time.Time
	Limit      int
}

// normalize applies the default and maximum limit.
func (f Filter) normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

func (f Filter) matches(e Entry) bool {
	if f.Format != "" && e.Requested != f.Format && e.Produced != f.Format {
		return false
	}
	if f.ReportType != "" && e.ReportType != f.ReportType {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("history store closed")

// Store persists history entries.
type Store interface {
	// Insert stores an entry. ID and CreatedAt must be set.
	Insert(ctx context.Context, e Entry) error
	// Recent returns matching entries, newest first.
	Recent(ctx context.Context, f Filter) ([]Entry, error)
	// PurgeOlderThan deletes entries created before cutoff and returns how
	// many were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
