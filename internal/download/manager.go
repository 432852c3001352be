// Package download delivers finished export artifacts to their destination.
//
// The Manager registers the payload under a transient reference, hands a
// reader to a Sink and always releases the reference afterwards. Sinks exist
// for HTTP responses, a downloads directory and S3-compatible object storage.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrUnknownReference is returned for a reference that is not registered.
var ErrUnknownReference = errors.New("unknown reference")

// ErrNoSink is returned when Trigger is called without a sink.
var ErrNoSink = errors.New("no download sink")

// File is a payload handed to a sink.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	Body     io.Reader
}

// Sink is a download destination.
type Sink interface {
	Save(ctx context.Context, f File) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, f File) error

func (fn SinkFunc) Save(ctx context.Context, f File) error { return fn(ctx, f) }

// ResourceReleaseError reports a transient reference that could not be
// released. It is logged, never returned to callers of Trigger.
type ResourceReleaseError struct {
	Ref   string
	Cause error
}

func (e *ResourceReleaseError) Error() string {
	return fmt.Sprintf("release %s: %v", e.Ref, e.Cause)
}

func (e *ResourceReleaseError) Unwrap() error { return e.Cause }

// Manager triggers downloads.
type Manager struct {
	refs   ReferenceStore
	logger *slog.Logger
}

// NewManager creates a manager. A nil store selects a new BlobStore.
func NewManager(refs ReferenceStore, logger *slog.Logger) *Manager {
	if refs == nil {
		refs = NewBlobStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{refs: refs, logger: logger}
}

// Outstanding returns the number of references not yet released.
func (m *Manager) Outstanding() int { return m.refs.Outstanding() }

// Trigger delivers data to sink under the suggested file name. The transient
// reference is released on every path, including a sink failure or panic.
func (m *Manager) Trigger(ctx context.Context, name, mimeType string, data []byte, sink Sink) error {
	if sink == nil {
		return ErrNoSink
	}

	ref := m.refs.Create(data)
	defer m.release(ref)

	body, err := m.refs.Open(ref)
	if err != nil {
		return err
	}

	if err := sink.Save(ctx, File{Name: name, MIMEType: mimeType, Size: int64(len(data)), Body: body}); err != nil {
		return err
	}

	m.logger.Debug("download delivered", "file", name, "bytes", len(data))
	return nil
}

func (m *Manager) release(ref string) {
	if err := m.refs.Revoke(ref); err != nil {
		m.logger.Error("failed to release download reference", "error", &ResourceReleaseError{Ref: ref, Cause: err})
	}
}
