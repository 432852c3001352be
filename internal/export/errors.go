package export

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when an export is requested with no records.
var ErrEmptyInput = errors.New("no records to export")

// ErrCodecUnavailable marks a codec that could not be loaded or failed while
// encoding. The facade recovers from it; callers never see it from Export.
var ErrCodecUnavailable = errors.New("codec unavailable")

// UnsupportedFormatError is returned for an unknown format token.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}

// CodecError reports why a codec is unavailable. It matches
// ErrCodecUnavailable with errors.Is and unwraps to the underlying cause.
type CodecError struct {
	Codec Codec
	Cause error
}

func (e *CodecError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s codec unavailable", e.Codec)
	}
	return fmt.Sprintf("%s codec unavailable: %v", e.Codec, e.Cause)
}

func (e *CodecError) Is(target error) bool { return target == ErrCodecUnavailable }

func (e *CodecError) Unwrap() error { return e.Cause }

// DocumentRenderError is returned when both the PDF path and the HTML
// fallback failed.
type DocumentRenderError struct {
	PDFCause  error
	HTMLCause error
}

func (e *DocumentRenderError) Error() string {
	return fmt.Sprintf("document rendering failed: %v (pdf: %v)", e.HTMLCause, e.PDFCause)
}

func (e *DocumentRenderError) Unwrap() error { return e.HTMLCause }
