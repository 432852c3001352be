package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInputTooLarge is returned by ReadInput when the limit is exceeded.
var ErrInputTooLarge = errors.New("input exceeds size limit")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadInput reads an export payload (request body or file) for decoding.
// A leading UTF-8 BOM is dropped and invalid UTF-8 sequences are replaced
// with '?'. A non-positive limit disables the size check.
func ReadInput(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrInputTooLarge
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("?"))
	}
	return data, nil
}
