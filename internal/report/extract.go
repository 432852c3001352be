package report

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/tabexport/internal/export"
)

// ErrNoRecords is returned when report data holds no usable records.
var ErrNoRecords = errors.New("report data contains no records")

// ExtractRecords decodes report data into records. Accepted shapes, in order:
//
//   - a bare JSON array
//   - an object with a "data" array
//   - an object's first array-valued property, in document order
//
// Only object elements become records; other elements are skipped.
func ExtractRecords(data []byte) ([]export.Record, error) {
	v, err := export.DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode report data: %w", err)
	}

	list, ok := findArray(v)
	if !ok {
		return nil, ErrNoRecords
	}

	records := make([]export.Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(export.Record); ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

func findArray(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case export.Record:
		if d, ok := val.Get("data"); ok {
			if list, ok := d.([]any); ok {
				return list, true
			}
		}
		for _, key := range val.Keys() {
			field, _ := val.Get(key)
			if list, ok := field.([]any); ok {
				return list, true
			}
		}
	}
	return nil, false
}
