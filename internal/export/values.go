package export

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// FormatValue renders a cell value in its natural string form.
//
// nil and invalid pgtype values render as "". Integers have no decimals,
// floats use the shortest representation, times are RFC 3339 (dates are
// YYYY-MM-DD), and nested objects or lists are rendered as JSON.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", val)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float64:
		return formatFloat(val, 64)
	case float32:
		return formatFloat(float64(val), 32)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return FormatValue(*val)

	case pgtype.Text:
		if !val.Valid {
			return ""
		}
		return val.String
	case pgtype.Bool:
		if !val.Valid {
			return ""
		}
		return strconv.FormatBool(val.Bool)
	case pgtype.Int4:
		if !val.Valid {
			return ""
		}
		return strconv.FormatInt(int64(val.Int32), 10)
	case pgtype.Int8:
		if !val.Valid {
			return ""
		}
		return strconv.FormatInt(val.Int64, 10)
	case pgtype.Numeric:
		if !val.Valid {
			return ""
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return formatFloat(f.Float64, 64)
	case pgtype.Date:
		if !val.Valid {
			return ""
		}
		return val.Time.Format("2006-01-02")
	case pgtype.Timestamptz:
		if !val.Valid {
			return ""
		}
		return val.Time.Format(time.RFC3339)

	case Record, []any, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

// cellValue converts a record value into something the workbook codec can
// write natively: numbers stay numeric, everything else becomes text.
func cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, bool:
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return FormatValue(val)
		}
		return val
	case pgtype.Numeric:
		if !val.Valid {
			return ""
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return f.Float64
	default:
		return FormatValue(v)
	}
}
