package export

import "strings"

// EncodeCSV renders records as CSV text: a header line of labels followed by
// one line per record, joined by "\n" with no trailing newline.
//
// A field is quoted only when it contains a comma or a double quote; internal
// quotes are doubled. Newlines are emitted verbatim. Missing and nil values
// are empty fields.
func EncodeCSV(records []Record, cols Columns) string {
	var b strings.Builder
	writeCSVLine(&b, cols.Labels)

	fields := make([]string, len(cols.Keys))
	for _, rec := range records {
		b.WriteByte('\n')
		for i, key := range cols.Keys {
			v, _ := rec.Get(key)
			fields[i] = FormatValue(v)
		}
		writeCSVLine(&b, fields)
	}
	return b.String()
}

func writeCSVLine(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeCSVField(f))
	}
}

func escapeCSVField(s string) string {
	if !strings.ContainsAny(s, `,"`) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
