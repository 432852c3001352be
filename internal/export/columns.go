package export

// Columns is the resolved, ordered column set of an export.
type Columns struct {
	Keys   []string
	Labels []string
}

// Len returns the number of columns.
func (c Columns) Len() int { return len(c.Keys) }

// ResolveColumns determines the columns of an export. With a non-empty
// header map, its keys and labels are used in declaration order. Otherwise
// the keys of the first record are used as both keys and labels.
func ResolveColumns(records []Record, headers HeaderMap) (Columns, error) {
	if len(records) == 0 {
		return Columns{}, ErrEmptyInput
	}

	if len(headers) > 0 {
		return Columns{Keys: headers.Keys(), Labels: headers.Labels()}, nil
	}

	keys := records[0].Keys()
	labels := make([]string, len(keys))
	copy(labels, keys)
	return Columns{Keys: keys, Labels: labels}, nil
}

// rowStrings renders every record as display strings in column order.
func rowStrings(records []Record, cols Columns) [][]string {
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(cols.Keys))
		for j, key := range cols.Keys {
			v, _ := rec.Get(key)
			row[j] = FormatValue(v)
		}
		rows[i] = row
	}
	return rows
}
