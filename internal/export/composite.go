package export

import "time"

// Block titles of a composite report, in render order.
const (
	BlockSummary   = "Summary"
	BlockBreakdown = "Cost breakdown"
	BlockLog       = "Log"
)

// CompositeReport is a multi-section document: a key/value summary, a cost
// breakdown table and a (possibly truncated) log table.
type CompositeReport struct {
	Title            string    `json:"title,omitempty"`
	Summary          Record    `json:"summary"`
	Breakdown        []Record  `json:"breakdown,omitempty"`
	BreakdownHeaders HeaderMap `json:"breakdown_headers,omitempty"`
	Logs             []Record  `json:"logs,omitempty"`
	LogHeaders       HeaderMap `json:"log_headers,omitempty"`
}

// IsEmpty reports whether no block has content.
func (c CompositeReport) IsEmpty() bool {
	return c.Summary.Len() == 0 && len(c.Breakdown) == 0 && len(c.Logs) == 0
}

// Rows is the record count reported for the composite: the log length.
func (c CompositeReport) Rows() int { return len(c.Logs) }

func (c CompositeReport) content(title string, maxLogRows int, now time.Time) (documentContent, error) {
	doc := documentContent{Title: title}

	if c.Summary.Len() > 0 {
		block := tableBlock{Title: BlockSummary, Labels: []string{"Metric", "Value"}}
		for _, key := range c.Summary.Keys() {
			v, _ := c.Summary.Get(key)
			block.Rows = append(block.Rows, []string{key, FormatValue(v)})
		}
		doc.Blocks = append(doc.Blocks, block)
	}

	if len(c.Breakdown) > 0 {
		cols, err := ResolveColumns(c.Breakdown, c.BreakdownHeaders)
		if err != nil {
			return documentContent{}, err
		}
		doc.Blocks = append(doc.Blocks, tableBlock{Title: BlockBreakdown, Labels: cols.Labels, Rows: rowStrings(c.Breakdown, cols)})
	}

	logs := c.Logs
	if maxLogRows > 0 && len(logs) > maxLogRows {
		logs = logs[:maxLogRows]
	}
	if len(logs) > 0 {
		cols, err := ResolveColumns(logs, c.LogHeaders)
		if err != nil {
			return documentContent{}, err
		}
		doc.Blocks = append(doc.Blocks, tableBlock{Title: BlockLog, Labels: cols.Labels, Rows: rowStrings(logs, cols)})
	}

	doc.Meta = metadataLine(now, len(logs), len(c.Logs))
	return doc, nil
}
