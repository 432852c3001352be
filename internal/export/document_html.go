package export

import (
	"bytes"
	"context"
	"io"

	"github.com/a-h/templ"
)

const htmlStyles = `body{font-family:Helvetica,Arial,sans-serif;font-size:10pt;margin:24px;color:#111}` +
	`h1{font-size:18pt;margin:0 0 4px}` +
	`h2{font-size:12pt;margin:18px 0 6px}` +
	`p.meta{color:#5a5a5a;font-size:9pt;margin:0 0 12px}` +
	`table{border-collapse:collapse;width:100%;margin-bottom:12px}` +
	`th,td{border:1px solid #b4b4b4;padding:4px 6px;text-align:left;vertical-align:top;font-size:8pt}` +
	`th{background:#e6e6e6}`

// documentHTML renders document content as a standalone HTML page.
func documentHTML(doc documentContent) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		hw.text(doc.Title)
		hw.raw(`</title><style>` + htmlStyles + `</style></head><body>`)

		hw.raw(`<h1>`)
		hw.text(doc.Title)
		hw.raw(`</h1><p class="meta">`)
		hw.text(doc.Meta)
		hw.raw(`</p>`)

		for _, block := range doc.Blocks {
			if block.Title != "" {
				hw.raw(`<h2>`)
				hw.text(block.Title)
				hw.raw(`</h2>`)
			}
			hw.raw(`<table><thead><tr>`)
			for _, label := range block.Labels {
				hw.raw(`<th>`)
				hw.text(label)
				hw.raw(`</th>`)
			}
			hw.raw(`</tr></thead><tbody>`)
			for _, row := range block.Rows {
				hw.raw(`<tr>`)
				for _, cell := range row {
					hw.raw(`<td>`)
					hw.text(cell)
					hw.raw(`</td>`)
				}
				hw.raw(`</tr>`)
			}
			hw.raw(`</tbody></table>`)
		}

		hw.raw(`</body></html>`)
		return hw.err
	})
}

func renderHTMLDocument(ctx context.Context, doc documentContent) ([]byte, error) {
	var buf bytes.Buffer
	if err := documentHTML(doc).Render(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// htmlWriter remembers the first write error so rendering reads linearly.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}
