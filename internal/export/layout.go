package export

import "fmt"

// TableStyle holds the fixed typography and spacing of document tables.
// Lengths are millimetres, font sizes points.
type TableStyle struct {
	FontFamily     string
	FontSize       float64
	TitleSize      float64
	BlockTitleSize float64
	MetaSize       float64
	Padding        float64
	LineHeight     float64
	Margin         float64
	BlockGap       float64
	MinColumn      float64
	MaxColumn      float64
}

// DefaultTableStyle is 8pt Helvetica with 2mm cell padding.
func DefaultTableStyle() TableStyle {
	return TableStyle{
		FontFamily:     "Helvetica",
		FontSize:       8,
		TitleSize:      16,
		BlockTitleSize: 11,
		MetaSize:       9,
		Padding:        2,
		LineHeight:     3.6,
		Margin:         12,
		BlockGap:       6,
		MinColumn:      12,
		MaxColumn:      80,
	}
}

const (
	a4Short = 210.0
	a4Long  = 297.0

	titleHeight      = 10.0
	metaHeight       = 6.0
	blockTitleHeight = 8.0
	footerHeight     = 6.0

	// Tables wider than this many columns are laid out in landscape.
	portraitMaxColumns = 6

	widthSampleRows = 200
)

// Measurer provides font metrics for the table font.
type Measurer interface {
	StringWidth(s string, bold bool) float64
	SplitText(s string, width float64, bold bool) []string
}

type tableBlock struct {
	Title  string
	Labels []string
	Rows   [][]string
}

// documentContent is the format-independent content of a document, shared
// by the PDF renderer and the HTML fallback.
type documentContent struct {
	Title  string
	Meta   string
	Blocks []tableBlock
}

func (d documentContent) maxColumns() int {
	n := 0
	for _, b := range d.Blocks {
		if len(b.Labels) > n {
			n = len(b.Labels)
		}
	}
	return n
}

func (d documentContent) mapText(fn func(string) string) documentContent {
	out := documentContent{Title: fn(d.Title), Meta: fn(d.Meta), Blocks: make([]tableBlock, len(d.Blocks))}
	for i, b := range d.Blocks {
		nb := tableBlock{Title: fn(b.Title), Labels: make([]string, len(b.Labels)), Rows: make([][]string, len(b.Rows))}
		for j, l := range b.Labels {
			nb.Labels[j] = fn(l)
		}
		for j, row := range b.Rows {
			nr := make([]string, len(row))
			for k, cell := range row {
				nr[k] = fn(cell)
			}
			nb.Rows[j] = nr
		}
		out.Blocks[i] = nb
	}
	return out
}

type itemKind int

const (
	itemTitle itemKind = iota
	itemMeta
	itemBlockTitle
	itemRow
)

type layoutItem struct {
	Kind   itemKind
	Y      float64
	Height float64
	Text   string
	Widths []float64
	Cells  [][]string
	Header bool
}

type pagePlan struct {
	Items []layoutItem
}

type documentPlan struct {
	Orientation string
	PageWidth   float64
	PageHeight  float64
	Pages       []pagePlan
}

// FooterText is the running footer of page i (zero-based).
func (p documentPlan) FooterText(i int) string {
	return fmt.Sprintf("Page %d of %d", i+1, len(p.Pages))
}

func orientationFor(columns int) string {
	if columns > portraitMaxColumns {
		return "L"
	}
	return "P"
}

// planDocument lays the content out on pages. The header row of a table is
// repeated at the top of every page the table continues on, and a block whose
// title, header and first row do not fit the remaining space starts a new page.
func planDocument(doc documentContent, style TableStyle, m Measurer) documentPlan {
	plan := documentPlan{Orientation: orientationFor(doc.maxColumns()), PageWidth: a4Short, PageHeight: a4Long}
	if plan.Orientation == "L" {
		plan.PageWidth, plan.PageHeight = a4Long, a4Short
	}

	top := style.Margin
	bottom := plan.PageHeight - style.Margin - footerHeight
	printable := plan.PageWidth - 2*style.Margin

	plan.Pages = []pagePlan{{}}
	y := top
	page := func() *pagePlan { return &plan.Pages[len(plan.Pages)-1] }
	place := func(it layoutItem) {
		it.Y = y
		page().Items = append(page().Items, it)
		y += it.Height
	}
	newPage := func() {
		plan.Pages = append(plan.Pages, pagePlan{})
		y = top
	}

	if doc.Title != "" {
		place(layoutItem{Kind: itemTitle, Height: titleHeight, Text: doc.Title})
	}
	if doc.Meta != "" {
		place(layoutItem{Kind: itemMeta, Height: metaHeight, Text: doc.Meta})
	}
	y += style.BlockGap / 2

	for _, block := range doc.Blocks {
		widths := columnWidths(block, printable, style, m)
		header := buildRow(block.Labels, widths, style, m, true)

		need := header.Height
		if block.Title != "" {
			need += blockTitleHeight
		}
		var rows []layoutItem
		for _, r := range block.Rows {
			rows = append(rows, buildRow(r, widths, style, m, false))
		}
		if len(rows) > 0 {
			need += rows[0].Height
		}
		if y+need > bottom && len(page().Items) > 0 {
			newPage()
		}

		if block.Title != "" {
			place(layoutItem{Kind: itemBlockTitle, Height: blockTitleHeight, Text: block.Title})
		}
		place(header)

		freshTop := top + header.Height
		rowsOnPage := 0
		for _, row := range rows {
			for y+row.Height > bottom {
				// Move a row that fits on a page of its own; split one that does not.
				if rowsOnPage > 0 && freshTop+row.Height <= bottom {
					newPage()
					place(header)
					rowsOnPage = 0
					continue
				}
				n := int((bottom - y - 2*style.Padding) / style.LineHeight)
				if n < 1 {
					if y <= freshTop {
						n = 1
					} else {
						newPage()
						place(header)
						rowsOnPage = 0
						continue
					}
				}
				head, rest := splitRow(row, n, style)
				place(head)
				newPage()
				place(header)
				rowsOnPage = 0
				row = rest
			}
			place(row)
			rowsOnPage++
		}
		y += style.BlockGap
	}

	return plan
}

func buildRow(values []string, widths []float64, style TableStyle, m Measurer, header bool) layoutItem {
	cells := make([][]string, len(values))
	maxLines := 1
	for i, v := range values {
		inner := widths[i] - 2*style.Padding
		if inner < 1 {
			inner = 1
		}
		lines := []string{""}
		if v != "" {
			if split := m.SplitText(v, inner, header); len(split) > 0 {
				lines = split
			}
		}
		cells[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	return layoutItem{
		Kind:   itemRow,
		Height: float64(maxLines)*style.LineHeight + 2*style.Padding,
		Widths: widths,
		Cells:  cells,
		Header: header,
	}
}

// splitRow cuts a row after n lines. The remainder keeps the lines of every
// cell that did not fit.
func splitRow(row layoutItem, n int, style TableStyle) (head, rest layoutItem) {
	head, rest = row, row
	head.Cells = make([][]string, len(row.Cells))
	rest.Cells = make([][]string, len(row.Cells))
	headLines, restLines := 1, 1
	for i, lines := range row.Cells {
		k := min(n, len(lines))
		head.Cells[i] = lines[:k]
		rest.Cells[i] = lines[k:]
		if len(rest.Cells[i]) == 0 {
			rest.Cells[i] = []string{""}
		}
		headLines = max(headLines, k)
		restLines = max(restLines, len(rest.Cells[i]))
	}
	head.Height = float64(headLines)*style.LineHeight + 2*style.Padding
	rest.Height = float64(restLines)*style.LineHeight + 2*style.Padding
	return head, rest
}

// columnWidths sizes columns by their widest sampled content, clamped to the
// style bounds, then scales them to fill the printable width.
func columnWidths(block tableBlock, printable float64, style TableStyle, m Measurer) []float64 {
	n := len(block.Labels)
	if n == 0 {
		return nil
	}

	natural := make([]float64, n)
	total := 0.0
	for i, label := range block.Labels {
		w := m.StringWidth(label, true)
		for r, row := range block.Rows {
			if r >= widthSampleRows {
				break
			}
			if i < len(row) {
				if cw := m.StringWidth(row[i], false); cw > w {
					w = cw
				}
			}
		}
		w += 2 * style.Padding
		w = max(style.MinColumn, min(w, style.MaxColumn))
		natural[i] = w
		total += w
	}

	scale := printable / total
	for i := range natural {
		natural[i] *= scale
	}
	return natural
}
