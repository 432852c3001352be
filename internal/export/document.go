package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-pdf/fpdf"
)

const defaultMaxLogRows = 50

// DocumentEncoder produces paginated PDF documents, falling back to an HTML
// document when the PDF codecs are unavailable or composition fails.
type DocumentEncoder struct {
	registry   *CodecRegistry
	maxLogRows int
	logger     *slog.Logger
	renderHTML func(ctx context.Context, doc documentContent) ([]byte, error)
}

// NewDocumentEncoder creates a document encoder. maxLogRows bounds the log
// block of composite reports; non-positive selects 50.
func NewDocumentEncoder(registry *CodecRegistry, maxLogRows int, logger *slog.Logger) *DocumentEncoder {
	if registry == nil {
		registry = Default()
	}
	if maxLogRows <= 0 {
		maxLogRows = defaultMaxLogRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentEncoder{
		registry:   registry,
		maxLogRows: maxLogRows,
		logger:     logger,
		renderHTML: renderHTMLDocument,
	}
}

// MaxLogRows returns the composite log truncation threshold.
func (e *DocumentEncoder) MaxLogRows() int { return e.maxLogRows }

// Encode renders records as a single titled table.
func (e *DocumentEncoder) Encode(ctx context.Context, records []Record, cols Columns, opts Options, now time.Time) (*Artifact, error) {
	doc := documentContent{
		Title:  titleOrDefault(opts.Title, ""),
		Meta:   metadataLine(now, len(records), len(records)),
		Blocks: []tableBlock{{Labels: cols.Labels, Rows: rowStrings(records, cols)}},
	}
	return e.render(ctx, doc, opts.Filename, now)
}

// EncodeComposite renders a summary, cost breakdown and log as separate
// tables. The log is truncated to MaxLogRows.
func (e *DocumentEncoder) EncodeComposite(ctx context.Context, report CompositeReport, opts Options, now time.Time) (*Artifact, error) {
	if report.IsEmpty() {
		return nil, ErrEmptyInput
	}
	doc, err := report.content(titleOrDefault(opts.Title, report.Title), e.maxLogRows, now)
	if err != nil {
		return nil, err
	}
	return e.render(ctx, doc, opts.Filename, now)
}

func (e *DocumentEncoder) render(ctx context.Context, doc documentContent, filename string, now time.Time) (*Artifact, error) {
	data, pdfErr := e.renderPDF(ctx, doc)
	if cerr := contextErr(pdfErr); cerr != nil {
		return nil, cerr
	}
	if pdfErr == nil {
		return &Artifact{
			Filename: ResolveFilename(filename, defaultPrefix(FormatPDF), FormatPDF.Extension(), now),
			MIMEType: MIMEPDF,
			Format:   FormatPDF,
			Data:     data,
		}, nil
	}

	e.logger.Warn("pdf generation unavailable, rendering html", "error", pdfErr)

	html, htmlErr := e.renderHTML(ctx, doc)
	if htmlErr != nil {
		return nil, &DocumentRenderError{PDFCause: pdfErr, HTMLCause: htmlErr}
	}
	return &Artifact{
		Filename: ResolveFilename(filename, defaultPrefix(FormatPDF), FormatHTML.Extension(), now),
		MIMEType: MIMEHTML,
		Format:   FormatHTML,
		Data:     html,
		Text:     true,
		Notice:   NoticeHTMLFallback,
	}, nil
}

func (e *DocumentEncoder) renderPDF(ctx context.Context, doc documentContent) (data []byte, err error) {
	docModule, err := e.registry.Load(ctx, CodecDocument)
	if err != nil {
		return nil, err
	}
	layoutModule, err := e.registry.Load(ctx, CodecTableLayout)
	if err != nil {
		return nil, err
	}
	dc, ok := docModule.(*documentCodec)
	if !ok {
		return nil, &CodecError{Codec: CodecDocument, Cause: fmt.Errorf("unexpected module type %T", docModule)}
	}
	lc, ok := layoutModule.(*tableLayoutCodec)
	if !ok {
		return nil, &CodecError{Codec: CodecTableLayout, Cause: fmt.Errorf("unexpected module type %T", layoutModule)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = &CodecError{Codec: CodecDocument, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()

	style := lc.style
	pdf := dc.newPDF(orientationFor(doc.maxColumns()))
	pdf.SetMargins(style.Margin, style.Margin, style.Margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCellMargin(0)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("tabexport", false)

	// Core fonts are cp1252. Text is planned as code points, one rune per
	// cp1252 byte, and turned into bytes only when drawn.
	plan := planDocument(doc.mapText(codePoints(pdf.UnicodeTranslatorFromDescriptor(""))), style, &fpdfMeasurer{pdf: pdf, style: style})

	drawPlan(pdf, plan, style)
	if err := pdf.Error(); err != nil {
		return nil, &CodecError{Codec: CodecDocument, Cause: err}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &CodecError{Codec: CodecDocument, Cause: err}
	}
	return buf.Bytes(), nil
}

func drawPlan(pdf *fpdf.Fpdf, plan documentPlan, style TableStyle) {
	printable := plan.PageWidth - 2*style.Margin

	for i, page := range plan.Pages {
		pdf.AddPage()
		for _, it := range page.Items {
			switch it.Kind {
			case itemTitle:
				pdf.SetFont(style.FontFamily, "B", style.TitleSize)
				pdf.SetXY(style.Margin, it.Y)
				pdf.CellFormat(printable, it.Height, codeBytes(it.Text), "", 0, "L", false, 0, "")
			case itemMeta:
				pdf.SetFont(style.FontFamily, "", style.MetaSize)
				pdf.SetTextColor(90, 90, 90)
				pdf.SetXY(style.Margin, it.Y)
				pdf.CellFormat(printable, it.Height, codeBytes(it.Text), "", 0, "L", false, 0, "")
				pdf.SetTextColor(0, 0, 0)
			case itemBlockTitle:
				pdf.SetFont(style.FontFamily, "B", style.BlockTitleSize)
				pdf.SetXY(style.Margin, it.Y)
				pdf.CellFormat(printable, it.Height, codeBytes(it.Text), "", 0, "L", false, 0, "")
			case itemRow:
				drawRow(pdf, it, style)
			}
		}

		// Second pass: the page total is known only after planning.
		pdf.SetFont(style.FontFamily, "", style.FontSize)
		pdf.SetXY(style.Margin, plan.PageHeight-style.Margin-footerHeight+1)
		pdf.CellFormat(printable, footerHeight-1, plan.FooterText(i), "", 0, "C", false, 0, "")
	}
}

func drawRow(pdf *fpdf.Fpdf, it layoutItem, style TableStyle) {
	rectStyle := "D"
	fontStyle := ""
	if it.Header {
		pdf.SetFillColor(230, 230, 230)
		rectStyle = "FD"
		fontStyle = "B"
	}
	pdf.SetFont(style.FontFamily, fontStyle, style.FontSize)
	pdf.SetDrawColor(180, 180, 180)

	x := style.Margin
	for i, lines := range it.Cells {
		w := it.Widths[i]
		pdf.Rect(x, it.Y, w, it.Height, rectStyle)
		for li, line := range lines {
			pdf.SetXY(x+style.Padding, it.Y+style.Padding+float64(li)*style.LineHeight)
			pdf.CellFormat(w-2*style.Padding, style.LineHeight, codeBytes(line), "", 0, "L", false, 0, "")
		}
		x += w
	}
}

type fpdfMeasurer struct {
	pdf   *fpdf.Fpdf
	style TableStyle
}

func (m *fpdfMeasurer) font(bold bool) {
	if bold {
		m.pdf.SetFont(m.style.FontFamily, "B", m.style.FontSize)
		return
	}
	m.pdf.SetFont(m.style.FontFamily, "", m.style.FontSize)
}

func (m *fpdfMeasurer) StringWidth(s string, bold bool) float64 {
	m.font(bold)
	return m.pdf.GetStringWidth(codeBytes(s))
}

func (m *fpdfMeasurer) SplitText(s string, width float64, bold bool) []string {
	m.font(bold)
	return m.pdf.SplitText(s, width)
}

// codePoints wraps a cp1252 translator so its output keeps one rune per
// code byte. fpdf's SplitText indexes the 256-entry width table by rune;
// raw cp1252 bytes above 0x7F would decode as U+FFFD. Runes without a
// cp1252 glyph become '.'.
func codePoints(tr func(string) string) func(string) string {
	return func(s string) string {
		encoded := tr(s)
		runes := make([]rune, len(encoded))
		for i := 0; i < len(encoded); i++ {
			runes[i] = rune(encoded[i])
		}
		return string(runes)
	}
}

// codeBytes turns code-point text back into the cp1252 bytes fpdf draws.
func codeBytes(s string) string {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		b = append(b, byte(r))
	}
	return string(b)
}

func metadataLine(now time.Time, shown, total int) string {
	generated := now.Format("2006-01-02 15:04:05")
	if shown < total {
		return fmt.Sprintf("Generated: %s | Records: %d of %d (truncated to first %d)", generated, shown, total, shown)
	}
	return fmt.Sprintf("Generated: %s | Records: %d", generated, total)
}
