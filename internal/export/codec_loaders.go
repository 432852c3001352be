package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
)

// workbookCodec is the module handle for the workbook codec.
type workbookCodec struct {
	newFile func() *excelize.File
}

// documentCodec is the module handle for the PDF codec.
type documentCodec struct {
	newPDF func(orientation string) *fpdf.Fpdf
}

// tableLayoutCodec carries the table styling and metrics used to plan pages.
type tableLayoutCodec struct {
	style TableStyle
}

// DefaultLoaders returns loaders backed by excelize and fpdf. Each loader
// probes its library once so a broken environment is detected up front.
func DefaultLoaders() map[Codec]LoaderFunc {
	return map[Codec]LoaderFunc{
		CodecWorkbook:    loadWorkbookCodec,
		CodecDocument:    loadDocumentCodec,
		CodecTableLayout: loadTableLayoutCodec,
	}
}

func loadWorkbookCodec(context.Context) (any, error) {
	f := excelize.NewFile()
	if _, err := f.NewSheet(workbookSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("probe workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("probe workbook: %w", err)
	}
	return &workbookCodec{newFile: func() *excelize.File { return excelize.NewFile() }}, nil
}

func loadDocumentCodec(context.Context) (any, error) {
	newPDF := func(orientation string) *fpdf.Fpdf {
		return fpdf.New(orientation, "mm", "A4", "")
	}
	probe := newPDF("P")
	probe.AddPage()
	if err := probe.Error(); err != nil {
		return nil, fmt.Errorf("probe document: %w", err)
	}
	return &documentCodec{newPDF: newPDF}, nil
}

func loadTableLayoutCodec(context.Context) (any, error) {
	style := DefaultTableStyle()
	probe := fpdf.New("P", "mm", "A4", "")
	probe.SetFont(style.FontFamily, "", style.FontSize)
	if probe.GetStringWidth("W") <= 0 {
		return nil, errors.New("font metrics unavailable")
	}
	if err := probe.Error(); err != nil {
		return nil, fmt.Errorf("probe table layout: %w", err)
	}
	return &tableLayoutCodec{style: style}, nil
}
