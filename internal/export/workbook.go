package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	workbookSheet      = "Data"
	defaultColumnWidth = 20
)

// WorkbookEncoder produces single-sheet XLSX workbooks.
type WorkbookEncoder struct {
	registry    *CodecRegistry
	columnWidth float64
	logger      *slog.Logger
}

// NewWorkbookEncoder creates a workbook encoder. A non-positive column width
// selects the default of 20.
func NewWorkbookEncoder(registry *CodecRegistry, columnWidth float64, logger *slog.Logger) *WorkbookEncoder {
	if registry == nil {
		registry = Default()
	}
	if columnWidth <= 0 {
		columnWidth = defaultColumnWidth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookEncoder{registry: registry, columnWidth: columnWidth, logger: logger}
}

// Encode writes records to sheet "Data" with a bold header row of labels.
//
// Every failure, including a panic inside the codec, is returned as an error
// matching ErrCodecUnavailable.
func (e *WorkbookEncoder) Encode(ctx context.Context, records []Record, cols Columns, opts Options, now time.Time) (art *Artifact, err error) {
	module, err := e.registry.Load(ctx, CodecWorkbook)
	if err != nil {
		return nil, err
	}
	codec, ok := module.(*workbookCodec)
	if !ok {
		return nil, &CodecError{Codec: CodecWorkbook, Cause: fmt.Errorf("unexpected module type %T", module)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			art = nil
			err = &CodecError{Codec: CodecWorkbook, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()

	data, err := e.build(codec, records, cols)
	if err != nil {
		return nil, &CodecError{Codec: CodecWorkbook, Cause: err}
	}

	e.logger.Debug("workbook encoded", "rows", len(records), "columns", cols.Len(), "bytes", len(data))

	return &Artifact{
		Filename: ResolveFilename(opts.Filename, defaultPrefix(FormatExcel), FormatExcel.Extension(), now),
		MIMEType: MIMEXLSX,
		Format:   FormatExcel,
		Data:     data,
	}, nil
}

func (e *WorkbookEncoder) build(codec *workbookCodec, records []Record, cols Columns) ([]byte, error) {
	f := codec.newFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), workbookSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(cols.Labels))
	for i, label := range cols.Labels {
		header[i] = label
	}
	if err := f.SetSheetRow(workbookSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	row := make([]any, len(cols.Keys))
	for i, rec := range records {
		for j, key := range cols.Keys {
			v, _ := rec.Get(key)
			row[j] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(workbookSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if cols.Len() > 0 {
		last, err := excelize.ColumnNumberToName(cols.Len())
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(workbookSheet, "A", last, e.columnWidth); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}

		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return nil, fmt.Errorf("header style: %w", err)
		}
		if err := f.SetRowStyle(workbookSheet, 1, 1, bold); err != nil {
			return nil, fmt.Errorf("header style: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
