package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/report"
)

type exportFlags struct {
	format   string
	title    string
	filename string
	headers  string
}

func newExportCmd(c *cli) *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export JSON records as CSV, Excel or PDF",
		Long: `Export reads JSON records from file (or stdin when file is "-" or omitted)
and renders them in the requested format.

Accepted input shapes: a bare array of objects, an object with a "data"
array, or an object whose first array property holds the records.

Examples:
  # CSV into ./exports
  exportctl export machines.json

  # Excel with labelled columns
  exportctl export machines.json -f excel --headers headers.yaml

  # PDF with a title, uploaded to the object store
  exportctl export machines.json -f pdf --title "Machines" --s3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args, c.app.Config.Server.MaxBodySize)
			if err != nil {
				return err
			}
			records, err := report.ExtractRecords(data)
			if err != nil {
				return err
			}

			opts := export.Options{Filename: flags.filename, Title: flags.title}
			if flags.headers != "" {
				if opts.Headers, err = loadHeaders(flags.headers); err != nil {
					return err
				}
			}

			sink, err := c.sink()
			if err != nil {
				return err
			}
			res, err := c.app.Exporter.Export(c.context(cmd), records, flags.format, opts, sink)
			if err != nil {
				return fmt.Errorf("%s: %w", export.FormatUserError(err), err)
			}
			describe(cmd, sink, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "csv", "output format: csv, excel, pdf")
	cmd.Flags().StringVar(&flags.title, "title", "", "document title (pdf)")
	cmd.Flags().StringVar(&flags.filename, "filename", "", "output file name without extension")
	cmd.Flags().StringVar(&flags.headers, "headers", "", "YAML or JSON file mapping record keys to column labels")
	c.addOutputFlags(cmd)
	return cmd
}

func newCompositeCmd(c *cli) *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "composite [file]",
		Short: "Render a composite report (summary, breakdown, log) as PDF",
		Long: `Composite reads a JSON object with "summary", "breakdown" and "logs"
members and renders them as one document. The log is truncated to
EXPORT_MAX_LOG_ROWS rows.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args, c.app.Config.Server.MaxBodySize)
			if err != nil {
				return err
			}
			var rep export.CompositeReport
			if err := json.Unmarshal(data, &rep); err != nil {
				return fmt.Errorf("decode composite report: %w", err)
			}

			sink, err := c.sink()
			if err != nil {
				return err
			}
			opts := export.Options{Filename: flags.filename, Title: flags.title}
			res, err := c.app.Exporter.ExportComposite(c.context(cmd), rep, opts, sink)
			if err != nil {
				return fmt.Errorf("%s: %w", export.FormatUserError(err), err)
			}
			describe(cmd, sink, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.title, "title", "", "document title")
	cmd.Flags().StringVar(&flags.filename, "filename", "", "output file name without extension")
	c.addOutputFlags(cmd)
	return cmd
}

// readInput reads the named file, or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string, limit int64) ([]byte, error) {
	var r io.Reader = cmd.InOrStdin()
	name := "stdin"
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r, name = f, args[0]
	}

	data, err := export.ReadInput(r, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("read %s: %w", name, export.ErrEmptyInput)
	}
	return data, nil
}

// loadHeaders reads a header map. JSON is valid YAML, so one decoder serves
// both; key order is preserved.
func loadHeaders(path string) (export.HeaderMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h export.HeaderMap
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse headers %s: %w", path, err)
	}
	return h, nil
}
