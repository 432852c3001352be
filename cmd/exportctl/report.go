package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/report"
)

func newReportCmd(c *cli) *cobra.Command {
	var (
		format  string
		filters map[string]string
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "report [type]",
		Short: "Download a system report from the report service",
		Long: `Report asks the report service (REPORT_API_URL) to render a report. When
an Excel report fails on the service side, the raw data is fetched and the
workbook is built locally.

Examples:
  exportctl report --list
  exportctl report machines -f pdf
  exportctl report maintenance -f excel --filter from=2026-01-01 --filter status=open`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.Reports == nil {
				return errors.New("no report service configured (set REPORT_API_URL)")
			}
			out := cmd.OutOrStdout()

			if list || len(args) == 0 {
				for _, def := range c.app.Reports.Catalog().All() {
					fmt.Fprintf(out, "%-20s %s\n", def.Type, def.Title)
				}
				return nil
			}

			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			sink, err := c.sink()
			if err != nil {
				return err
			}

			ctx := c.context(cmd)
			outcome := c.app.Reports.Export(ctx, report.ReportType(args[0]), f, report.Filters(filters), sink)

			switch outcome.Kind {
			case report.OutcomeDownloaded:
				art := outcome.Artifact
				if err := c.app.Downloads.Trigger(ctx, art.Filename, art.MIMEType, art.Data, sink); err != nil {
					return fmt.Errorf("save %s: %w", art.Filename, err)
				}
				describe(cmd, sink, export.Result{Requested: f, Produced: art.Format, Filename: art.Filename})
			case report.OutcomeAlreadyHandled:
				describe(cmd, sink, outcome.Result)
				fmt.Fprintln(out, "note: the report service failed; the workbook was built locally")
			default:
				return fmt.Errorf("%s: %w", export.FormatUserError(outcome.Err), outcome.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "pdf", "report format: pdf, excel")
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "report filter name=value (repeatable)")
	cmd.Flags().BoolVar(&list, "list", false, "list available reports")
	c.addOutputFlags(cmd)
	return cmd
}
