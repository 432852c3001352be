package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/history"
)

func newFormatsCmd(c *cli) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List export formats and codec availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			registry := c.app.Registry

			if check {
				for codec := range export.DefaultLoaders() {
					// Failures are reflected in the state listing below.
					_, _ = registry.Load(cmd.Context(), codec)
				}
			}

			fmt.Fprintln(out, "Formats:")
			for _, f := range export.Formats() {
				fmt.Fprintf(out, "  %-6s %s\n", f, f.MIMEType())
			}

			states := registry.States()
			names := make([]string, 0, len(states))
			for codec := range states {
				names = append(names, string(codec))
			}
			sort.Strings(names)

			fmt.Fprintln(out, "Codecs:")
			for _, name := range names {
				fmt.Fprintf(out, "  %-12s %s\n", name, states[export.Codec(name)])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "load every codec before reporting its state")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		filter history.Filter
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent exports",
		Long: `History lists recorded exports, newest first. Without DATABASE_URL the
history only covers the current process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			entries, err := c.app.History.Recent(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tKIND\tREQUESTED\tPRODUCED\tROWS\tFILE\tSOURCE\tERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.Kind, e.Requested, e.Produced,
					e.Rows, e.Filename, e.Source, e.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.Format, "format", "", "only exports requesting or producing this format")
	cmd.Flags().StringVar(&filter.ReportType, "report", "", "only exports of this report type")
	cmd.Flags().IntVar(&filter.Limit, "limit", history.DefaultLimit, "maximum entries")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this (e.g. 24h)")
	return cmd
}
