package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabexport/internal/application"
	"github.com/JonMunkholm/tabexport/internal/config"
	"github.com/JonMunkholm/tabexport/internal/download"
	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/history"
	"github.com/JonMunkholm/tabexport/internal/logging"
)

// cli carries state shared by subcommands. app is set by the root
// PersistentPreRunE.
type cli struct {
	envFile  string
	logLevel string
	outDir   string
	toS3     bool

	app *application.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "exportctl",
		Short: "Export tabular data as CSV, Excel or PDF",
		Long: `exportctl renders records as CSV, Excel workbooks or PDF documents and
requests system reports from the report service.

Configuration is read from the environment (and an optional .env file) with
the same variables as the export server. Every export is recorded in the
export history.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env", ".env", "dotenv file to load (ignored when missing)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(
		newExportCmd(c),
		newCompositeCmd(c),
		newReportCmd(c),
		newFormatsCmd(c),
		newHistoryCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	// Logs go to stderr so stdout stays parseable.
	logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	app, err := application.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	c.app = app
	return nil
}

// context marks work as coming from the CLI for the export history.
func (c *cli) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return history.ContextWithSource(ctx, history.SourceCLI)
}

// addOutputFlags registers the destination flags shared by export commands.
func (c *cli) addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.outDir, "out", "o", "", "output directory (default: DOWNLOAD_DIR)")
	cmd.Flags().BoolVar(&c.toS3, "s3", false, "upload to the configured object store instead of a directory")
}

// sink returns the destination selected by the output flags.
func (c *cli) sink() (download.Sink, error) {
	if c.toS3 {
		if c.app.Archive == nil {
			return nil, errors.New("--s3 requires S3_ENDPOINT and S3_BUCKET")
		}
		return c.app.Archive, nil
	}
	dir := c.outDir
	if dir == "" {
		dir = c.app.Config.Storage.DownloadDir
	}
	return &download.DirSink{Dir: dir, Logger: c.app.Logger}, nil
}

// describe prints where an export went.
func describe(cmd *cobra.Command, sink download.Sink, res export.Result) {
	out := cmd.OutOrStdout()
	location := res.Filename
	if ds, ok := sink.(*download.DirSink); ok {
		if saved := ds.Saved(); len(saved) > 0 {
			location = saved[len(saved)-1]
		}
	}
	if res.Rows > 0 {
		fmt.Fprintf(out, "wrote %s (%s, %d rows)\n", location, res.Produced, res.Rows)
	} else {
		fmt.Fprintf(out, "wrote %s (%s)\n", location, res.Produced)
	}
	if res.Degraded && res.Notice == "" {
		fmt.Fprintf(out, "note: %s was unavailable, produced %s instead\n", res.Requested, res.Produced)
	}
	if res.Notice != "" {
		fmt.Fprintf(out, "note: %s\n", res.Notice)
	}
}
