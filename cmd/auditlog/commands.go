package main

import (
	"errors"
	"fmt"

	"auditlog/internal/accesslog"
	"auditlog/internal/config"
	"auditlog/internal/datasource/file"
	"auditlog/internal/etl"
	"auditlog/internal/export"
	"auditlog/internal/merge"

	"github.com/spf13/cobra"
)

func (a *app) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Merge, parse, export and load as described by the pipeline file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline()
			if err != nil {
				return err
			}
			flush := a.setupMetrics(etl.JobName(p))
			defer flush()

			sum, err := etl.Run(cmd.Context(), p, etl.Options{Logger: a.logger})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "run %s: %d files, %d lines, %d records, %d loaded in %s\n",
				sum.RunID, sum.Merge.Files, sum.Stats.Lines, sum.Records, sum.Loaded, sum.Elapsed)
			return nil
		},
	}
}

func (a *app) newMergeCmd() *cobra.Command {
	var (
		out     string
		pattern string
	)
	cmd := &cobra.Command{
		Use:   "merge [dir]",
		Short: "Concatenate log objects into one merged file",
		Long: `Without arguments the source and merge path come from the pipeline file.
With a directory argument every file matching --pattern under it is merged
into --out.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sum merge.Summary
				err error
			)
			if len(args) == 1 {
				sum, err = merge.Merge(cmd.Context(), file.NewDir(args[0], pattern), out,
					merge.Options{Logger: a.logger})
			} else {
				var p config.Pipeline
				if p, err = a.loadPipeline(); err != nil {
					return err
				}
				flush := a.setupMetrics(etl.JobName(p))
				defer flush()
				sum, err = etl.Merge(cmd.Context(), p, etl.Options{Logger: a.logger})
			}
			if errors.Is(err, merge.ErrNoInput) {
				fmt.Fprintln(a.stdout, "no input files; nothing merged")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "merged %d files (%d lines) into %s\n", sum.Files, sum.Lines, sum.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", config.DefaultMergedName, "merged file path (directory argument only)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "doublestar glob relative to the directory (default all files)")
	return cmd
}

func (a *app) newParseCmd() *cobra.Command {
	var (
		format     string
		unreferred string
		dedupe     bool
		workers    int
		useragent  bool
	)
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse and enrich one log file and print the dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wr, err := export.New(config.Export{Kind: format, Options: config.Options{}})
			if err != nil {
				return err
			}
			p := config.Pipeline{
				Parser: config.Parser{
					Kind:    "s3-access-log",
					Options: config.Options{"unreferred": unreferred, "dedupe": dedupe},
				},
				Runtime: config.RuntimeConfig{Workers: workers},
			}
			if useragent {
				p.Transform = []config.Transform{{Kind: "useragent", Options: config.Options{}}}
			}
			res, err := etl.Parse(cmd.Context(), p, args[0], etl.Options{Logger: a.logger})
			if err != nil {
				return err
			}
			err = wr.Write(a.stdout, res.Dataset)
			if errors.Is(err, export.ErrEmptyDataset) {
				a.logger.Warn("no records", "path", args[0], "lines", res.Stats.Lines)
				return nil
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", export.KindJSON, "output format: csv, json or msgpack")
	f.StringVar(&unreferred, "unreferred", "exclude", "lines without a referrer: exclude or keep")
	f.BoolVar(&dedupe, "dedupe", false, "drop byte-identical repeated lines")
	f.IntVarP(&workers, "workers", "w", 0, "parse shards (0 uses AUDITLOG_WORKERS or GOMAXPROCS)")
	f.BoolVar(&useragent, "useragent", false, "add ua_* columns decomposed from the user agent")
	return cmd
}

func (a *app) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.loadPipeline(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "configuration is valid: %s\n", a.v.GetString(keyConfig))
			return nil
		},
	}
}

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "Print the canonical access-log field names in line order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range accesslog.S3AccessLog().Fields() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Name, d.Kind)
			}
			return nil
		},
	}
}
