package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/annbench/benchmark"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		output string
		batch  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured parameter sweep and print a report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, err := g.logger()
			if err != nil {
				return err
			}
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Output = output
			}
			if cmd.Flags().Changed("batch") {
				cfg.Batch = batch
			}

			logger.InfoContext(ctx, "generating dataset",
				"distribution", cfg.Dataset.Distribution,
				"train", cfg.Dataset.Train,
				"test", cfg.Dataset.Test,
				"dimension", cfg.Dataset.Dimension,
			)
			ds, err := benchmark.Generate(ctx, cfg.Dataset, cfg.Metric, cfg.K, cfg.Workers)
			if err != nil {
				return err
			}

			opts, stop, err := g.indexOptions(ctx, logger)
			defer stop()
			if err != nil {
				return err
			}
			runner := benchmark.NewRunner(cfg,
				benchmark.WithRunnerLogger(logger),
				benchmark.WithIndexOptions(opts...),
			)
			report, err := runner.Run(ctx, ds)
			if err != nil {
				return err
			}

			if err := report.WriteTable(cmd.OutOrStdout()); err != nil {
				return err
			}
			if cfg.Output != "" {
				if err := report.SaveJSON(cfg.Output); err != nil {
					return err
				}
				logger.InfoContext(ctx, "report written", "path", cfg.Output, "results", len(report.Results))
			}
			logger.InfoContext(ctx, "run finished",
				"run_id", report.RunID,
				"duration", report.Duration,
				"vectors", humanize.Comma(int64(len(ds.Train))),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the JSON report to this path")
	cmd.Flags().BoolVar(&batch, "batch", false, "also measure batch queries")
	return cmd
}
