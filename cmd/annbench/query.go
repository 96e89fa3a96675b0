package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/annbench"
	"github.com/hupe1980/annbench/benchmark"
	"github.com/hupe1980/annbench/model"
)

func newQueryCmd(g *globalFlags) *cobra.Command {
	var (
		snapshot string
		latest   bool
		k        int
		ef       int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Load a snapshot and measure it against the configured test queries",
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
			if k <= 0 {
				k = cfg.K
			}

			store, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			if latest {
				catalog, err := openCatalog(ctx, cfg.Store)
				if err != nil {
					return err
				}
				if catalog == nil {
					return errors.New("--latest requires store.catalogTable")
				}
				v, err := catalog.Latest(ctx, cfg.Dataset.Name)
				if err != nil {
					return err
				}
				snapshot = v.Snapshot
			}
			if snapshot == "" {
				return errors.New("--snapshot or --latest is required")
			}

			opts, stop, err := g.indexOptions(ctx, logger)
			defer stop()
			if err != nil {
				return err
			}
			idx, err := annbench.LoadFrom(ctx, store, snapshot, append(opts, annbench.WithWorkers(cfg.Workers))...)
			if err != nil {
				return err
			}
			defer idx.Close()

			if ef > 0 {
				if err := idx.SetSearchWidth(ef); err != nil {
					return err
				}
			}

			ds, err := benchmark.Generate(ctx, cfg.Dataset, cfg.Metric, k, cfg.Workers)
			if err != nil {
				return err
			}
			if ds.Dimension() != idx.Dimension() {
				return fmt.Errorf("%w: snapshot has dimension %d, dataset %d",
					annbench.ErrInvalidArgument, idx.Dimension(), ds.Dimension())
			}

			got := make([][]model.Label, len(ds.Test))
			latencies := make([]time.Duration, len(ds.Test))
			start := time.Now()
			for i, q := range ds.Test {
				t := time.Now()
				labels, err := idx.Query(ctx, q, k)
				if err != nil {
					return err
				}
				latencies[i] = time.Since(t)
				got[i] = labels
			}
			elapsed := time.Since(start)

			lat := benchmark.Summarize(latencies)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: recall@%d %.4f, %.1f qps, p50 %s, p99 %s\n",
				idx, k, benchmark.MeanRecall(ds.Neighbors, got, k),
				benchmark.QPS(len(ds.Test), elapsed),
				time.Duration(lat.P50*float64(time.Second)).Round(time.Microsecond),
				time.Duration(lat.P99*float64(time.Second)).Round(time.Microsecond),
			)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&snapshot, "snapshot", "s", "", "snapshot name in the store")
	f.BoolVar(&latest, "latest", false, "resolve the snapshot through the version catalog")
	f.IntVarP(&k, "k", "k", 0, "neighbors per query (default from config)")
	f.IntVar(&ef, "ef", 0, "search width (default from snapshot)")
	return cmd
}
