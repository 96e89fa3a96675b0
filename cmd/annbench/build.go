package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hupe1980/annbench"
	"github.com/hupe1980/annbench/benchmark"
	"github.com/hupe1980/annbench/persistence"
)

func newBuildCmd(g *globalFlags) *cobra.Command {
	var (
		out         string
		compression string
		storeKind   string
		m           int
		efc         int
		ef          int
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an index over the configured dataset and save a snapshot",
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
			if storeKind != "" {
				cfg.Store.Kind = storeKind
			}
			if compression != "" {
				cfg.Store.Compression = compression
			}
			codec, err := persistence.ParseCompression(cfg.Store.Compression)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.Dataset.Name + ".annb"
			}

			ac := cfg.Algorithms[0]
			params := benchmark.MethodParams{M: ac.M[0], EFConstruction: ac.EFConstruction[0]}
			if m > 0 {
				params.M = m
			}
			if efc > 0 {
				params.EFConstruction = efc
			}
			if ef <= 0 {
				ef = ac.EF[0]
			}

			store, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			if be, ok := store.(bucketEnsurer); ok {
				if err := be.EnsureBucket(ctx); err != nil {
					return err
				}
			}
			catalog, err := openCatalog(ctx, cfg.Store)
			if err != nil {
				return err
			}

			ds, err := benchmark.Generate(ctx, cfg.Dataset, cfg.Metric, cfg.K, cfg.Workers)
			if err != nil {
				return err
			}

			opts, stop, err := g.indexOptions(ctx, logger)
			defer stop()
			if err != nil {
				return err
			}
			algo, err := benchmark.NewHNSW(cfg.Metric, params,
				append(opts, annbench.WithWorkers(cfg.Workers), annbench.WithEF(ef))...)
			if err != nil {
				return err
			}
			defer algo.Done()

			start := time.Now()
			if err := algo.Fit(ctx, ds.Train); err != nil {
				return err
			}
			buildTime := time.Since(start)

			idx := algo.Index()
			if err := idx.SaveTo(ctx, store, out, persistence.WithCompression(codec)); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "built %s over %s vectors in %s (%s in memory)\n",
				algo, humanize.Comma(int64(idx.Len())), buildTime.Round(time.Millisecond),
				humanize.IBytes(uint64(idx.MemoryFootprint())))
			fmt.Fprintf(w, "saved %s (%s, %s store)\n", out, codec, cfg.Store.Kind)

			if catalog != nil {
				v, err := catalog.Commit(ctx, cfg.Dataset.Name, out, uuid.NewString())
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "committed %s version %d\n", v.Index, v.Number)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "snapshot name in the store (default <dataset>.annb)")
	f.StringVar(&compression, "compression", "", "snapshot compression: none, zstd or lz4")
	f.StringVar(&storeKind, "store", "", "snapshot store: file, s3 or minio")
	f.IntVar(&m, "m", 0, "override M")
	f.IntVar(&efc, "ef-construction", 0, "override efConstruction")
	f.IntVar(&ef, "ef", 0, "search width stored with the snapshot")
	return cmd
}
