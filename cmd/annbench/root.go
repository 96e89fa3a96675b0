package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/annbench"
	"github.com/hupe1980/annbench/benchmark"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	logLevel    string
	logJSON     bool
	memoryLimit string
	ioLimit     string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "annbench",
		Short: "Benchmark an HNSW approximate nearest-neighbor index",
		Long: `annbench builds HNSW indexes over synthetic datasets and measures recall,
queries per second, latency and memory for every configured parameter set.

Examples:
  annbench run --config bench.yaml
  annbench build --config bench.yaml --out idx/gaussian.annb
  annbench query --config bench.yaml --snapshot idx/gaussian.annb --ef 64
  annbench run --memory-limit 4GiB --metrics-addr :2112`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML benchmark config (defaults apply when empty)")
	pf.StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	pf.BoolVar(&g.logJSON, "log-json", false, "emit logs as JSON")
	pf.StringVar(&g.memoryLimit, "memory-limit", "", "cap index memory, e.g. 2GiB (unlimited when empty)")
	pf.StringVar(&g.ioLimit, "io-limit", "", "cap snapshot IO per second, e.g. 64MiB (unlimited when empty)")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :2112")

	cmd.AddCommand(
		newRunCmd(g),
		newBuildCmd(g),
		newQueryCmd(g),
	)
	return cmd
}

func (g *globalFlags) logger() (*annbench.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	if g.logJSON {
		return annbench.NewJSONLogger(level), nil
	}
	return annbench.NewTextLogger(level), nil
}

func (g *globalFlags) config() (*benchmark.Config, error) {
	if g.configPath == "" {
		return benchmark.DefaultConfig(), nil
	}
	return benchmark.LoadConfig(g.configPath)
}
