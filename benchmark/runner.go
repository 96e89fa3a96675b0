package benchmark

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/annbench"
	"github.com/hupe1980/annbench/model"
)

// Runner executes the parameter sweep described by a Config.
type Runner struct {
	cfg    *Config
	logger *annbench.Logger
	opts   []annbench.Option
	// OnResult, when set, is called after every measured point.
	OnResult func(Result)
}

// RunnerOption configures a Runner.
type RunnerOption func(r *Runner)

// WithRunnerLogger sets the progress logger.
func WithRunnerLogger(l *annbench.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithIndexOptions passes options to every index the runner builds.
func WithIndexOptions(opts ...annbench.Option) RunnerOption {
	return func(r *Runner) { r.opts = append(r.opts, opts...) }
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *Config, optFns ...RunnerOption) *Runner {
	r := &Runner{cfg: cfg, logger: annbench.NoopLogger()}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// Run builds one index per grid point, sweeps ef, and reports every point.
func (r *Runner) Run(ctx context.Context, ds *Dataset) (*Report, error) {
	report := NewReport(ds)
	start := time.Now()

	for _, ac := range r.cfg.Algorithms {
		for _, params := range ac.Grid() {
			opts := append([]annbench.Option{annbench.WithWorkers(r.cfg.Workers)}, r.opts...)
			algo, err := NewHNSW(r.cfg.Metric, params, opts...)
			if err != nil {
				return nil, err
			}
			results, err := r.runAlgorithm(ctx, algo, ds, ac.EF)
			if derr := algo.Done(); err == nil {
				err = derr
			}
			if err != nil {
				return nil, fmt.Errorf("%s: %w", algo, err)
			}
			report.Results = append(report.Results, results...)
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (r *Runner) runAlgorithm(ctx context.Context, algo *HNSW, ds *Dataset, efs []int) ([]Result, error) {
	r.logger.InfoContext(ctx, "building index", "algorithm", algo.String(), "count", len(ds.Train))

	memBefore, err := r.memoryUsage(algo)
	if err != nil {
		r.logger.DebugContext(ctx, "memory usage unavailable", "error", err)
	}
	buildStart := time.Now()
	if err := algo.Fit(ctx, ds.Train); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	buildTime := time.Since(buildStart)
	memAfter, err := r.memoryUsage(algo)
	if err != nil {
		r.logger.DebugContext(ctx, "memory usage unavailable", "error", err)
	}

	r.logger.InfoContext(ctx, "index built",
		"algorithm", algo.String(),
		"duration", buildTime,
		"bytes", algo.MemoryFootprint(),
	)

	results := make([]Result, 0, len(efs))
	for _, ef := range efs {
		if err := algo.SetQueryArguments(ef); err != nil {
			return nil, err
		}
		res, err := r.measure(ctx, algo, ds, ef)
		if err != nil {
			return nil, fmt.Errorf("ef=%d: %w", ef, err)
		}
		res.BuildTime = buildTime
		res.IndexSizeKiB = memAfter - memBefore
		results = append(results, res)

		r.logger.InfoContext(ctx, "measured",
			"algorithm", algo.String(),
			"ef", ef,
			"recall", res.Recall,
			"qps", res.QPS,
		)
		if r.OnResult != nil {
			r.OnResult(res)
		}
	}
	return results, nil
}

func (r *Runner) measure(ctx context.Context, algo *HNSW, ds *Dataset, ef int) (Result, error) {
	k := r.cfg.K
	got := make([][]model.Label, len(ds.Test))
	latencies := make([]time.Duration, len(ds.Test))

	total := time.Now()
	for i, q := range ds.Test {
		t := time.Now()
		labels, err := algo.Query(ctx, q, k)
		if err != nil {
			return Result{}, err
		}
		latencies[i] = time.Since(t)
		got[i] = labels
	}
	elapsed := time.Since(total)

	res := Result{
		Algorithm:  algo.String(),
		Params:     algo.params,
		EF:         ef,
		K:          k,
		IndexBytes: algo.MemoryFootprint(),
		Recall:     MeanRecall(ds.Neighbors, got, k),
		QPS:        QPS(len(ds.Test), elapsed),
		Latency:    Summarize(latencies),
		Additional: algo.Additional(),
	}

	if r.cfg.Batch {
		t := time.Now()
		if err := algo.BatchQuery(ctx, ds.Test, k); err != nil {
			return Result{}, fmt.Errorf("batch: %w", err)
		}
		res.BatchQPS = QPS(len(ds.Test), time.Since(t))
		if batchRecall := MeanRecall(ds.Neighbors, algo.BatchResults(), k); batchRecall != res.Recall {
			r.logger.WarnContext(ctx, "batch recall differs from single queries",
				"single", res.Recall, "batch", batchRecall)
		}
	}

	kib, err := r.memoryUsage(algo)
	if err != nil {
		r.logger.DebugContext(ctx, "memory usage unavailable", "error", err)
	}
	res.MemoryKiB = kib
	if res.PeakMemoryKiB, err = PeakMemoryUsageKiB(); err != nil {
		r.logger.DebugContext(ctx, "peak memory unavailable", "error", err)
	}
	return res, nil
}

// memoryUsage measures memory in KiB from the configured source.
func (r *Runner) memoryUsage(algo Algorithm) (int64, error) {
	if r.cfg.Memory.Source == MemoryProcess || r.cfg.Memory.Source == "" {
		return algo.MemoryUsage()
	}
	return r.cfg.Memory.Usage()
}
