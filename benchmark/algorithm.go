package benchmark

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/annbench/model"
	"github.com/hupe1980/annbench/resource"
)

// Algorithm is an approximate nearest-neighbor implementation under benchmark.
type Algorithm interface {
	// Fit builds the index. Row i of X is reported as label i by queries.
	Fit(ctx context.Context, X [][]float32) error
	// SetQueryArguments sets the query-time search width.
	SetQueryArguments(ef int) error
	// Query returns the labels of the n nearest neighbors of q, closest first.
	Query(ctx context.Context, q []float32, n int) ([]model.Label, error)
	// BatchQuery runs all queries; BatchResults returns them in input order.
	BatchQuery(ctx context.Context, X [][]float32, n int) error
	BatchResults() [][]model.Label
	// MemoryUsage returns the memory in use by the process in KiB.
	MemoryUsage() (int64, error)
	// Additional returns extra attributes stored with each result.
	Additional() map[string]any
	// Done releases the index.
	Done() error
	fmt.Stringer
}

// MemoryUsageKiB reports the current resident set size of the process in KiB.
// It is the default MemoryUsage of an Algorithm.
func MemoryUsageKiB() (int64, error) {
	return kib(resource.CurrentRSS())
}

// PeakMemoryUsageKiB reports the peak resident set size of the process in KiB.
func PeakMemoryUsageKiB() (int64, error) {
	return kib(resource.PeakRSS())
}

// MemoryUsageByProgram sums the resident set size, in KiB, of every process
// whose command line contains name. It measures algorithms that run as
// separate programs.
func MemoryUsageByProgram(name string) (int64, error) {
	return kib(resource.ProgramRSS(name))
}

// ContainerMemoryUsage reports the memory, in KiB, charged to the cgroup in
// dir. An empty dir measures the cgroup of this process, i.e. its container.
func ContainerMemoryUsage(dir string) (int64, error) {
	return kib(resource.CgroupMemory(dir))
}

func kib(bytes int64, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return bytes / 1024, nil
}

// QueryFunc runs a single query.
type QueryFunc func(ctx context.Context, q []float32, n int) ([]model.Label, error)

// ParallelBatch runs query once per row of X on up to workers goroutines and
// returns the results in input order. It is the default batch strategy for
// algorithms without a native one. workers <= 0 means runtime.GOMAXPROCS(0).
func ParallelBatch(ctx context.Context, query QueryFunc, X [][]float32, n, workers int) ([][]model.Label, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([][]model.Label, len(X))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range X {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := query(gctx, q, n)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
