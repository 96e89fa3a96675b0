package benchmark

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/model"
	"github.com/hupe1980/annbench/testutil"
)

// Dataset is a train/test split with exact neighbors for every test vector.
type Dataset struct {
	Name   string
	Metric distance.Metric
	Train  [][]float32
	Test   [][]float32
	// Neighbors[i] holds the labels of the exact nearest train vectors of
	// Test[i], closest first.
	Neighbors [][]model.Label
}

// Dimension returns the vector dimension.
func (d *Dataset) Dimension() int {
	if len(d.Train) == 0 {
		return 0
	}
	return len(d.Train[0])
}

// Generate draws a dataset from cfg and computes ground truth to depth k.
func Generate(ctx context.Context, cfg DatasetConfig, metric string, k, workers int) (*Dataset, error) {
	m, err := distance.ParseMetric(metric)
	if err != nil {
		return nil, err
	}

	// Train and test come from one draw so clustered data shares centroids.
	total := cfg.Train + cfg.Test
	rng := testutil.NewRNG(cfg.Seed)
	var all [][]float32
	switch cfg.Distribution {
	case DistributionGaussian:
		all = rng.GaussianVectors(total, cfg.Dimension)
	case DistributionUniform:
		all = rng.UniformVectors(total, cfg.Dimension)
	case DistributionUnit:
		all = rng.UnitVectors(total, cfg.Dimension)
	case DistributionClustered:
		all = rng.ClusteredVectors(total, cfg.Dimension, cfg.Clusters, cfg.Spread)
	default:
		return nil, fmt.Errorf("%w: unknown distribution %q", ErrInvalidConfig, cfg.Distribution)
	}

	ds := &Dataset{
		Name:   cfg.Name,
		Metric: m,
		Train:  all[:cfg.Train:cfg.Train],
		Test:   all[cfg.Train:],
	}
	if err := ds.ComputeGroundTruth(ctx, k, workers); err != nil {
		return nil, err
	}
	return ds, nil
}

// ComputeGroundTruth fills Neighbors by exhaustive search.
func (d *Dataset) ComputeGroundTruth(ctx context.Context, k, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	fn := groundTruthFunc(d.Metric)

	neighbors := make([][]model.Label, len(d.Test))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range d.Test {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exact := testutil.ExactTopK(q, d.Train, k, fn)
			labels := make([]model.Label, len(exact))
			for j, r := range exact {
				labels[j] = model.Label(r.ID)
			}
			neighbors[i] = labels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	d.Neighbors = neighbors
	return nil
}

// groundTruthFunc ranks raw vectors. Cosine uses the unnormalized form since
// train vectors are not normalized here.
func groundTruthFunc(m distance.Metric) distance.Func {
	if m == distance.MetricCosine {
		return distance.Cosine
	}
	return distance.SquaredL2
}
