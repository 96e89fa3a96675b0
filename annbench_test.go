package annbench

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annbench/blobstore"
	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/persistence"
	"github.com/hupe1980/annbench/resource"
	"github.com/hupe1980/annbench/testutil"
)

func fitted(t *testing.T, data [][]float32, optFns ...Option) *Index {
	t.Helper()
	idx, err := New(optFns...)
	require.NoError(t, err)
	require.NoError(t, idx.Fit(context.Background(), data))
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func fourPoints() ([][]float32, []Label) {
	const (
		A Label = 10
		B Label = 11
		C Label = 12
		D Label = 13
	)
	return [][]float32{{0, 0}, {1, 0}, {0, 1}, {5, 5}}, []Label{A, B, C, D}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"M zero", WithM(0)},
		{"M negative", WithM(-3)},
		{"M above degree limit", WithM(MaxM + 1)},
		{"efConstruction zero", WithEFConstruction(0)},
		{"ef zero", WithEF(0)},
		{"unknown metric", WithMetric(Metric(42))},
		{"negative dimension", WithDimension(-1)},
		{"negative workers", WithWorkers(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	idx, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultEF, idx.SearchWidth())
	assert.Equal(t, MetricL2, idx.Metric())
}

func TestFourPointScenario(t *testing.T) {
	ctx := context.Background()
	data, labels := fourPoints()

	idx, err := New(WithMetric(MetricL2), WithM(4), WithEFConstruction(10))
	require.NoError(t, err)
	require.NoError(t, idx.FitWithLabels(ctx, data, labels))

	got, err := idx.Query(ctx, []float32{0, 0.1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []Label{labels[0], labels[2]}, got)
}

func TestQuery_KExceedsSize(t *testing.T) {
	ctx := context.Background()
	data, labels := fourPoints()

	idx, err := New(WithM(4), WithEFConstruction(10), WithEF(10))
	require.NoError(t, err)
	require.NoError(t, idx.FitWithLabels(ctx, data, labels))

	res, err := idx.Search(ctx, []float32{0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.ElementsMatch(t, labels, []Label{res[0].Label, res[1].Label, res[2].Label, res[3].Label})
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
	}
	assert.Equal(t, labels[0], res[0].Label)
	assert.Equal(t, labels[3], res[3].Label)
}

func TestFit_AlreadyFitted(t *testing.T) {
	ctx := context.Background()
	data, labels := fourPoints()

	idx, err := New(WithM(4), WithEFConstruction(10))
	require.NoError(t, err)
	require.NoError(t, idx.FitWithLabels(ctx, data, labels))

	before, err := idx.Query(ctx, []float32{0, 0.1}, 2)
	require.NoError(t, err)
	footprint := idx.MemoryFootprint()

	err = idx.Fit(ctx, [][]float32{{9, 9}, {8, 8}})
	assert.ErrorIs(t, err, ErrAlreadyFitted)

	after, err := idx.Query(ctx, []float32{0, 0.1}, 2)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, footprint, idx.MemoryFootprint())
}

func TestFit_ValidationPrecedesMutation(t *testing.T) {
	ctx := context.Background()

	idx, err := New()
	require.NoError(t, err)

	assert.ErrorIs(t, idx.Fit(ctx, nil), ErrEmptyInput)
	assert.ErrorIs(t, idx.Fit(ctx, [][]float32{{}}), ErrEmptyInput)

	err = idx.Fit(ctx, [][]float32{{1, 2}, {1, 2, 3}})
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)

	assert.ErrorIs(t, idx.FitWithLabels(ctx, [][]float32{{1, 2}}, []Label{1, 2}), ErrInvalidArgument)

	// Nothing above built anything, so a valid Fit still succeeds.
	require.NoError(t, idx.Fit(ctx, [][]float32{{1, 2}, {3, 4}}))
	assert.Equal(t, 2, idx.Len())
}

func TestFit_FixedDimension(t *testing.T) {
	idx, err := New(WithDimension(3))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Dimension())

	err = idx.Fit(context.Background(), [][]float32{{1, 2}})
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
}

func TestFit_CosineZeroVector(t *testing.T) {
	ctx := context.Background()
	idx, err := New(WithMetric(MetricCosine))
	require.NoError(t, err)
	require.NoError(t, idx.Fit(ctx, [][]float32{{1, 0}, {0, 0}, {0, 1}}))
	assert.Equal(t, 3, idx.Len())

	labels, err := idx.Query(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []Label{1}, labels)

	hits, err := idx.Search(ctx, []float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, float32(0), hits[0].Distance)
	assert.Equal(t, float32(1), hits[1].Distance)
	assert.Equal(t, float32(1), hits[2].Distance)
}

func TestFit_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx, err := New()
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Fit(ctx, [][]float32{{1, 2}}), context.Canceled)
	assert.Equal(t, 0, idx.Len())
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithEF(5))
	require.NoError(t, err)

	_, err = idx.Query(ctx, []float32{0, 0}, 1)
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.ErrorIs(t, idx.BatchQuery(ctx, [][]float32{{0, 0}}, 1), ErrNotFitted)
	_, err = idx.Stats()
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.Zero(t, idx.MemoryFootprint())

	data, _ := fourPoints()
	require.NoError(t, idx.Fit(ctx, data))

	_, err = idx.Query(ctx, []float32{0, 0}, 6)
	assert.ErrorIs(t, err, ErrInvalidArgument, "k > ef")
	_, err = idx.Query(ctx, []float32{0, 0}, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, idx.BatchQuery(ctx, [][]float32{{0, 0}}, 6), ErrInvalidArgument)

	_, err = idx.Query(ctx, []float32{0, 0, 0}, 1)
	var dm *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)

	_, err = idx.Query(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrEmptyInput)

	assert.ErrorIs(t, idx.SetSearchWidth(0), ErrInvalidArgument)
	assert.Equal(t, 5, idx.SearchWidth())
}

func TestSelfMatch(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(3)

	for _, metric := range []Metric{MetricL2, MetricCosine} {
		for _, m := range []int{2, 8} {
			data := rng.GaussianVectors(150, 8)
			idx := fitted(t, data, WithMetric(metric), WithM(m), WithEFConstruction(64), WithEF(64))

			for i, v := range data {
				res, err := idx.Search(ctx, v, 1)
				require.NoError(t, err)
				require.Len(t, res, 1)
				assert.Equal(t, Label(i), res[0].Label, "metric=%v M=%d", metric, m)
				assert.Equal(t, float32(0), res[0].Distance)
			}
		}
	}
}

func TestPrefixConsistency(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(5)
	idx := fitted(t, rng.GaussianVectors(400, 10), WithEF(30))

	for _, q := range rng.GaussianVectors(25, 10) {
		top20, err := idx.Query(ctx, q, 20)
		require.NoError(t, err)
		for _, k := range []int{1, 5, 10} {
			topK, err := idx.Query(ctx, q, k)
			require.NoError(t, err)
			assert.Equal(t, top20[:k], topK)
		}
	}
}

func TestRecallGrowsWithEF(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(9)
	dim, k := 16, 10
	data := rng.GaussianVectors(1500, dim)
	queries := rng.GaussianVectors(80, dim)

	idx := fitted(t, data, WithM(8), WithEFConstruction(80))

	truth := make([][]testutil.SearchResult, len(queries))
	for i, q := range queries {
		truth[i] = testutil.ExactTopK(q, data, k, distance.SquaredL2)
	}

	recallAt := func(ef int) float64 {
		require.NoError(t, idx.SetSearchWidth(ef))
		require.NoError(t, idx.BatchQuery(ctx, queries, k))
		approx := make([][]testutil.SearchResult, len(queries))
		for i, labels := range idx.BatchResults() {
			for _, l := range labels {
				approx[i] = append(approx[i], testutil.SearchResult{ID: uint64(l)})
			}
		}
		return testutil.MeanRecall(truth, approx)
	}

	r10, r40, r160 := recallAt(10), recallAt(40), recallAt(160)
	assert.GreaterOrEqual(t, r40, r10-0.005)
	assert.GreaterOrEqual(t, r160, r40-0.005)
	assert.Greater(t, r160, 0.95)
}

func TestBatchQuery_MatchesIndividualQueries(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(21)
	idx := fitted(t, rng.UniformVectors(500, 6), WithEF(20), WithWorkers(4))
	queries := rng.UniformVectors(64, 6)

	assert.Nil(t, idx.BatchResults())
	require.NoError(t, idx.BatchQuery(ctx, queries, 7))

	results := idx.BatchResults()
	require.Len(t, results, len(queries))
	for i, q := range queries {
		want, err := idx.Query(ctx, q, 7)
		require.NoError(t, err)
		assert.Equal(t, want, results[i], "query %d", i)
	}

	require.NoError(t, idx.BatchQuery(ctx, nil, 7))
	assert.Empty(t, idx.BatchResults())
}

func TestBatchQuery_ErrorKeepsPreviousResults(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(4)
	idx := fitted(t, rng.UniformVectors(50, 3))

	require.NoError(t, idx.BatchQuery(ctx, rng.UniformVectors(3, 3), 2))
	prev := idx.BatchResults()

	err := idx.BatchQuery(ctx, [][]float32{{1, 2, 3}, {1, 2}}, 2)
	var dm *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
	assert.Equal(t, prev, idx.BatchResults())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, idx.BatchQuery(canceled, rng.UniformVectors(3, 3), 2), context.Canceled)
}

func TestLabelsNotIDs(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(8)
	data := rng.UniformVectors(100, 4)
	labels := make([]Label, len(data))
	for i := range labels {
		labels[i] = Label(1_000_000 + 7*i)
	}

	idx, err := New(WithEF(20))
	require.NoError(t, err)
	require.NoError(t, idx.FitWithLabels(ctx, data, labels))

	for i, v := range data[:20] {
		got, err := idx.Query(ctx, v, 5)
		require.NoError(t, err)
		assert.Equal(t, labels[i], got[0])
		for _, l := range got {
			assert.Contains(t, labels, l)
		}
	}
}

func TestConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(12)
	idx := fitted(t, rng.UniformVectors(300, 8), WithEF(16))
	queries := rng.UniformVectors(40, 8)

	want := make([][]Label, len(queries))
	for i, q := range queries {
		var err error
		want[i], err = idx.Query(ctx, q, 5)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, q := range queries {
				got, err := idx.Query(ctx, q, 5)
				if err != nil {
					errs <- err
					return
				}
				if !assert.Equal(t, want[i], got) {
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestMemoryFootprintAndStats(t *testing.T) {
	rng := testutil.NewRNG(2)
	idx := fitted(t, rng.UniformVectors(200, 16), WithM(8))

	// At least the raw vectors and labels.
	assert.GreaterOrEqual(t, idx.MemoryFootprint(), int64(200*16*4+200*8))

	st, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 200, st.Nodes)
	assert.Equal(t, 200, st.Reachable)
	require.NotEmpty(t, st.Levels)
	assert.Equal(t, 200, st.Levels[0].Nodes)
	assert.LessOrEqual(t, st.Levels[0].AvgConnections, float64(16))
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{})
	data, _ := fourPoints()

	idx, err := New(WithResourceController(rc))
	require.NoError(t, err)
	require.NoError(t, idx.Fit(ctx, data))
	assert.Equal(t, idx.MemoryFootprint(), rc.MemoryUsage())

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
	assert.Zero(t, rc.MemoryUsage())

	_, err = idx.Query(ctx, []float32{0, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, idx.Fit(ctx, data), ErrClosed)
	assert.Zero(t, idx.MemoryFootprint())
}

func TestFit_MemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1024})
	idx, err := New(WithResourceController(rc))
	require.NoError(t, err)

	err = idx.Fit(context.Background(), testutil.NewRNG(1).UniformVectors(100, 32))
	assert.ErrorIs(t, err, ErrMemoryLimit)
	assert.Zero(t, rc.MemoryUsage())
	assert.Equal(t, 0, idx.Len())
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(17)
	data := rng.UniformVectors(300, 8)
	queries := rng.UniformVectors(20, 8)

	idx := fitted(t, data, WithMetric(MetricCosine), WithM(6), WithEF(24))

	for _, c := range []persistence.Compression{persistence.CompressionNone, persistence.CompressionZSTD, persistence.CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, idx.Save(ctx, &buf, persistence.WithCompression(c)))

			loaded, err := Load(ctx, &buf)
			require.NoError(t, err)
			defer loaded.Close()

			assert.Equal(t, idx.Len(), loaded.Len())
			assert.Equal(t, 24, loaded.SearchWidth())
			assert.Equal(t, MetricCosine, loaded.Metric())
			assert.Positive(t, loaded.MemoryFootprint())

			for _, q := range queries {
				want, err := idx.Search(ctx, q, 10)
				require.NoError(t, err)
				got, err := loaded.Search(ctx, q, 10)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}

			assert.ErrorIs(t, loaded.Fit(ctx, data), ErrAlreadyFitted)
		})
	}
}

func TestSaveLoad_BlobStore(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewLocalStore(t.TempDir())
	data, labels := fourPoints()

	idx, err := New(WithM(4), WithEFConstruction(10))
	require.NoError(t, err)
	assert.ErrorIs(t, idx.SaveTo(ctx, store, "four.annb"), ErrNotFitted)
	require.NoError(t, idx.FitWithLabels(ctx, data, labels))
	require.NoError(t, idx.SaveTo(ctx, store, "four.annb", persistence.WithCompression(persistence.CompressionLZ4)))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"four.annb"}, names)

	loaded, err := LoadFrom(ctx, store, "four.annb")
	require.NoError(t, err)
	got, err := loaded.Query(ctx, []float32{0, 0.1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []Label{labels[0], labels[2]}, got)

	var logs bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&logs, nil))
	_, err = LoadFrom(ctx, store, "missing.annb", WithLogger(logger))
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.Contains(t, logs.String(), "snapshot load failed")
	assert.Contains(t, logs.String(), "name=missing.annb")
}

func TestLoad_MemoryLimit(t *testing.T) {
	ctx := context.Background()
	idx := fitted(t, testutil.NewRNG(3).GaussianVectors(200, 8))
	var buf bytes.Buffer
	require.NoError(t, idx.Save(ctx, &buf))

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 512})
	_, err := Load(ctx, &buf, WithResourceController(rc))
	assert.ErrorIs(t, err, ErrMemoryLimit)
	assert.Zero(t, rc.MemoryUsage())
}

func TestLoad_Corrupt(t *testing.T) {
	ctx := context.Background()
	_, err := Load(ctx, bytes.NewReader(bytes.Repeat([]byte("x"), 128)))
	assert.ErrorIs(t, err, persistence.ErrBadMagic)
}

func TestBasicMetricsCollector(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	data, _ := fourPoints()

	idx, err := New(WithMetricsCollector(metrics), WithM(4))
	require.NoError(t, err)
	require.NoError(t, idx.Fit(ctx, data))
	assert.ErrorIs(t, idx.Fit(ctx, data), ErrAlreadyFitted)

	_, err = idx.Query(ctx, []float32{0, 0}, 2)
	require.NoError(t, err)
	_, err = idx.Query(ctx, []float32{0, 0}, 50)
	require.Error(t, err)
	require.NoError(t, idx.BatchQuery(ctx, data, 1))

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.FitCount)
	assert.Equal(t, int64(1), stats.FitErrors)
	assert.Equal(t, int64(4), stats.FitVectors)
	assert.Equal(t, int64(2), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
	assert.Equal(t, int64(1), stats.BatchCount)
	assert.Equal(t, int64(4), stats.BatchQueries)
}

func TestPrometheusMetricsCollector(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	pm, err := NewPrometheusMetricsCollector(reg, "test")
	require.NoError(t, err)

	data, _ := fourPoints()
	idx, err := New(WithMetricsCollector(pm), WithM(4))
	require.NoError(t, err)
	require.NoError(t, idx.Fit(ctx, data))
	for range 3 {
		_, err := idx.Query(ctx, []float32{1, 1}, 1)
		require.NoError(t, err)
	}
	_, err = idx.Query(ctx, []float32{1}, 1)
	require.Error(t, err)

	assert.Equal(t, float64(4), promtestutil.ToFloat64(pm.operations.WithLabelValues("search")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(pm.errors.WithLabelValues("search")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(pm.operations.WithLabelValues("fit")))
	assert.Equal(t, float64(4), promtestutil.ToFloat64(pm.vectors))

	_, err = NewPrometheusMetricsCollector(reg, "test")
	var already prometheus.AlreadyRegisteredError
	assert.True(t, errors.As(err, &already))
}
