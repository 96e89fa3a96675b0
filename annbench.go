package annbench

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/annbench/internal/hnsw"
	"github.com/hupe1980/annbench/model"
)

// Label is the caller-supplied identifier returned by queries.
type Label = model.Label

// Result is a query hit with its distance.
type Result = model.Result

// Stats describes the structure of a fitted index.
type Stats = hnsw.Stats

// fitCheckInterval is how many inserts pass between context checks during Fit.
const fitCheckInterval = 1024

// Index is an HNSW index that is built once and then queried concurrently.
// The zero value is not usable; create one with New.
type Index struct {
	opts options

	// mu serializes Fit, Load and Close.
	mu       sync.Mutex
	engine   atomic.Pointer[hnsw.HNSW]
	closed   atomic.Bool
	reserved int64

	ef atomic.Int64

	batchMu      sync.Mutex
	batchResults [][]Label
}

// New creates an empty index. Construction parameters are validated here;
// vectors are supplied by Fit.
func New(optFns ...Option) (*Index, error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}
	idx := &Index{opts: o}
	idx.ef.Store(int64(o.ef))
	return idx, nil
}

// Fit builds the index over vectors, labelling each with its position.
func (idx *Index) Fit(ctx context.Context, vectors [][]float32) error {
	labels := make([]Label, len(vectors))
	for i := range labels {
		labels[i] = Label(i)
	}
	return idx.FitWithLabels(ctx, vectors, labels)
}

// FitWithLabels builds the index over vectors with explicit labels.
// It can succeed only once per Index. All input is validated before any
// state changes, and a failed Fit leaves the index unfitted.
func (idx *Index) FitWithLabels(ctx context.Context, vectors [][]float32, labels []Label) (err error) {
	start := time.Now()
	defer func() {
		idx.opts.metricsCollector.RecordFit(len(vectors), time.Since(start), err)
		idx.opts.logger.LogFit(ctx, len(vectors), idx.Dimension(), time.Since(start), err)
	}()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed.Load() {
		return ErrClosed
	}
	if idx.engine.Load() != nil {
		return ErrAlreadyFitted
	}
	if len(vectors) == 0 {
		return fmt.Errorf("%w: no vectors", ErrEmptyInput)
	}
	if len(labels) != len(vectors) {
		return fmt.Errorf("%w: %d labels for %d vectors", ErrInvalidArgument, len(labels), len(vectors))
	}

	dim := idx.opts.dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return fmt.Errorf("%w: zero-length vector", ErrEmptyInput)
	}

	logger := idx.opts.logger.WithCount(len(vectors)).WithDimension(dim)

	h, err := hnsw.New(idx.opts.hnswOptions(dim, len(vectors)))
	if err != nil {
		return translateError(err)
	}
	for i, v := range vectors {
		if err := h.CheckVector(v); err != nil {
			return fmt.Errorf("vector %d: %w", i, translateError(err))
		}
	}

	estimate := estimateBytes(len(vectors), dim, idx.opts.m)
	if err := idx.opts.resource.ReserveMemory(estimate); err != nil {
		return translateError(err)
	}
	reserved := estimate
	defer func() {
		if err != nil {
			idx.opts.resource.ReleaseMemory(reserved)
		}
	}()

	for i, v := range vectors {
		if i%fitCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if i > 0 {
				logger.DebugContext(ctx, "fit progress", "inserted", i)
			}
		}
		if _, err := h.Insert(v, labels[i]); err != nil {
			return fmt.Errorf("vector %d: %w", i, translateError(err))
		}
	}

	if fixed := h.Symmetrize(); fixed > 0 {
		logger.DebugContext(ctx, "symmetrized neighbor lists", "edges", fixed)
	}
	if added := h.Reconnect(); added > 0 {
		logger.DebugContext(ctx, "reconnected detached nodes", "edges", added)
	}
	if err := h.Validate(); err != nil {
		return translateError(err)
	}

	actual := h.Size()
	switch {
	case actual > reserved:
		if err := idx.opts.resource.ReserveMemory(actual - reserved); err != nil {
			return translateError(err)
		}
	case actual < reserved:
		idx.opts.resource.ReleaseMemory(reserved - actual)
	}
	reserved = actual

	idx.reserved = reserved
	idx.engine.Store(h)
	return nil
}

// estimateBytes approximates the footprint of a build before it starts.
func estimateBytes(n, dim, m int) int64 {
	perNode := dim*4 + 8 + (2*m+m/2)*4 + 48
	return int64(n) * int64(perNode)
}

func (idx *Index) load() (*hnsw.HNSW, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}
	h := idx.engine.Load()
	if h == nil {
		return nil, ErrNotFitted
	}
	return h, nil
}

// SetSearchWidth sets ef for subsequent queries. In-flight queries keep the
// value they started with.
func (idx *Index) SetSearchWidth(ef int) error {
	if ef < 1 {
		return fmt.Errorf("%w: ef must be >= 1, got %d", ErrInvalidArgument, ef)
	}
	idx.ef.Store(int64(ef))
	return nil
}

// SearchWidth returns the current ef.
func (idx *Index) SearchWidth() int {
	return int(idx.ef.Load())
}

// Query returns the labels of the k nearest neighbors of v, closest first.
// k must not exceed the search width; if k exceeds the index size all items
// are returned.
func (idx *Index) Query(ctx context.Context, v []float32, k int) ([]Label, error) {
	res, err := idx.Search(ctx, v, k)
	if err != nil {
		return nil, err
	}
	return model.Labels(res), nil
}

// Search is Query with distances.
func (idx *Index) Search(ctx context.Context, v []float32, k int) (res []Result, err error) {
	ef := int(idx.ef.Load())
	start := time.Now()
	defer func() {
		idx.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
		idx.opts.logger.LogSearch(ctx, k, ef, len(res), err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := idx.load()
	if err != nil {
		return nil, err
	}
	return search(h, v, k, ef)
}

func search(h *hnsw.HNSW, v []float32, k, ef int) ([]Result, error) {
	hits, err := h.KNNSearch(v, k, ef)
	if err != nil {
		return nil, translateError(err)
	}
	res := make([]Result, len(hits))
	for i, hit := range hits {
		res[i] = Result{Label: hit.Label, Distance: hit.Distance}
	}
	return res, nil
}

// BatchQuery runs one search per vector on a bounded worker pool. The results,
// aligned with vectors, are available from BatchResults once it returns nil.
// Every query in the batch uses the search width current at the call.
func (idx *Index) BatchQuery(ctx context.Context, vectors [][]float32, k int) (err error) {
	ef := int(idx.ef.Load())
	workers := idx.workers()
	start := time.Now()
	defer func() {
		idx.opts.metricsCollector.RecordBatch(len(vectors), time.Since(start), err)
		idx.opts.logger.LogBatch(ctx, len(vectors), k, workers, time.Since(start), err)
	}()

	h, err := idx.load()
	if err != nil {
		return err
	}
	if k <= 0 || k > ef {
		return fmt.Errorf("%w: k=%d with ef=%d", ErrInvalidArgument, k, ef)
	}

	results := make([][]Label, len(vectors))
	rc := idx.opts.resource
	logger := idx.opts.logger.WithK(k)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, v := range vectors {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer rc.ReleaseWorker()

			res, err := search(h, v, k, ef)
			if err != nil {
				logger.DebugContext(gctx, "batch query failed", "query", i, "error", err)
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = model.Labels(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.batchMu.Lock()
	idx.batchResults = results
	idx.batchMu.Unlock()
	return nil
}

// BatchResults returns the results of the last successful BatchQuery.
func (idx *Index) BatchResults() [][]Label {
	idx.batchMu.Lock()
	defer idx.batchMu.Unlock()
	return idx.batchResults
}

func (idx *Index) workers() int {
	if idx.opts.workers > 0 {
		return idx.opts.workers
	}
	if idx.opts.resource != nil {
		return idx.opts.resource.Workers()
	}
	return runtime.GOMAXPROCS(0)
}

// MemoryFootprint returns the bytes held by the vector store and the graph.
// It is 0 before Fit.
func (idx *Index) MemoryFootprint() int64 {
	h := idx.engine.Load()
	if h == nil {
		return 0
	}
	return h.Size()
}

// Stats returns per-layer node and edge counts of the fitted index.
func (idx *Index) Stats() (Stats, error) {
	h, err := idx.load()
	if err != nil {
		return Stats{}, err
	}
	return h.Stats(), nil
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	h := idx.engine.Load()
	if h == nil {
		return 0
	}
	return h.Len()
}

// Dimension returns the vector dimension, or the configured one before Fit.
func (idx *Index) Dimension() int {
	if h := idx.engine.Load(); h != nil {
		return h.Dimension()
	}
	return idx.opts.dimension
}

// Metric returns the distance metric.
func (idx *Index) Metric() Metric {
	return idx.opts.metric
}

// String describes the index the way benchmark reports name algorithms.
func (idx *Index) String() string {
	return fmt.Sprintf("hnsw(metric=%s, M=%d, efConstruction=%d, ef=%d)",
		idx.opts.metric, idx.opts.m, idx.opts.efConstruction, idx.SearchWidth())
}
