package benchmark

import (
	"context"
	"fmt"

	"github.com/hupe1980/annbench"
	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/model"
)

// MethodParams are the build parameters of one HNSW configuration.
type MethodParams struct {
	M              int `json:"M" yaml:"M"`
	EFConstruction int `json:"efConstruction" yaml:"efConstruction"`
}

func (p MethodParams) String() string {
	return fmt.Sprintf("{'M': %d, 'efConstruction': %d}", p.M, p.EFConstruction)
}

// HNSW adapts annbench.Index to Algorithm.
type HNSW struct {
	metric distance.Metric
	params MethodParams
	opts   []annbench.Option
	idx    *annbench.Index
	name   string
}

var _ Algorithm = (*HNSW)(nil)

// NewHNSW creates the adapter. metric accepts the benchmark names
// ("euclidean", "angular") as well as "l2" and "cosine". opts are passed to
// the index on Fit, after the method parameters.
func NewHNSW(metric string, params MethodParams, opts ...annbench.Option) (*HNSW, error) {
	m, err := distance.ParseMetric(metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", annbench.ErrInvalidArgument, err)
	}
	return &HNSW{
		metric: m,
		params: params,
		opts:   opts,
		name:   fmt.Sprintf("hnsw (%s)", params),
	}, nil
}

// Fit builds the index.
func (a *HNSW) Fit(ctx context.Context, X [][]float32) error {
	if a.idx != nil {
		return annbench.ErrAlreadyFitted
	}
	if len(X) == 0 {
		return annbench.ErrEmptyInput
	}

	opts := append([]annbench.Option{
		annbench.WithDimension(len(X[0])),
		annbench.WithMetric(a.metric),
		annbench.WithM(a.params.M),
		annbench.WithEFConstruction(a.params.EFConstruction),
	}, a.opts...)

	idx, err := annbench.New(opts...)
	if err != nil {
		return err
	}
	if err := idx.Fit(ctx, X); err != nil {
		_ = idx.Close()
		return err
	}
	a.idx = idx
	return nil
}

func (a *HNSW) index() (*annbench.Index, error) {
	if a.idx == nil {
		return nil, annbench.ErrNotFitted
	}
	return a.idx, nil
}

// SetQueryArguments sets ef.
func (a *HNSW) SetQueryArguments(ef int) error {
	idx, err := a.index()
	if err != nil {
		return err
	}
	return idx.SetSearchWidth(ef)
}

// Query implements Algorithm.
func (a *HNSW) Query(ctx context.Context, q []float32, n int) ([]model.Label, error) {
	idx, err := a.index()
	if err != nil {
		return nil, err
	}
	return idx.Query(ctx, q, n)
}

// BatchQuery implements Algorithm.
func (a *HNSW) BatchQuery(ctx context.Context, X [][]float32, n int) error {
	idx, err := a.index()
	if err != nil {
		return err
	}
	return idx.BatchQuery(ctx, X, n)
}

// BatchResults implements Algorithm.
func (a *HNSW) BatchResults() [][]model.Label {
	if a.idx == nil {
		return nil
	}
	return a.idx.BatchResults()
}

// MemoryUsage implements Algorithm.
func (a *HNSW) MemoryUsage() (int64, error) {
	return MemoryUsageKiB()
}

// MemoryFootprint returns the bytes held by the index itself.
func (a *HNSW) MemoryFootprint() int64 {
	if a.idx == nil {
		return 0
	}
	return a.idx.MemoryFootprint()
}

// Index exposes the fitted index, or nil before Fit.
func (a *HNSW) Index() *annbench.Index { return a.idx }

// Additional implements Algorithm.
func (a *HNSW) Additional() map[string]any {
	if a.idx == nil {
		return nil
	}
	st, err := a.idx.Stats()
	if err != nil {
		return nil
	}
	return map[string]any{
		"index_bytes": a.idx.MemoryFootprint(),
		"max_layer":   st.MaxLayer,
		"reachable":   st.Reachable,
	}
}

// Done implements Algorithm.
func (a *HNSW) Done() error {
	if a.idx == nil {
		return nil
	}
	err := a.idx.Close()
	a.idx = nil
	return err
}

func (a *HNSW) String() string { return a.name }
