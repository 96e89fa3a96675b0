package annbench

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/internal/hnsw"
	"github.com/hupe1980/annbench/resource"
)

// Metric is the distance function of an index.
type Metric = distance.Metric

const (
	// MetricL2 ranks by squared Euclidean distance.
	MetricL2 = distance.MetricL2
	// MetricCosine ranks by cosine distance (1 - cosine similarity).
	MetricCosine = distance.MetricCosine
)

const (
	// DefaultM is the default maximum degree on upper layers.
	DefaultM = hnsw.DefaultM
	// MaxM is the largest accepted M; snapshots store degrees as uint16.
	MaxM = hnsw.MaxM
	// DefaultEFConstruction is the default build-time candidate list width.
	DefaultEFConstruction = hnsw.DefaultEFConstruction
	// DefaultEF is the default query-time candidate list width.
	DefaultEF = 10
	// DefaultSeed makes builds reproducible.
	DefaultSeed = hnsw.DefaultRandomSeed
)

type options struct {
	dimension        int
	metric           Metric
	m                int
	efConstruction   int
	ef               int
	seed             int64
	heuristic        bool
	workers          int
	metricsCollector MetricsCollector
	logger           *Logger
	resource         *resource.Controller
}

// Option configures an Index.
type Option func(*options)

// WithDimension fixes the vector dimension. When unset, Fit infers it from the
// first vector.
func WithDimension(dim int) Option {
	return func(o *options) {
		o.dimension = dim
	}
}

// WithMetric selects the distance metric. Default: MetricL2.
func WithMetric(m Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithM sets the maximum number of neighbors per node on layers >= 1.
// Layer 0 allows 2*M.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithEFConstruction sets the candidate list width used while building.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithEF sets the initial query-time candidate list width.
// SetSearchWidth changes it later.
func WithEF(ef int) Option {
	return func(o *options) {
		o.ef = ef
	}
}

// WithSeed seeds the layer assignment. Equal seeds and inputs give equal graphs.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithHeuristic toggles diversity-based neighbor selection. Default: enabled.
func WithHeuristic(enabled bool) Option {
	return func(o *options) {
		o.heuristic = enabled
	}
}

// WithWorkers bounds the goroutines BatchQuery uses.
// Zero means runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &annbench.BasicMetricsCollector{}
//	idx, _ := annbench.New(annbench.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := annbench.NewJSONLogger(slog.LevelInfo)
//	idx, _ := annbench.New(annbench.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController charges the index's memory to rc and takes batch
// worker slots and snapshot IO budget from it.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resource = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metric:           MetricL2,
		m:                DefaultM,
		efConstruction:   DefaultEFConstruction,
		ef:               DefaultEF,
		seed:             DefaultSeed,
		heuristic:        true,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o options) validate() error {
	switch {
	case o.dimension < 0:
		return fmt.Errorf("%w: dimension must not be negative, got %d", ErrInvalidArgument, o.dimension)
	case !o.metric.Valid():
		return fmt.Errorf("%w: %w: %v", ErrInvalidArgument, distance.ErrUnknownMetric, o.metric)
	case o.m <= 0 || o.m > MaxM:
		return fmt.Errorf("%w: M must be in [1, %d], got %d", ErrInvalidArgument, MaxM, o.m)
	case o.efConstruction < 1:
		return fmt.Errorf("%w: efConstruction must be >= 1, got %d", ErrInvalidArgument, o.efConstruction)
	case o.ef < 1:
		return fmt.Errorf("%w: ef must be >= 1, got %d", ErrInvalidArgument, o.ef)
	case o.workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidArgument, o.workers)
	}
	return nil
}

func (o options) hnswOptions(dim, capacity int) func(*hnsw.Options) {
	return func(h *hnsw.Options) {
		h.Dimension = dim
		h.M = o.m
		h.EFConstruction = o.efConstruction
		h.Heuristic = o.heuristic
		h.DistanceType = o.metric
		h.RandomSeed = o.seed
		h.Capacity = capacity
	}
}
