package hnsw

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/model"
)

var (
	ErrEmptyInput         = errors.New("empty input")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvariantViolation = errors.New("graph invariant violated")
)

type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Options represents the options for configuring HNSW.
type Options struct {
	Dimension      int
	M              int
	EFConstruction int
	Heuristic      bool
	DistanceType   distance.Metric
	RandomSeed     int64
	// Capacity is a hint for the number of vectors that will be inserted.
	Capacity int
}

const (
	// DefaultM is the default number of bidirectional links.
	DefaultM = 16

	// DefaultEFConstruction is the default size of the dynamic candidate list during construction.
	DefaultEFConstruction = 200

	// DefaultRandomSeed makes builds reproducible unless a seed is given.
	DefaultRandomSeed = 100

	// MaxM keeps the layer-0 degree cap of 2*M within a uint16.
	MaxM = math.MaxUint16 / 2
)

// DefaultOptions contains the default options for HNSW.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	Heuristic:      true,
	DistanceType:   distance.MetricL2,
	RandomSeed:     DefaultRandomSeed,
}

// Validate checks the options without side effects.
func (o Options) Validate() error {
	if o.Dimension <= 0 {
		return &ErrInvalidDimension{Dimension: o.Dimension}
	}
	if o.M <= 0 || o.M > MaxM {
		return fmt.Errorf("%w: M must be in [1, %d], got %d", ErrInvalidArgument, MaxM, o.M)
	}
	if o.EFConstruction < 1 {
		return fmt.Errorf("%w: efConstruction must be >= 1, got %d", ErrInvalidArgument, o.EFConstruction)
	}
	if !o.DistanceType.Valid() {
		return fmt.Errorf("%w: %w: %v", ErrInvalidArgument, distance.ErrUnknownMetric, o.DistanceType)
	}
	return nil
}

// SearchResult is a single hit of a k-NN search.
type SearchResult struct {
	ID       model.ID
	Label    model.Label
	Distance float32
}

type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections float64
}

type Stats struct {
	Nodes      int
	MaxLayer   int
	EntryPoint model.ID
	// Reachable is the number of nodes reachable on layer 0 from the entry point.
	Reachable  int
	GraphBytes int64
	Levels     []LevelStats
}
