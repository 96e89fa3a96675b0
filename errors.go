package annbench

import (
	"errors"
	"fmt"

	"github.com/hupe1980/annbench/distance"
	"github.com/hupe1980/annbench/internal/hnsw"
	"github.com/hupe1980/annbench/internal/vectorstore"
	"github.com/hupe1980/annbench/resource"
)

var (
	// ErrInvalidArgument is returned for out-of-range parameters such as k > ef.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyFitted is returned when Fit is called on a built index.
	ErrAlreadyFitted = errors.New("index already fitted")
	// ErrNotFitted is returned when an index is queried before Fit.
	ErrNotFitted = errors.New("index not fitted")
	// ErrClosed is returned when an index is used after Close.
	ErrClosed = errors.New("index closed")
	// ErrEmptyInput is returned for empty vectors or datasets.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidID indicates an internal id out of range. It never reaches
	// callers of a healthy index.
	ErrInvalidID = errors.New("invalid id")
	// ErrInvariantViolation is returned when the graph fails its structural checks.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrMemoryLimit is returned when a build does not fit the memory budget.
	ErrMemoryLimit = errors.New("memory limit exceeded")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var hdm *hnsw.ErrDimensionMismatch
	if errors.As(err, &hdm) {
		return &ErrDimensionMismatch{Expected: hdm.Expected, Actual: hdm.Actual, cause: err}
	}
	var vdm *vectorstore.ErrDimensionMismatch
	if errors.As(err, &vdm) {
		return &ErrDimensionMismatch{Expected: vdm.Expected, Actual: vdm.Actual, cause: err}
	}
	var ddm *distance.ErrDimensionMismatch
	if errors.As(err, &ddm) {
		return &ErrDimensionMismatch{Expected: ddm.Expected, Actual: ddm.Actual, cause: err}
	}

	switch {
	case errors.Is(err, hnsw.ErrEmptyInput):
		return fmt.Errorf("%w: %w", ErrEmptyInput, err)
	case errors.Is(err, vectorstore.ErrInvalidID):
		return fmt.Errorf("%w: %w: %w", ErrInvariantViolation, ErrInvalidID, err)
	case errors.Is(err, hnsw.ErrInvariantViolation):
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	case errors.Is(err, resource.ErrMemoryLimit):
		return fmt.Errorf("%w: %w", ErrMemoryLimit, err)
	case errors.Is(err, hnsw.ErrInvalidArgument),
		errors.Is(err, distance.ErrUnknownMetric),
		errors.Is(err, vectorstore.ErrInvalidDimension):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	var id *hnsw.ErrInvalidDimension
	if errors.As(err, &id) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}
