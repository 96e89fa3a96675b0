// Package vectorstore holds the immutable set of indexed vectors and their labels.
//
// Vectors live in one contiguous float32 arena addressed by internal id, so
// Get is a slice expression and the footprint is exactly accounted.
package vectorstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/annbench/model"
)

var (
	// ErrInvalidID is returned when an internal id is out of range.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidDimension is returned for a non-positive dimension.
	ErrInvalidDimension = errors.New("dimension must be positive")
)

// ErrDimensionMismatch indicates an appended vector of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Store is an append-only vector arena.
//
// Append must not run concurrently with any other method. Once appends stop,
// all read methods are safe for concurrent use.
type Store struct {
	dim    int
	data   []float32
	labels []model.Label
}

// New creates an empty store for vectors of the given dimension.
// capacity is a hint for the number of vectors that will be appended.
func New(dim, capacity int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		dim:    dim,
		data:   make([]float32, 0, dim*capacity),
		labels: make([]model.Label, 0, capacity),
	}, nil
}

// Append copies vec into the arena and returns its id.
func (s *Store) Append(vec []float32, label model.Label) (model.ID, error) {
	if len(vec) != s.dim {
		return 0, &ErrDimensionMismatch{Expected: s.dim, Actual: len(vec)}
	}
	id := model.ID(len(s.labels))
	s.data = append(s.data, vec...)
	s.labels = append(s.labels, label)
	return id, nil
}

// Get returns the vector stored under id. The returned slice aliases the arena
// and must not be modified.
func (s *Store) Get(id model.ID) ([]float32, error) {
	if int(id) >= len(s.labels) {
		return nil, fmt.Errorf("%w: %d (size %d)", ErrInvalidID, id, len(s.labels))
	}
	off := int(id) * s.dim
	return s.data[off : off+s.dim : off+s.dim], nil
}

// MustGet is Get for ids produced by the index itself.
// An out-of-range id is an invariant violation and panics.
func (s *Store) MustGet(id model.ID) []float32 {
	off := int(id) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

// Label returns the label of id.
func (s *Store) Label(id model.ID) (model.Label, error) {
	if int(id) >= len(s.labels) {
		return 0, fmt.Errorf("%w: %d (size %d)", ErrInvalidID, id, len(s.labels))
	}
	return s.labels[id], nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int { return len(s.labels) }

// Dimension returns the fixed vector dimension.
func (s *Store) Dimension() int { return s.dim }

// SizeBytes returns the bytes reserved by the arena and the label table.
func (s *Store) SizeBytes() int64 {
	return int64(cap(s.data))*4 + int64(cap(s.labels))*8
}

// Raw exposes the arena and label table for serialization.
func (s *Store) Raw() ([]float32, []model.Label) {
	return s.data, s.labels
}

// FromRaw rebuilds a store from serialized parts. The slices are adopted, not copied.
func FromRaw(dim int, data []float32, labels []model.Label) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	if len(data) != dim*len(labels) {
		return nil, fmt.Errorf("vectorstore: %d floats do not hold %d vectors of dimension %d", len(data), len(labels), dim)
	}
	return &Store{dim: dim, data: data, labels: labels}, nil
}
