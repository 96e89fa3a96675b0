package distance

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/viterin/vek/vek32"
)

var (
	// ErrUnknownMetric is returned when a metric name or value is not supported.
	ErrUnknownMetric = errors.New("unknown metric")
)

// ErrDimensionMismatch indicates that two vectors have different lengths.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Metric represents the distance metric used for vector comparison.
type Metric uint8

const (
	MetricL2 Metric = iota
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	return m == MetricL2 || m == MetricCosine
}

// ParseMetric maps a metric name to a Metric.
// Both the benchmark dataset names ("euclidean", "angular") and the
// short names ("l2", "cosine") are accepted, case-insensitively.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "euclidean", "l2":
		return MetricL2, nil
	case "angular", "cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	switch m {
	case MetricL2:
		return []byte("l2"), nil
	case MetricCosine:
		return []byte("cosine"), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, m)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Func is a function type for distance calculation.
// Lower values mean closer vectors.
type Func func(a, b []float32) float32

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	d := vek32.Distance(a, b)
	return d * d
}

// Cosine calculates 1 - cos(a, b) for arbitrary (not necessarily normalized) vectors.
// A zero vector is at distance 1 from any non-zero vector and at 0 from
// another zero vector.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	na := vek32.Norm(a)
	nb := vek32.Norm(b)
	if na == 0 && nb == 0 {
		return 0
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - vek32.Dot(a, b)/(na*nb)
}

// UnitCosine calculates the cosine distance of two unit vectors.
// For unit vectors 1 - a·b equals |a-b|²/2; the latter is exactly 0 for
// identical inputs.
func UnitCosine(a, b []float32) float32 {
	return 0.5 * SquaredL2(a, b)
}

// Distance computes the distance between a and b under metric.
func Distance(a, b []float32, metric Metric) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	switch metric {
	case MetricL2:
		return SquaredL2(a, b), nil
	case MetricCosine:
		return Cosine(a, b), nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownMetric, metric)
	}
}

// Provider returns the distance function an index uses for stored vectors.
// Cosine indexes store unit vectors, so the returned function is UnitCosine.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricCosine:
		return UnitCosine, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMetric, m)
	}
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm := vek32.Norm(v)
	if norm == 0 {
		return false
	}
	vek32.MulNumber_Inplace(v, 1/norm)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}
