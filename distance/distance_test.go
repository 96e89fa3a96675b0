package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
		{"Single", []float32{2}, []float32{3}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dot(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 1e-5)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 27},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Mixed", []float32{1, -1}, []float32{-1, 1}, 8},
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SquaredL2(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 1e-4)
		})
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 1, Cosine([]float32{1, 0}, []float32{0, 3}), 1e-6)
	assert.InDelta(t, 2, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(1), Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, float32(1), Cosine([]float32{1, 0}, []float32{0, 0}))
	assert.Equal(t, float32(0), Cosine([]float32{0, 0}, []float32{0, 0}))
}

func TestUnitCosineSelfIsZero(t *testing.T) {
	v, ok := NormalizeL2Copy([]float32{0.3, -1.7, 2.2, 9})
	require.True(t, ok)
	assert.Equal(t, float32(0), UnitCosine(v, v))

	w, ok := NormalizeL2Copy([]float32{1, 1, 0, 0})
	require.True(t, ok)
	assert.InDelta(t, Cosine(v, w), UnitCosine(v, w), 1e-5)
}

func TestDistance(t *testing.T) {
	d, err := Distance([]float32{0, 0}, []float32{3, 4}, MetricL2)
	require.NoError(t, err)
	assert.InDelta(t, 25, d, 1e-4)

	_, err = Distance([]float32{0, 0}, []float32{3}, MetricL2)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 1, dm.Actual)

	_, err = Distance([]float32{1}, []float32{1}, Metric(42))
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestDistanceDeterministic(t *testing.T) {
	a := make([]float32, 97)
	b := make([]float32, 97)
	for i := range a {
		a[i] = float32(math.Sin(float64(i)))
		b[i] = float32(math.Cos(float64(i)))
	}
	for _, m := range []Metric{MetricL2, MetricCosine} {
		first, err := Distance(a, b, m)
		require.NoError(t, err)
		for range 10 {
			again, err := Distance(a, b, m)
			require.NoError(t, err)
			assert.Equal(t, math.Float32bits(first), math.Float32bits(again))
		}
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want Metric
	}{
		{"euclidean", MetricL2},
		{"L2", MetricL2},
		{"angular", MetricCosine},
		{" Cosine ", MetricCosine},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseMetric("hamming")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestMetricText(t *testing.T) {
	var m Metric
	require.NoError(t, m.UnmarshalText([]byte("angular")))
	assert.Equal(t, MetricCosine, m)

	b, err := MetricL2.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "l2", string(b))

	assert.False(t, Metric(9).Valid())
	assert.Equal(t, "Unknown(9)", Metric(9).String())
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	require.True(t, NormalizeL2InPlace(v))
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, ok := NormalizeL2Copy([]float32{0, 0})
	assert.False(t, ok)
	assert.False(t, NormalizeL2InPlace(nil))
}

func TestProvider(t *testing.T) {
	fn, err := Provider(MetricL2)
	require.NoError(t, err)
	assert.InDelta(t, 2, fn([]float32{0, 0}, []float32{1, 1}), 1e-5)

	fn, err = Provider(MetricCosine)
	require.NoError(t, err)
	assert.InDelta(t, 1, fn([]float32{1, 0}, []float32{0, 1}), 1e-5)

	_, err = Provider(Metric(7))
	assert.ErrorIs(t, err, ErrUnknownMetric)
}
