package vectorstore

import (
	"testing"

	"github.com/hupe1980/annbench/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendGet(t *testing.T) {
	s, err := New(2, 2)
	require.NoError(t, err)

	id0, err := s.Append([]float32{1, 2}, 100)
	require.NoError(t, err)
	id1, err := s.Append([]float32{3, 4}, 200)
	require.NoError(t, err)
	// Growth past the capacity hint.
	id2, err := s.Append([]float32{5, 6}, 300)
	require.NoError(t, err)

	assert.Equal(t, []model.ID{0, 1, 2}, []model.ID{id0, id1, id2})
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.Dimension())

	v, err := s.Get(id1)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, v)
	assert.Equal(t, []float32{5, 6}, s.MustGet(id2))

	l, err := s.Label(id2)
	require.NoError(t, err)
	assert.Equal(t, model.Label(300), l)
}

func TestStore_CopiesInput(t *testing.T) {
	s, err := New(2, 1)
	require.NoError(t, err)
	in := []float32{1, 1}
	id, err := s.Append(in, 0)
	require.NoError(t, err)
	in[0] = 9
	v, _ := s.Get(id)
	assert.Equal(t, float32(1), v[0])
}

func TestStore_Errors(t *testing.T) {
	_, err := New(0, 1)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	s, err := New(3, 0)
	require.NoError(t, err)

	_, err = s.Append([]float32{1}, 0)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 1, dm.Actual)

	_, err = s.Get(0)
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = s.Label(5)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestStore_RawRoundTrip(t *testing.T) {
	s, err := New(2, 2)
	require.NoError(t, err)
	_, _ = s.Append([]float32{1, 2}, 7)
	_, _ = s.Append([]float32{3, 4}, 8)
	assert.Positive(t, s.SizeBytes())

	data, labels := s.Raw()
	r, err := FromRaw(2, data, labels)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	l, _ := r.Label(1)
	assert.Equal(t, model.Label(8), l)

	_, err = FromRaw(3, data, labels)
	assert.Error(t, err)
}
