package sample

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleConstructors(t *testing.T) {
	assert.Equal(t, Sample{0, 0, 0}, New(3))
	assert.Equal(t, Sample{2.5, 2.5}, Filled(2, 2.5))

	raw := []float64{1, 2}
	view := FromSlice(raw)
	view[0] = 9
	assert.Equal(t, 9.0, raw[0])

	clone := view.Clone()
	clone[1] = 7
	assert.Equal(t, 2.0, raw[1])
}

func TestSampleElementwiseArithmetic(t *testing.T) {
	a := Sample{1, 2, 3}
	b := Sample{4, 5, 6}

	sum, err := a.Plus(b)
	require.NoError(t, err)
	assert.Equal(t, Sample{5, 7, 9}, sum)

	diff, err := b.Minus(a)
	require.NoError(t, err)
	assert.Equal(t, Sample{3, 3, 3}, diff)

	prod, err := a.Times(b)
	require.NoError(t, err)
	assert.Equal(t, Sample{4, 10, 18}, prod)

	quot, err := b.Over(Sample{2, 5, 3})
	require.NoError(t, err)
	assert.Equal(t, Sample{2, 1, 2}, quot)

	assert.Equal(t, Sample{1, 2, 3}, a, "non-mutating operators must leave the receiver intact")
}

func TestSampleDimensionMismatch(t *testing.T) {
	a := Sample{1, 2, 3}
	b := Sample{1, 2}

	err := a.Add(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	_, err = a.Dot(b)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, a.Min(b), ErrDimensionMismatch)
	assert.Equal(t, Sample{1, 2, 3}, a)
}

func TestSampleScalarAndReductions(t *testing.T) {
	s := Sample{3, 4}
	assert.Equal(t, 5.0, s.Norm())

	dot, err := s.Dot(Sample{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 11.0, dot)

	s.AddScalar(1)
	assert.Equal(t, Sample{4, 5}, s)
	s.SubScalar(2)
	assert.Equal(t, Sample{2, 3}, s)
	s.MulScalar(2)
	assert.Equal(t, Sample{4, 6}, s)
	s.DivScalar(2)
	assert.Equal(t, Sample{2, 3}, s)

	s.Sqr()
	assert.Equal(t, Sample{4, 9}, s)
	s.Sqrt()
	assert.Equal(t, Sample{2, 3}, s)

	neg := Sample{-1}
	neg.Sqrt()
	assert.True(t, math.IsNaN(neg[0]))
}

func TestSampleMinMaxMerge(t *testing.T) {
	lo := Sample{1, 5, -2}
	hi := lo.Clone()
	other := Sample{0, 6, -2}

	require.NoError(t, lo.Min(other))
	require.NoError(t, hi.Max(other))
	assert.Equal(t, Sample{0, 5, -2}, lo)
	assert.Equal(t, Sample{1, 6, -2}, hi)
}

func TestSampleEquality(t *testing.T) {
	assert.True(t, Sample{}.Equal(Sample{}))
	assert.True(t, Sample(nil).Equal(Sample{}))
	assert.True(t, Sample{1, 2}.Equal(Sample{1, 2}))
	assert.False(t, Sample{1, 2}.Equal(Sample{1, 2.0000001}))
	assert.False(t, Sample{1, 2}.Equal(Sample{1, 2, 3}))
}

func TestSampleStringParse(t *testing.T) {
	s := Sample{1, -0.5, 2.25}
	assert.Equal(t, "1 -0.5 2.25", s.String())

	parsed, err := Parse("1  -0.5\t2.25")
	require.NoError(t, err)
	assert.Equal(t, s, parsed)

	_, err = Parse("1 x")
	assert.Error(t, err)
}
