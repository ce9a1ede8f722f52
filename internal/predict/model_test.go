package predict

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nichemodeller/internal/normalize"
	"nichemodeller/internal/sample"
)

type sumScorer struct{}

func (sumScorer) Value(s sample.Sample) float64 {
	total := 0.0
	for _, v := range s {
		total += v
	}
	return total
}

type constant float64

func (c constant) Value(sample.Sample) float64 { return float64(c) }

type recordingTarget struct {
	calls int
	last  normalize.Normalizer
}

func (r *recordingTarget) Normalize(n normalize.Normalizer) error {
	r.calls++
	r.last = n
	return nil
}

type rangeSource struct{ lo, hi sample.Sample }

func (r rangeSource) NumIndependent() int { return len(r.lo) }
func (r rangeSource) LayerMinMax() (sample.Sample, sample.Sample, bool, error) {
	return r.lo, r.hi, true, nil
}
func (r rangeSource) SampleMinMax() (sample.Sample, sample.Sample, error) { return r.lo, r.hi, nil }
func (r rangeSource) RawSamples() []sample.Sample                         { return nil }

func TestAverageModel(t *testing.T) {
	m := NewAverageModel()
	assert.Equal(t, 0.0, m.Value(sample.Sample{1}))

	m.Add(NewFitted(constant(0.2), nil))
	m.Add(NewFitted(constant(0.6), nil))
	assert.InDelta(t, 0.4, m.Value(sample.Sample{1}), 1e-12)

	target := &recordingTarget{last: normalize.NewMeanVariance()}
	require.NoError(t, m.SetNormalization(target))
	assert.Equal(t, 1, target.calls)
	assert.Nil(t, target.last)
}

func TestFittedPropagatesNormalizer(t *testing.T) {
	n := normalize.NewScale(0, 1, true)
	f := NewFitted(sumScorer{}, n)
	target := &recordingTarget{}
	require.NoError(t, f.SetNormalization(target))
	assert.Same(t, n, target.last)

	target = &recordingTarget{}
	require.NoError(t, NewFitted(sumScorer{}, nil).SetNormalization(target))
	assert.Zero(t, target.calls)
}

func TestScaledModel(t *testing.T) {
	n := normalize.NewScale(0, 1, true)
	require.NoError(t, n.Compute(rangeSource{lo: sample.Sample{0, 0}, hi: sample.Sample{10, 100}}))

	scaled := NewScaledModel(sumScorer{}, n, 0)
	assert.InDelta(t, 1.0, scaled.Value(sample.Sample{5, 50}), 1e-12)

	categorical := NewScaledModel(sumScorer{}, n, 1)
	assert.InDelta(t, 5.5, categorical.Value(sample.Sample{5, 50}), 1e-12)

	affine := NewAffineModel(sumScorer{}, sample.Sample{1, -1}, sample.Sample{2, 0.5})
	assert.InDelta(t, 11+24, affine.Value(sample.Sample{5, 50}), 1e-12)
	empty, err := affine.scale(sample.Sample{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	target := &recordingTarget{last: n}
	require.NoError(t, affine.SetNormalization(target))
	assert.Nil(t, target.last)
}

type genes int

func (g genes) Value(sample.Sample) float64 { return 0 }
func (g genes) Dimension() int              { return int(g) }

func TestModelsRejectOtherDimensions(t *testing.T) {
	n := normalize.NewScale(0, 1, true)
	require.NoError(t, n.Compute(rangeSource{lo: sample.Sample{0, 0}, hi: sample.Sample{10, 100}}))

	scaled := NewScaledModel(sumScorer{}, n, 0)
	assert.True(t, math.IsNaN(scaled.Value(sample.Sample{5})))
	assert.Equal(t, 2, scaled.Dimension())

	affine := NewAffineModel(sumScorer{}, sample.Sample{1, -1}, sample.Sample{2, 0.5})
	_, err := affine.scale(sample.Sample{5, 50, 7})
	assert.ErrorIs(t, err, sample.ErrDimensionMismatch)
	assert.True(t, math.IsNaN(affine.Value(sample.Sample{5, 50, 7})))
	assert.Equal(t, 2, affine.Dimension())

	assert.Equal(t, 2, NewFitted(sumScorer{}, n).Dimension())
	assert.Equal(t, 3, NewFitted(genes(3), n).Dimension())
	assert.Zero(t, NewFitted(sumScorer{}, nil).Dimension())
	assert.Equal(t, 2, NewAverageModel(NewFitted(constant(1), nil), scaled).Dimension())
}
