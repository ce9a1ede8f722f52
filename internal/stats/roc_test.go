package stats

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nichemodeller/internal/environment"
	"nichemodeller/internal/normalize"
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/predict"
	"nichemodeller/internal/raster"
	"nichemodeller/internal/sample"
	"nichemodeller/internal/sampler"
)

// gradientSampler builds a 10x10 environment whose single layer holds
// col/10, presences in columns 7-9 and absences in columns xs.
func gradientSampler(t *testing.T, absenceCols ...int) *sampler.Sampler {
	t.Helper()
	h, err := raster.NewHeader(10, 10, 0, 0, 10, 10, -9999, 1, true)
	require.NoError(t, err)
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i%10) / 10
	}
	g, err := raster.NewGridFromValues(h, values)
	require.NoError(t, err)
	id := raster.MemoryPrefix + t.Name() + "/gradient"
	raster.RegisterMemory(id, g)

	env, err := environment.New(environment.Config{Layers: []environment.LayerSpec{{ID: id}}})
	require.NoError(t, err)

	presences := occurrence.NewSet("species", "")
	for _, col := range []int{7, 8, 9} {
		presences.Append(occurrence.New(fmt.Sprintf("p%d", col), float64(col)+0.5, 5.5, 0, 1))
	}
	absences := occurrence.NewSet("species", "")
	for _, col := range absenceCols {
		absences.Append(occurrence.New(fmt.Sprintf("a%d", col), float64(col)+0.5, 5.5, 0, 0))
	}
	s, err := sampler.New(env, presences, absences, nil)
	require.NoError(t, err)
	return s
}

func assertSorted(t *testing.T, points []RocPoint) {
	t.Helper()
	assert.True(t, sort.SliceIsSorted(points, func(i, j int) bool {
		if points[i].X != points[j].X {
			return points[i].X < points[j].X
		}
		return points[i].Sensitivity < points[j].Sensitivity
	}), "points must be sorted: %+v", points)
}

func TestRocCurveTraditionalPerfectSeparation(t *testing.T) {
	s := gradientSampler(t, 1, 2, 3)
	roc, err := NewRocCurve(RocOptions{})
	require.NoError(t, err)

	require.NoError(t, roc.Calculate(rand.New(rand.NewSource(42)), predict.NewFitted(firstValue{}, nil), s))
	assert.True(t, roc.Ready())
	assert.Equal(t, ApproachTraditional, roc.Approach())

	points := roc.Points()
	require.Len(t, points, DefaultResolution+2)
	assertSorted(t, points)
	assert.Equal(t, 0.0, points[0].X)
	assert.Equal(t, 0.0, points[0].Sensitivity)
	last := points[len(points)-1]
	assert.Equal(t, 1.0, last.X)
	assert.Equal(t, 1.0, last.Sensitivity)
	assert.InDelta(t, 1.0, roc.AUC(), 1e-12)

	ratio, err := roc.PartialAreaRatio(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, ratio, 1e-9)
	cached, err := roc.PartialAreaRatio(0.5)
	require.NoError(t, err)
	assert.Equal(t, ratio, cached)

	sec := roc.Configuration()
	auc, err := sec.Float("Auc")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, auc, 1e-12)
	flat, err := sec.Sample("Points")
	require.NoError(t, err)
	assert.Len(t, flat, 2*len(points))
	assert.Len(t, sec.All("Ratio"), 1)
	assert.False(t, sec.Has("NumBackgroundPoints"))
}

func TestRocCurveProportionalArea(t *testing.T) {
	s := gradientSampler(t)
	roc, err := NewRocCurve(RocOptions{BackgroundPoints: 2000})
	require.NoError(t, err)

	require.NoError(t, roc.Calculate(rand.New(rand.NewSource(42)), predict.NewFitted(firstValue{}, nil), s))
	assert.Equal(t, ApproachProportionalArea, roc.Approach())
	assert.Equal(t, 2000, roc.BackgroundPoints())

	points := roc.Points()
	assertSorted(t, points)
	assert.Equal(t, 0.0, points[0].X)
	last := points[len(points)-1]
	assert.Equal(t, 1.0, last.X)
	assert.Equal(t, 1.0, last.Sensitivity)
	assert.Greater(t, roc.AUC(), 0.5)
	assert.LessOrEqual(t, roc.AUC(), 1.0)

	n, err := roc.Configuration().Int("NumBackgroundPoints")
	require.NoError(t, err)
	assert.Equal(t, 2000, n)
}

func TestRocCurveAbsencesAsBackground(t *testing.T) {
	s := gradientSampler(t, 0, 1, 2, 3, 4)
	roc, err := NewRocCurve(RocOptions{UseAbsencesAsBackground: true})
	require.NoError(t, err)

	require.NoError(t, roc.Calculate(nil, predict.NewFitted(firstValue{}, nil), s))
	assert.Equal(t, ApproachProportionalArea, roc.Approach())
	assert.Equal(t, 5, roc.BackgroundPoints())
	assert.InDelta(t, 1.0, roc.AUC(), 1e-12)
}

func TestRocCurveRejectsMissingAbsences(t *testing.T) {
	s := gradientSampler(t)
	model := predict.NewFitted(firstValue{}, nil)

	roc, err := NewRocCurve(RocOptions{Approach: ApproachTraditional})
	require.NoError(t, err)
	assert.ErrorIs(t, roc.Calculate(nil, model, s), ErrNoAbsences)

	roc, err = NewRocCurve(RocOptions{UseAbsencesAsBackground: true})
	require.NoError(t, err)
	assert.ErrorIs(t, roc.Calculate(nil, model, s), ErrNoAbsences)

	assert.ErrorIs(t, roc.Calculate(nil, model, nil), ErrNoROCSampler)

	_, err = NewRocCurve(RocOptions{Resolution: 1})
	assert.Error(t, err)
	_, err = roc.PartialAreaRatio(0.1)
	assert.ErrorIs(t, err, ErrNoROCPoints)
}

type wideSource struct{}

func (wideSource) NumIndependent() int { return 2 }
func (wideSource) LayerMinMax() (sample.Sample, sample.Sample, bool, error) {
	return sample.Sample{0, 0}, sample.Sample{1, 10}, true, nil
}
func (wideSource) SampleMinMax() (sample.Sample, sample.Sample, error) {
	return sample.Sample{0, 0}, sample.Sample{1, 10}, nil
}
func (wideSource) RawSamples() []sample.Sample { return nil }

func TestEvaluationRejectsModelOfOtherDimension(t *testing.T) {
	n := normalize.NewScale(0, 1, true)
	require.NoError(t, n.Compute(wideSource{}))
	model := predict.NewFitted(firstValue{}, n)
	s := gradientSampler(t, 1, 2)

	cm := NewConfusionMatrix(DefaultThreshold, nil)
	assert.ErrorIs(t, cm.CalculateSampler(model, s), sample.ErrDimensionMismatch)
	assert.Equal(t, -1.0, cm.Accuracy())

	roc, err := NewRocCurve(RocOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, roc.Calculate(nil, model, s), sample.ErrDimensionMismatch)
	assert.False(t, roc.Ready())
}
