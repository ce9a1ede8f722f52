package normalize

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"nichemodeller/internal/config"
	"nichemodeller/internal/sample"
)

const meanVarianceClass = "MeanVarianceNormalizer"

// MeanVariance centres every dimension on its mean and divides by its
// sample standard deviation.
type MeanVariance struct {
	mean   sample.Sample
	stddev sample.Sample
}

func NewMeanVariance() *MeanVariance {
	return &MeanVariance{}
}

func (n *MeanVariance) Compute(src Source) error {
	points := src.RawSamples()
	if len(points) < 2 {
		return fmt.Errorf("%w: %d", ErrNotEnoughPoint, len(points))
	}
	dim := src.NumIndependent()
	n.mean = sample.New(dim)
	n.stddev = sample.New(dim)

	column := make([]float64, len(points))
	for d := 0; d < dim; d++ {
		for i, p := range points {
			if len(p) != dim {
				return fmt.Errorf("%w: point %d has %d values", sample.ErrDimensionMismatch, i, len(p))
			}
			column[i] = p[d]
		}
		n.mean[d], n.stddev[d] = stat.MeanStdDev(column, nil)
	}
	return nil
}

func (n *MeanVariance) Normalize(s sample.Sample) (sample.Sample, error) {
	if len(s) == 0 || n.mean == nil {
		return s, nil
	}
	out := s.Clone()
	if err := out.Sub(n.mean); err != nil {
		return nil, fmt.Errorf("center: %w", err)
	}
	if err := out.Div(n.stddev); err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}
	return out, nil
}

func (n *MeanVariance) Dimension() int { return len(n.mean) }

func (n *MeanVariance) Mean() sample.Sample   { return n.mean }
func (n *MeanVariance) StdDev() sample.Sample { return n.stddev }

func (n *MeanVariance) Clone() Normalizer {
	return &MeanVariance{mean: n.mean.Clone(), stddev: n.stddev.Clone()}
}

func (n *MeanVariance) Configuration() *config.Section {
	sec := config.New(SectionName)
	sec.AddNameValue("Class", meanVarianceClass)
	sec.AddNameValue("Mean", n.mean)
	sec.AddNameValue("StdDev", n.stddev)
	return sec
}

func (n *MeanVariance) setConfiguration(sec *config.Section) error {
	var err error
	if n.mean, err = sec.Sample("Mean"); err != nil {
		return err
	}
	if n.stddev, err = sec.Sample("StdDev"); err != nil {
		return err
	}
	if len(n.mean) != len(n.stddev) {
		return fmt.Errorf("%w: mean %d stddev %d", sample.ErrDimensionMismatch, len(n.mean), len(n.stddev))
	}
	return nil
}
