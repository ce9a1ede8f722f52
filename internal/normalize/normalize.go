// Package normalize rescales environmental samples before an algorithm sees
// them.
package normalize

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"nichemodeller/internal/config"
	"nichemodeller/internal/sample"
)

const SectionName = "Normalization"

var (
	ErrUnknownClass   = errors.New("unknown normalizer class")
	ErrNotEnoughPoint = errors.New("not enough points to normalize")
)

// Source exposes the statistics a normalizer is computed from.
type Source interface {
	NumIndependent() int
	// LayerMinMax returns the extremes of the environment layers. ok is
	// false when there is no environment attached.
	LayerMinMax() (lo, hi sample.Sample, ok bool, err error)
	// SampleMinMax returns the extremes over every occurrence.
	SampleMinMax() (lo, hi sample.Sample, err error)
	// RawSamples returns the unnormalized environment of every occurrence.
	RawSamples() []sample.Sample
}

type Normalizer interface {
	Compute(src Source) error
	// Normalize returns a normalized copy of s. Empty samples pass through;
	// a sample of another length fails with sample.ErrDimensionMismatch.
	Normalize(s sample.Sample) (sample.Sample, error)
	// Dimension is the number of values Normalize expects, 0 before
	// Compute.
	Dimension() int
	Clone() Normalizer
	Configuration() *config.Section
}

// FromConfiguration rebuilds a normalizer from a Normalization section.
func FromConfiguration(sec *config.Section) (Normalizer, error) {
	class, err := sec.Attribute("Class")
	if err != nil {
		return nil, err
	}
	switch class {
	case scaleClass:
		n := &Scale{}
		if err := n.setConfiguration(sec); err != nil {
			return nil, err
		}
		return n, nil
	case meanVarianceClass:
		n := &MeanVariance{}
		if err := n.setConfiguration(sec); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
}

func discardLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}

// Apply normalizes s with n but keeps the leading categorical values as
// they are. Categorical layers always precede continuous ones.
func Apply(n Normalizer, s sample.Sample, categorical int) (sample.Sample, error) {
	if n == nil || len(s) == 0 {
		return s, nil
	}
	out, err := n.Normalize(s)
	if err != nil {
		return nil, err
	}
	if categorical > len(s) {
		categorical = len(s)
	}
	copy(out[:categorical], s[:categorical])
	return out, nil
}

// Skipping adapts a normalizer so that it leaves the first Categorical
// dimensions untouched.
type Skipping struct {
	Normalizer  Normalizer
	Categorical int
}

func (s Skipping) Normalize(v sample.Sample) (sample.Sample, error) {
	return Apply(s.Normalizer, v, s.Categorical)
}
