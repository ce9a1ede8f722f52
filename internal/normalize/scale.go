package normalize

import (
	"fmt"
	"log/slog"

	"nichemodeller/internal/config"
	"nichemodeller/internal/sample"
)

const scaleClass = "ScaleNormalizer"

// Scale maps every dimension linearly onto [Min, Max].
type Scale struct {
	Min, Max float64
	// UseLayerAsRef takes the extremes from the environment layers instead
	// of the occurrences when an environment is available.
	UseLayerAsRef bool
	Logger        *slog.Logger

	offsets sample.Sample
	scales  sample.Sample
}

func NewScale(lo, hi float64, useLayerAsRef bool) *Scale {
	return &Scale{Min: lo, Max: hi, UseLayerAsRef: useLayerAsRef}
}

func (n *Scale) Compute(src Source) error {
	logger := discardLogger(n.Logger)
	var (
		lo, hi sample.Sample
		ok     bool
		err    error
	)
	if n.UseLayerAsRef {
		lo, hi, ok, err = src.LayerMinMax()
		if err != nil {
			return fmt.Errorf("layer min/max: %w", err)
		}
		if !ok {
			logger.Warn("sampler has no environment, using min/max from samples")
		}
	}
	if !ok {
		lo, hi, err = src.SampleMinMax()
		if err != nil {
			return fmt.Errorf("sample min/max: %w", err)
		}
	}

	dim := src.NumIndependent()
	if len(lo) != dim || len(hi) != dim {
		return fmt.Errorf("%w: min/max length %d for %d layers", sample.ErrDimensionMismatch, len(lo), dim)
	}
	n.scales = sample.New(dim)
	n.offsets = sample.New(dim)
	for i := 0; i < dim; i++ {
		if hi[i] == lo[i] {
			n.scales[i] = 1
		} else {
			n.scales[i] = (n.Max - n.Min) / (hi[i] - lo[i])
		}
		n.offsets[i] = n.Min - n.scales[i]*lo[i]
	}
	return nil
}

func (n *Scale) Normalize(s sample.Sample) (sample.Sample, error) {
	if len(s) == 0 || n.scales == nil {
		return s, nil
	}
	out := s.Clone()
	if err := out.Mul(n.scales); err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	if err := out.Add(n.offsets); err != nil {
		return nil, fmt.Errorf("offset: %w", err)
	}
	return out, nil
}

func (n *Scale) Dimension() int { return len(n.scales) }

func (n *Scale) Offsets() sample.Sample { return n.offsets }
func (n *Scale) Scales() sample.Sample  { return n.scales }

func (n *Scale) Clone() Normalizer {
	c := *n
	c.offsets = n.offsets.Clone()
	c.scales = n.scales.Clone()
	return &c
}

func (n *Scale) Configuration() *config.Section {
	sec := config.New(SectionName)
	sec.AddNameValue("Class", scaleClass)
	sec.AddNameValue("UseLayerAsRef", n.UseLayerAsRef)
	sec.AddNameValue("Min", n.Min)
	sec.AddNameValue("Max", n.Max)
	sec.AddNameValue("Offsets", n.offsets)
	sec.AddNameValue("Scales", n.scales)
	return sec
}

func (n *Scale) setConfiguration(sec *config.Section) error {
	var err error
	if n.UseLayerAsRef, err = sec.BoolOr("UseLayerAsRef", true); err != nil {
		return err
	}
	if n.Min, err = sec.FloatOr("Min", 0); err != nil {
		return err
	}
	if n.Max, err = sec.FloatOr("Max", 1); err != nil {
		return err
	}
	if n.offsets, err = sec.Sample("Offsets"); err != nil {
		return err
	}
	if n.scales, err = sec.Sample("Scales"); err != nil {
		return err
	}
	if len(n.offsets) != len(n.scales) {
		return fmt.Errorf("%w: offsets %d scales %d", sample.ErrDimensionMismatch, len(n.offsets), len(n.scales))
	}
	return nil
}
