// Package environment combines environmental layers and an optional mask
// into a single coordinate-addressed source of samples.
package environment

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"github.com/paulmach/orb"

	"nichemodeller/internal/config"
	"nichemodeller/internal/geo"
	"nichemodeller/internal/normalize"
	"nichemodeller/internal/raster"
	"nichemodeller/internal/sample"
)

const (
	SectionName = "Environment"

	// MaxRandomAttempts bounds the rejection loop in Random.
	MaxRandomAttempts = 5000
)

var (
	ErrNoLayers      = errors.New("environment has no layers")
	ErrNoRandomPoint = errors.New("exceeded maximum number of attempts to generate pseudo point")
	ErrLayerIndex    = errors.New("layer index out of range")
)

// LayerSpec names a raster source and how to interpret it.
type LayerSpec struct {
	ID          string
	Categorical bool
	// MinMax, when set, overrides the scanned value range.
	MinMax *[2]float64
}

type Layer struct {
	ID  string
	Map *raster.Map
}

type Config struct {
	Layers []LayerSpec
	// Mask is an optional raster source; cells holding no-data are excluded.
	Mask   string
	Logger *slog.Logger
}

// Environment is read-only once built and normalized; Get may be called
// concurrently.
type Environment struct {
	layers     []Layer
	mask       *Layer
	region     orb.Bound
	normalizer normalize.Normalizer
	logger     *slog.Logger
}

// New opens every layer. Categorical layers are placed before continuous
// ones, each group keeping its configured order.
func New(cfg Config) (*Environment, error) {
	ordered := make([]LayerSpec, 0, len(cfg.Layers))
	for _, spec := range cfg.Layers {
		if spec.Categorical {
			ordered = append(ordered, spec)
		}
	}
	for _, spec := range cfg.Layers {
		if !spec.Categorical {
			ordered = append(ordered, spec)
		}
	}

	layers := make([]Layer, 0, len(ordered))
	for _, spec := range ordered {
		m, err := raster.OpenMap(spec.ID, spec.Categorical)
		if err != nil {
			return nil, fmt.Errorf("open layer %s: %w", spec.ID, err)
		}
		if spec.MinMax != nil {
			m.Raster().SetMinMax(spec.MinMax[0], spec.MinMax[1])
		}
		layers = append(layers, Layer{ID: spec.ID, Map: m})
	}

	var mask *Layer
	if cfg.Mask != "" {
		m, err := raster.OpenMap(cfg.Mask, false)
		if err != nil {
			return nil, fmt.Errorf("open mask %s: %w", cfg.Mask, err)
		}
		mask = &Layer{ID: cfg.Mask, Map: m}
	}
	return NewFromLayers(layers, mask, cfg.Logger)
}

// NewFromLayers builds an environment from already opened maps.
func NewFromLayers(layers []Layer, mask *Layer, logger *slog.Logger) (*Environment, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}
	e := &Environment{layers: layers, mask: mask, logger: logger}
	if err := e.calcRegion(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Environment) calcRegion() error {
	region := geo.Unbounded
	if e.mask != nil {
		ext, err := e.mask.Map.Extent()
		if err != nil {
			return fmt.Errorf("mask extent: %w", err)
		}
		region = ext
	}
	nonEmpty := true
	for _, l := range e.layers {
		ext, err := l.Map.Extent()
		if err != nil {
			return fmt.Errorf("layer %s extent: %w", l.ID, err)
		}
		region, nonEmpty = geo.Intersect(region, ext)
	}
	if !nonEmpty || region.Min[0] >= region.Max[0] || region.Min[1] >= region.Max[1] {
		e.logger.Warn("maps intersection is empty",
			"xmin", region.Min[0], "xmax", region.Max[0],
			"ymin", region.Min[1], "ymax", region.Max[1])
	}
	e.region = region
	return nil
}

func (e *Environment) NumLayers() int {
	return len(e.layers)
}

func (e *Environment) Layers() []Layer {
	return e.layers
}

func (e *Environment) Mask() *Layer {
	return e.mask
}

func (e *Environment) NumCategoricalLayers() int {
	n := 0
	for _, l := range e.layers {
		if l.Map.IsCategorical() {
			n++
		}
	}
	return n
}

func (e *Environment) IsCategorical(i int) bool {
	if i < 0 || i >= len(e.layers) {
		return false
	}
	return e.layers[i].Map.IsCategorical()
}

// VarTypes returns one flag per layer, true for categorical.
func (e *Environment) VarTypes() []bool {
	out := make([]bool, len(e.layers))
	for i := range e.layers {
		out[i] = e.IsCategorical(i)
	}
	return out
}

// Region is the intersection of every layer extent and the mask.
func (e *Environment) Region() orb.Bound {
	return e.region
}

// CheckCoordinates reports whether (x, y) lies in the common region and,
// with a mask, on a mask cell holding data.
func (e *Environment) CheckCoordinates(x, y float64) bool {
	if x < e.region.Min[0] || x > e.region.Max[0] || y < e.region.Min[1] || y > e.region.Max[1] {
		return false
	}
	if e.mask == nil {
		return true
	}
	_, ok := e.mask.Map.Get(x, y)
	return ok
}

// Unnormalized returns the raw layer values at (x, y), or an empty sample
// when any layer lacks data there.
func (e *Environment) Unnormalized(x, y float64) sample.Sample {
	if !e.CheckCoordinates(x, y) {
		return sample.Sample{}
	}
	out := sample.New(len(e.layers))
	for i, l := range e.layers {
		v, ok := l.Map.Get(x, y)
		if !ok {
			return sample.Sample{}
		}
		out[i] = v[0]
	}
	return out
}

// Get returns the normalized sample when a normalizer is set. Categorical
// values are never rescaled. Normalize has checked the normalizer against
// the layer count, so every sample with data gets normalized.
func (e *Environment) Get(x, y float64) sample.Sample {
	out, err := normalize.Apply(e.normalizer, e.Unnormalized(x, y), e.NumCategoricalLayers())
	if err != nil {
		return sample.Sample{}
	}
	return out
}

// Random draws a uniform coordinate in the region until one has data.
func (e *Environment) Random(rng *rand.Rand) (float64, float64, sample.Sample, error) {
	for attempt := 0; attempt < MaxRandomAttempts; attempt++ {
		x := e.region.Min[0] + rng.Float64()*(e.region.Max[0]-e.region.Min[0])
		y := e.region.Min[1] + rng.Float64()*(e.region.Max[1]-e.region.Min[1])
		if s := e.Get(x, y); len(s) > 0 {
			return x, y, s, nil
		}
	}
	e.logger.Error("exceeded maximum number of attempts to generate pseudo point", "attempts", MaxRandomAttempts)
	return 0, 0, nil, ErrNoRandomPoint
}

// MinMax returns the raw value range of every layer.
func (e *Environment) MinMax() (sample.Sample, sample.Sample, error) {
	lo := sample.New(len(e.layers))
	hi := sample.New(len(e.layers))
	for i, l := range e.layers {
		mn, mx, err := l.Map.MinMax()
		if err != nil {
			return nil, nil, fmt.Errorf("layer %s: %w", l.ID, err)
		}
		lo[i], hi[i] = mn, mx
	}
	return lo, hi, nil
}

// Extremes is MinMax passed through the normalizer, if any.
func (e *Environment) Extremes() (sample.Sample, sample.Sample, error) {
	lo, hi, err := e.MinMax()
	if err != nil {
		return nil, nil, err
	}
	k := e.NumCategoricalLayers()
	if lo, err = normalize.Apply(e.normalizer, lo, k); err != nil {
		return nil, nil, err
	}
	if hi, err = normalize.Apply(e.normalizer, hi, k); err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

// Normalize installs a copy of n. A nil normalizer resets normalization.
// A computed normalizer must cover exactly the environment layers.
func (e *Environment) Normalize(n normalize.Normalizer) error {
	if n == nil {
		e.normalizer = nil
		return nil
	}
	if d := n.Dimension(); d > 0 && d != len(e.layers) {
		return fmt.Errorf("%w: normalizer covers %d layers, environment has %d", sample.ErrDimensionMismatch, d, len(e.layers))
	}
	e.normalizer = n.Clone()
	return nil
}

func (e *Environment) ResetNormalization() {
	e.normalizer = nil
}

func (e *Environment) Normalizer() normalize.Normalizer {
	return e.normalizer
}

// RemoveLayer drops the i-th layer and recomputes the region.
func (e *Environment) RemoveLayer(i int) error {
	if i < 0 || i >= len(e.layers) {
		return fmt.Errorf("%w: %d", ErrLayerIndex, i)
	}
	if len(e.layers) == 1 {
		return ErrNoLayers
	}
	e.layers = append(e.layers[:i:i], e.layers[i+1:]...)
	return e.calcRegion()
}

// Configuration lists the layers, with their cached ranges, and the mask.
func (e *Environment) Configuration() *config.Section {
	sec := config.New(SectionName)
	sec.AddNameValue("NumLayers", len(e.layers))
	for _, l := range e.layers {
		m := config.New("Map")
		m.AddNameValue("Id", l.ID)
		m.AddNameValue("IsCategorical", l.Map.IsCategorical())
		if h := l.Map.Header(); h.HasMinMax {
			m.AddNameValue("Min", h.Min)
			m.AddNameValue("Max", h.Max)
		}
		sec.AddSubsection(m)
	}
	if e.mask != nil {
		m := config.New("Mask")
		m.AddNameValue("Id", e.mask.ID)
		sec.AddSubsection(m)
	}
	return sec
}

// FromConfiguration reopens the environment described by sec.
func FromConfiguration(sec *config.Section, logger *slog.Logger) (*Environment, error) {
	var cfg Config
	cfg.Logger = logger
	for _, sub := range sec.Subsections {
		id, err := sub.Attribute("Id")
		if err != nil {
			return nil, err
		}
		if sub.Name == "Mask" {
			cfg.Mask = id
			continue
		}
		categorical, err := sub.BoolOr("IsCategorical", false)
		if err != nil {
			return nil, err
		}
		spec := LayerSpec{ID: id, Categorical: categorical}
		if sub.Has("Min") && sub.Has("Max") {
			lo, err := sub.Float("Min")
			if err != nil {
				return nil, err
			}
			hi, err := sub.Float("Max")
			if err != nil {
				return nil, err
			}
			spec.MinMax = &[2]float64{lo, hi}
		}
		cfg.Layers = append(cfg.Layers, spec)
	}
	return New(cfg)
}
