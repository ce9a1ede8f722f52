// Package predict holds the uniform scoring contract shared by fitted
// algorithms and their composites.
package predict

import (
	"math"

	"nichemodeller/internal/normalize"
	"nichemodeller/internal/sample"
)

// Scorer maps an environmental sample to a suitability score.
type Scorer interface {
	Value(s sample.Sample) float64
}

// Target receives the training normalization before it is scored. A nil
// normalizer resets it to raw values. *environment.Environment is a Target.
type Target interface {
	Normalize(n normalize.Normalizer) error
}

type Model interface {
	Scorer
	SetNormalization(t Target) error
}

// Dimensioned reports the number of independent variables a model was
// trained on, or 0 when unknown.
type Dimensioned interface {
	Dimension() int
}

// Fitted pairs a scorer with the normalizer its inputs were trained under.
type Fitted struct {
	Scorer     Scorer
	Normalizer normalize.Normalizer
}

func NewFitted(s Scorer, n normalize.Normalizer) *Fitted {
	return &Fitted{Scorer: s, Normalizer: n}
}

func (f *Fitted) Value(s sample.Sample) float64 {
	return f.Scorer.Value(s)
}

// SetNormalization installs the training normalizer in t. Without one, t is
// left untouched.
func (f *Fitted) SetNormalization(t Target) error {
	if f.Normalizer == nil {
		return nil
	}
	return t.Normalize(f.Normalizer)
}

// Dimension prefers the scorer's own count over the normalizer's.
func (f *Fitted) Dimension() int {
	if d, ok := f.Scorer.(Dimensioned); ok && d.Dimension() > 0 {
		return d.Dimension()
	}
	if f.Normalizer != nil {
		return f.Normalizer.Dimension()
	}
	return 0
}

// AverageModel is the arithmetic mean of its members.
type AverageModel struct {
	Members []Model
}

func NewAverageModel(members ...Model) *AverageModel {
	return &AverageModel{Members: members}
}

func (m *AverageModel) Add(member Model) {
	m.Members = append(m.Members, member)
}

// Value is 0 for an empty average.
func (m *AverageModel) Value(s sample.Sample) float64 {
	if len(m.Members) == 0 {
		return 0
	}
	sum := 0.0
	for _, member := range m.Members {
		sum += member.Value(s)
	}
	return sum / float64(len(m.Members))
}

// SetNormalization resets t to raw values. Members may disagree on their
// normalization, so each one must be a ScaledModel that rescales its own
// inputs.
func (m *AverageModel) SetNormalization(t Target) error {
	return t.Normalize(nil)
}

// Dimension is the first known member dimension.
func (m *AverageModel) Dimension() int {
	for _, member := range m.Members {
		if d, ok := member.(Dimensioned); ok && d.Dimension() > 0 {
			return d.Dimension()
		}
	}
	return 0
}

// ScaledModel rescales inputs before delegating to Inner. The rescaling is
// Normalizer when set, else the affine map s*Scales + Offsets. The first
// Categorical values are passed through untouched.
type ScaledModel struct {
	Inner       Scorer
	Normalizer  normalize.Normalizer
	Offsets     sample.Sample
	Scales      sample.Sample
	Categorical int
}

func NewScaledModel(inner Scorer, n normalize.Normalizer, categorical int) *ScaledModel {
	return &ScaledModel{Inner: inner, Normalizer: n, Categorical: categorical}
}

func NewAffineModel(inner Scorer, offsets, scales sample.Sample) *ScaledModel {
	return &ScaledModel{Inner: inner, Offsets: offsets, Scales: scales}
}

// Value is NaN when s cannot be rescaled.
func (m *ScaledModel) Value(s sample.Sample) float64 {
	scaled, err := m.scale(s)
	if err != nil {
		return math.NaN()
	}
	return m.Inner.Value(scaled)
}

func (m *ScaledModel) scale(s sample.Sample) (sample.Sample, error) {
	if len(s) == 0 {
		return s, nil
	}
	if m.Normalizer != nil {
		return normalize.Apply(m.Normalizer, s, m.Categorical)
	}
	if m.Scales == nil {
		return s, nil
	}
	out := s.Clone()
	if err := out.Mul(m.Scales); err != nil {
		return nil, err
	}
	if err := out.Add(m.Offsets); err != nil {
		return nil, err
	}
	copy(out[:min(m.Categorical, len(s))], s)
	return out, nil
}

// SetNormalization resets t to raw values since the model rescales its own
// inputs.
func (m *ScaledModel) SetNormalization(t Target) error {
	return t.Normalize(nil)
}

func (m *ScaledModel) Dimension() int {
	if m.Normalizer != nil {
		return m.Normalizer.Dimension()
	}
	if d, ok := m.Inner.(Dimensioned); ok {
		return d.Dimension()
	}
	return len(m.Scales)
}
