// Package occurrence models georeferenced presence and absence records and
// the collections the samplers draw from.
package occurrence

import (
	"fmt"

	"github.com/paulmach/orb"

	"nichemodeller/internal/sample"
)

// Normalizer rescales an environmental sample.
type Normalizer interface {
	Normalize(s sample.Sample) (sample.Sample, error)
}

// Occurrence is one observed (or generated) point. Abundance 0 marks an
// absence; anything above it is a presence.
type Occurrence struct {
	ID         string        `json:"id"`
	Point      orb.Point     `json:"point"`
	Error      float64       `json:"error"`
	Abundance  float64       `json:"abundance"`
	Attributes sample.Sample `json:"attributes,omitempty"`

	env     sample.Sample
	normEnv sample.Sample
}

func New(id string, lon, lat, errRadius, abundance float64) *Occurrence {
	return &Occurrence{ID: id, Point: orb.Point{lon, lat}, Error: errRadius, Abundance: abundance}
}

func (o *Occurrence) X() float64 { return o.Point[0] }
func (o *Occurrence) Y() float64 { return o.Point[1] }

func (o *Occurrence) IsPresence() bool {
	return o.Abundance > 0
}

// SetEnvironment stores the raw environmental sample and drops any
// normalized copy.
func (o *Occurrence) SetEnvironment(env sample.Sample) {
	o.env = env
	o.normEnv = nil
}

// Environment returns the normalized sample when present, otherwise the raw
// one.
func (o *Occurrence) Environment() sample.Sample {
	if o.normEnv != nil {
		return o.normEnv
	}
	return o.env
}

func (o *Occurrence) UnnormalizedEnvironment() sample.Sample {
	return o.env
}

func (o *Occurrence) HasEnvironment() bool {
	return len(o.env) > 0
}

// Normalize recomputes the normalized sample from the raw one. On error
// the previous normalized sample is kept.
func (o *Occurrence) Normalize(n Normalizer) error {
	if len(o.env) == 0 {
		return nil
	}
	norm, err := n.Normalize(o.env.Clone())
	if err != nil {
		return fmt.Errorf("occurrence %s: %w", o.ID, err)
	}
	o.normEnv = norm
	return nil
}

func (o *Occurrence) ResetNormalization() {
	o.normEnv = nil
}

// Clone copies the occurrence including its cached samples.
func (o *Occurrence) Clone() *Occurrence {
	c := *o
	c.Attributes = o.Attributes.Clone()
	c.env = o.env.Clone()
	c.normEnv = o.normEnv.Clone()
	return &c
}
