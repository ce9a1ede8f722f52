package occurrence

import (
	"fmt"

	"nichemodeller/internal/config"
)

// Configuration lists every point with its raw environment, if any.
func (s *Set) Configuration(name string) *config.Section {
	sec := config.New(name)
	sec.AddNameValue("Label", s.Label)
	sec.AddNameValue("CoordinateSystem", s.CoordSystem)
	sec.AddNameValue("Count", s.Len())
	for _, o := range s.All() {
		p := config.New("Point")
		p.AddNameValue("Id", o.ID)
		p.AddNameValue("X", o.X())
		p.AddNameValue("Y", o.Y())
		p.AddNameValue("Abundance", o.Abundance)
		if o.HasEnvironment() {
			p.AddNameValue("Sample", o.UnnormalizedEnvironment())
		}
		sec.AddSubsection(p)
	}
	return sec
}

// SetFromConfiguration rebuilds a set. Points without an Abundance
// attribute get defaultAbundance.
func SetFromConfiguration(sec *config.Section, defaultAbundance float64) (*Set, error) {
	label, err := sec.Attribute("Label")
	if err != nil {
		return nil, err
	}
	cs, _ := sec.Attribute("CoordinateSystem")
	s := NewSet(label, cs)
	for i, p := range sec.All("Point") {
		id, err := p.Attribute("Id")
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		x, err := p.Float("X")
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", id, err)
		}
		y, err := p.Float("Y")
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", id, err)
		}
		abundance, err := p.FloatOr("Abundance", defaultAbundance)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", id, err)
		}
		o := New(id, x, y, 0, abundance)
		if p.Has("Sample") {
			env, err := p.Sample("Sample")
			if err != nil {
				return nil, fmt.Errorf("point %s: %w", id, err)
			}
			o.SetEnvironment(env)
		}
		s.Append(o)
	}
	return s, nil
}
