package sampler

import (
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/raster"
)

// EnvironmentallyUnique drops every point whose raw environment equals an
// earlier point of the same class. The kept presence gains the dropped
// point's abundance count.
func (s *Sampler) EnvironmentallyUnique() {
	if s.env == nil {
		return
	}
	s.logger.Info("applying filter", "filter", "environmentally unique")
	s.dedupe(s.presences, "presence", func(a, b *occurrence.Occurrence) bool {
		return s.env.Unnormalized(a.X(), a.Y()).Equal(s.env.Unnormalized(b.X(), b.Y()))
	})
	s.dedupe(s.absences, "absence", func(a, b *occurrence.Occurrence) bool {
		return s.env.Unnormalized(a.X(), a.Y()).Equal(s.env.Unnormalized(b.X(), b.Y()))
	})
}

// SpatiallyUnique drops every point falling in the same cell of the mask,
// or of the first layer without a mask, as an earlier point of its class.
func (s *Sampler) SpatiallyUnique() {
	if s.env == nil {
		return
	}
	s.logger.Info("applying filter", "filter", "spatially unique")
	grid := s.cellMap()
	s.dedupe(s.presences, "presence", func(a, b *occurrence.Occurrence) bool {
		return sameCell(grid, a, b)
	})
	s.dedupe(s.absences, "absence", func(a, b *occurrence.Occurrence) bool {
		return sameCell(grid, a, b)
	})
}

func (s *Sampler) dedupe(set *occurrence.Set, kind string, same func(a, b *occurrence.Occurrence) bool) {
	for i := 0; i < set.Len(); i++ {
		kept := set.At(i)
		for j := i + 1; j < set.Len(); {
			dup := set.At(j)
			if !same(kept, dup) {
				j++
				continue
			}
			s.logger.Info("discarding duplicate point", "kind", kind, "id", dup.ID, "x", dup.X(), "y", dup.Y())
			set.Remove(j)
			if kept.IsPresence() {
				kept.Abundance++
			}
		}
	}
}

func (s *Sampler) cellMap() *raster.Map {
	if m := s.env.Mask(); m != nil {
		return m.Map
	}
	return s.env.Layers()[0].Map
}

func sameCell(m *raster.Map, a, b *occurrence.Occurrence) bool {
	ac, ar, err := m.RowColumn(a.X(), a.Y())
	if err != nil {
		return false
	}
	bc, br, err := m.RowColumn(b.X(), b.Y())
	if err != nil {
		return false
	}
	return ac == bc && ar == br
}

func (s *Sampler) envUniqueIn(o *occurrence.Occurrence, set *occurrence.Set) bool {
	env := s.env.Unnormalized(o.X(), o.Y())
	for _, other := range set.All() {
		if env.Equal(s.env.Unnormalized(other.X(), other.Y())) {
			return false
		}
	}
	return true
}

func (s *Sampler) geoUniqueIn(o *occurrence.Occurrence, set *occurrence.Set) bool {
	grid := s.cellMap()
	for _, other := range set.All() {
		if sameCell(grid, o, other) {
			return false
		}
	}
	return true
}
