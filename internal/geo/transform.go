// Package geo converts coordinates between a raster's native coordinate
// system and the common geographic system used for occurrences.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

// DefaultCS is the WGS84 geographic system every occurrence is expressed in.
const DefaultCS = `GEOGCS["WGS84", DATUM["WGS84", SPHEROID["WGS84", 6378137.0, 298.257223563]], PRIMEM["Greenwich", 0.0], UNIT["degree",0.017453292519943295], AXIS["Longitude",EAST], AXIS["Latitude",NORTH]]`

// BoundaryEpsilon is how far a coordinate lying exactly on the edge of the
// geographic domain is pulled inward before projecting it.
const BoundaryEpsilon = 1e-6

var ErrTransform = errors.New("coordinate transform failed")

// Transform maps points from the common system into a native system (In)
// and back (Out). It holds no mutable state and is safe for concurrent use.
type Transform struct {
	identity bool
	in       proj.Transformer
	out      proj.Transformer
}

// Identity returns a transform that leaves every point untouched.
func Identity() *Transform {
	return &Transform{identity: true}
}

// New builds the transform between native and common. An empty description
// stands for DefaultCS.
func New(native, common string) (*Transform, error) {
	if native == "" {
		native = DefaultCS
	}
	if common == "" {
		common = DefaultCS
	}
	if SameCS(native, common) {
		return Identity(), nil
	}

	nativeSR, err := proj.Parse(native)
	if err != nil {
		return nil, fmt.Errorf("parse native coordinate system: %w", err)
	}
	commonSR, err := proj.Parse(common)
	if err != nil {
		return nil, fmt.Errorf("parse common coordinate system: %w", err)
	}
	in, err := commonSR.NewTransform(nativeSR)
	if err != nil {
		return nil, fmt.Errorf("build inbound transform: %w", err)
	}
	out, err := nativeSR.NewTransform(commonSR)
	if err != nil {
		return nil, fmt.Errorf("build outbound transform: %w", err)
	}
	return &Transform{in: in, out: out}, nil
}

func (t *Transform) IsIdentity() bool {
	return t == nil || t.identity
}

// In converts a point in the common system to the native system.
func (t *Transform) In(x, y float64) (float64, float64, error) {
	if t.IsIdentity() {
		return x, y, nil
	}
	x, y, err := ClampGeographic(x, y)
	if err != nil {
		return x, y, err
	}
	nx, ny, err := t.in(x, y)
	if err != nil {
		return x, y, fmt.Errorf("%w: (%g, %g): %v", ErrTransform, x, y, err)
	}
	return nx, ny, nil
}

// Out converts a point in the native system to the common system.
func (t *Transform) Out(x, y float64) (float64, float64, error) {
	if t.IsIdentity() {
		return x, y, nil
	}
	cx, cy, err := t.out(x, y)
	if err != nil {
		return x, y, fmt.Errorf("%w: (%g, %g): %v", ErrTransform, x, y, err)
	}
	return cx, cy, nil
}

// ClampGeographic nudges a longitude/latitude within BoundaryEpsilon of the
// ±180/±90 edges inward by BoundaryEpsilon. Points further outside fail
// with ErrTransform.
func ClampGeographic(lon, lat float64) (float64, float64, error) {
	if math.Abs(lon) > 180+BoundaryEpsilon || math.Abs(lat) > 90+BoundaryEpsilon {
		return lon, lat, fmt.Errorf("%w: (%g, %g) is outside the geographic domain", ErrTransform, lon, lat)
	}
	return nudge(lon, 180), nudge(lat, 90), nil
}

func nudge(v, edge float64) float64 {
	switch {
	case v >= edge-BoundaryEpsilon:
		return edge - BoundaryEpsilon
	case v <= -edge+BoundaryEpsilon:
		return -edge + BoundaryEpsilon
	}
	return v
}

// OutBound converts the corners of a native bound into the common system.
// Inverted results fall back to the whole geographic domain on that axis.
func (t *Transform) OutBound(b orb.Bound) (orb.Bound, error) {
	xmin, ymin, err := t.Out(b.Min[0], b.Min[1])
	if err != nil {
		return orb.Bound{}, err
	}
	xmax, ymax, err := t.Out(b.Max[0], b.Max[1])
	if err != nil {
		return orb.Bound{}, err
	}
	if xmin > xmax {
		xmin, xmax = -180, 180
	}
	if ymin > ymax {
		ymin, ymax = -90, 90
	}
	return orb.Bound{Min: orb.Point{xmin, ymin}, Max: orb.Point{xmax, ymax}}, nil
}

// SameCS compares two coordinate system descriptions ignoring whitespace.
func SameCS(a, b string) bool {
	return stripSpace(a) == stripSpace(b)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
