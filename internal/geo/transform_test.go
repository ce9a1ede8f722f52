package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestSameCSIgnoresWhitespace(t *testing.T) {
	compact := `GEOGCS["WGS84",DATUM["WGS84",SPHEROID["WGS84",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["degree",0.017453292519943295],AXIS["Longitude",EAST],AXIS["Latitude",NORTH]]`
	if !SameCS(DefaultCS, compact) {
		t.Fatal("expected whitespace-insensitive match")
	}
	if SameCS(DefaultCS, "+proj=longlat") {
		t.Fatal("expected different descriptions to differ")
	}
}

func TestNewIdentityForDefaultSystem(t *testing.T) {
	tr, err := New("", DefaultCS)
	if err != nil {
		t.Fatalf("new transform: %v", err)
	}
	if !tr.IsIdentity() {
		t.Fatal("expected identity transform")
	}
	x, y, err := tr.In(-180, 90)
	if err != nil {
		t.Fatalf("in: %v", err)
	}
	if x != -180 || y != 90 {
		t.Fatalf("identity must not clamp, got (%g, %g)", x, y)
	}
}

func TestClampGeographic(t *testing.T) {
	lon, lat, err := ClampGeographic(180, -90)
	if err != nil {
		t.Fatalf("clamp: %v", err)
	}
	if lon != 180-BoundaryEpsilon || lat != -90+BoundaryEpsilon {
		t.Fatalf("unexpected clamp: (%g, %g)", lon, lat)
	}
	lon, lat, err = ClampGeographic(12.5, 45)
	if err != nil || lon != 12.5 || lat != 45 {
		t.Fatalf("interior point must be unchanged: (%g, %g) %v", lon, lat, err)
	}
	for _, p := range [][2]float64{{250, 95}, {250, 0}, {0, 95}, {-181, 0}, {0, -90.5}} {
		if _, _, err := ClampGeographic(p[0], p[1]); !errors.Is(err, ErrTransform) {
			t.Fatalf("expected (%g, %g) to be rejected, got %v", p[0], p[1], err)
		}
	}
}

func TestProjectedRejectsPointsOutsideDomain(t *testing.T) {
	utm := "+proj=utm +zone=33 +ellps=WGS84 +datum=WGS84 +units=m +no_defs"
	tr, err := New(utm, "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs")
	if err != nil {
		t.Fatalf("new transform: %v", err)
	}
	if _, _, err := tr.In(250, 95); !errors.Is(err, ErrTransform) {
		t.Fatalf("expected an out of domain point to fail, got %v", err)
	}
	if _, _, err := tr.In(180, 90); err != nil {
		t.Fatalf("a point on the edge must be nudged inward: %v", err)
	}
}

func TestOutBoundFallsBackOnInvertedExtent(t *testing.T) {
	b, err := Identity().OutBound(orb.Bound{Min: orb.Point{10, 5}, Max: orb.Point{-10, 20}})
	if err != nil {
		t.Fatalf("out bound: %v", err)
	}
	if b.Min[0] != -180 || b.Max[0] != 180 {
		t.Fatalf("expected longitude fallback, got %+v", b)
	}
	if b.Min[1] != 5 || b.Max[1] != 20 {
		t.Fatalf("latitude must be kept, got %+v", b)
	}
}

func TestIntersect(t *testing.T) {
	a := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	b := orb.Bound{Min: orb.Point{5, -5}, Max: orb.Point{15, 5}}

	got, ok := Intersect(Unbounded, a)
	if !ok || got != a {
		t.Fatalf("unbounded intersect: %+v %t", got, ok)
	}
	got, ok = Intersect(a, b)
	if !ok {
		t.Fatal("expected overlap")
	}
	want := orb.Bound{Min: orb.Point{5, 0}, Max: orb.Point{10, 5}}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	_, ok = Intersect(a, orb.Bound{Min: orb.Point{20, 20}, Max: orb.Point{30, 30}})
	if ok {
		t.Fatal("expected empty intersection")
	}
}

func TestProjectedRoundTrip(t *testing.T) {
	utm := "+proj=utm +zone=33 +ellps=WGS84 +datum=WGS84 +units=m +no_defs"
	tr, err := New(utm, "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs")
	if err != nil {
		t.Fatalf("new transform: %v", err)
	}
	if tr.IsIdentity() {
		t.Fatal("expected projected transform")
	}
	x, y, err := tr.In(15, 45)
	if err != nil {
		t.Fatalf("in: %v", err)
	}
	lon, lat, err := tr.Out(x, y)
	if err != nil {
		t.Fatalf("out: %v", err)
	}
	if math.Abs(lon-15) > 1e-5 || math.Abs(lat-45) > 1e-5 {
		t.Fatalf("round trip drifted: (%g, %g)", lon, lat)
	}
}
