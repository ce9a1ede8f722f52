package raster

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nichemodeller/internal/geo"
)

func mustHeader(t *testing.T, xdim, ydim int, xmin, ymin, xmax, ymax, noData float64) Header {
	t.Helper()
	h, err := NewHeader(xdim, ydim, xmin, ymin, xmax, ymax, noData, 1, true)
	if err != nil {
		t.Fatalf("new header: %v", err)
	}
	return h
}

func TestNewHeaderGeotransform(t *testing.T) {
	h := mustHeader(t, 4, 2, -10, 0, 10, 5, -9999)
	want := [6]float64{-10, 5, 0, 5, 0, -2.5}
	if h.GT != want {
		t.Fatalf("unexpected geotransform: %v", h.GT)
	}
	x, y := h.CellCenter(0, 0)
	if x != -7.5 || y != 3.75 {
		t.Fatalf("unexpected cell centre: (%g, %g)", x, y)
	}
	col, row := h.CellOf(9.9, 0.1)
	if col != 3 || row != 1 {
		t.Fatalf("unexpected cell: (%d, %d)", col, row)
	}

	if _, err := NewHeader(0, 2, 0, 0, 1, 1, 0, 1, true); err == nil {
		t.Fatal("expected invalid dimension error")
	}
	if _, err := NewHeader(2, 2, 1, 0, 1, 1, 0, 1, true); err == nil {
		t.Fatal("expected invalid extent error")
	}
}

func TestGridHalfOpenExtent(t *testing.T) {
	g := NewGrid(mustHeader(t, 4, 4, 0, 0, 4, 4, -9999))
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			if err := g.SetCell(col, row, float64(row*4+col)); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}

	cases := []struct {
		name string
		x, y float64
		ok   bool
	}{
		{name: "upper-left corner", x: 0, y: 4, ok: true},
		{name: "interior", x: 2.5, y: 1.5, ok: true},
		{name: "upper-right corner", x: 4, y: 4, ok: false},
		{name: "right edge", x: 4, y: 2, ok: false},
		{name: "bottom edge", x: 2, y: 0, ok: false},
		{name: "west of extent", x: -0.1, y: 2, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := g.Get(tc.x, tc.y)
			if ok != tc.ok {
				t.Fatalf("Get(%g, %g) ok=%t want %t", tc.x, tc.y, ok, tc.ok)
			}
			if !ok && v[0] != -9999 {
				t.Fatalf("expected no-data value, got %v", v)
			}
		})
	}

	err := g.Put(4, 4, 1)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range error, got %v", err)
	}
}

func TestGridNoDataAndMinMax(t *testing.T) {
	h := mustHeader(t, 3, 1, 0, 0, 3, 1, -1)
	g, err := NewGridFromValues(h, []float64{-1, 4, 2})
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	if _, ok := g.Get(0.5, 0.5); ok {
		t.Fatal("expected no-data cell to report false")
	}
	lo, hi, err := g.MinMax()
	if err != nil {
		t.Fatalf("min max: %v", err)
	}
	if lo != 2 || hi != 4 {
		t.Fatalf("unexpected min/max: %g %g", lo, hi)
	}
	if !g.Header().HasMinMax {
		t.Fatal("expected min/max to be cached")
	}

	g.SetReadOnly(true)
	if err := g.Put(1.5, 0.5, 9); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected read only error, got %v", err)
	}

	empty := NewGrid(h)
	if _, _, err := empty.MinMax(); !errors.Is(err, ErrNoValidCells) {
		t.Fatalf("expected no valid cells error, got %v", err)
	}
}

func TestASCIIRoundTrip(t *testing.T) {
	const src = `ncols 3
nrows 2
xllcenter 0.5
yllcenter 10.5
cellsize 1
NODATA_value -9999
1 2 -9999
4 5 6
`
	g, err := DecodeASCII(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	h := g.Header()
	if h.XMin != 0 || h.YMin != 10 || h.XMax != 3 || h.YMax != 12 {
		t.Fatalf("unexpected extent: %+v", h)
	}
	if v, ok := g.Cell(1, 0); !ok || v[0] != 2 {
		t.Fatalf("unexpected cell (1,0): %v %t", v, ok)
	}
	if _, ok := g.Cell(2, 0); ok {
		t.Fatal("expected no-data cell")
	}

	var out strings.Builder
	if err := EncodeASCII(&out, g); err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := DecodeASCII(strings.NewReader(out.String()))
	if err != nil {
		t.Fatalf("decode again: %v", err)
	}
	if again.Header().XMin != 0 || again.Row(1)[2] != 6 {
		t.Fatalf("round trip changed grid: %s", out.String())
	}

	if _, err := DecodeASCII(strings.NewReader("ncols 2\nnrows 2\n1 2 3 4\n")); err == nil {
		t.Fatal("expected incomplete header error")
	}
	if _, err := DecodeASCII(strings.NewReader("ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n")); err == nil {
		t.Fatal("expected short data error")
	}
}

func TestCreateASCIIWritesProjectionSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "map.asc")
	h := mustHeader(t, 2, 2, 0, 0, 2, 2, -9999)
	h.Projection = geo.DefaultCS

	r, err := Create(path, h)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Put(0.5, 1.5, 0.25); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := r.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	loaded, err := Open(path, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if loaded.Header().Projection != geo.DefaultCS {
		t.Fatalf("unexpected projection: %q", loaded.Header().Projection)
	}
	if v, ok := loaded.Get(0.5, 1.5); !ok || v[0] != 0.25 {
		t.Fatalf("unexpected value: %v %t", v, ok)
	}

	if err := r.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removal, got %v", err)
	}
}

func TestOpenUnsupported(t *testing.T) {
	if _, err := Open("layer.tif", false); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if _, err := Open("mem:missing-layer", false); !errors.Is(err, ErrRasterNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenMemoryCategoricalIsPerHandle(t *testing.T) {
	g := NewGrid(mustHeader(t, 2, 2, 0, 0, 2, 2, -9999))
	id := MemoryPrefix + t.Name()
	RegisterMemory(id, g)

	cat, err := Open(id, true)
	if err != nil {
		t.Fatalf("open categorical: %v", err)
	}
	if !cat.IsCategorical() || !cat.Header().Categorical {
		t.Fatal("expected a categorical handle")
	}
	plain, err := Open(id, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain.IsCategorical() || plain.Header().Categorical || g.IsCategorical() {
		t.Fatal("a categorical handle must not change the registered grid")
	}
}

func TestGridFlagDoesNotShiftCells(t *testing.T) {
	area, err := NewHeader(4, 2, -10, 0, 10, 5, -9999, 1, false)
	if err != nil {
		t.Fatalf("new header: %v", err)
	}
	point := mustHeader(t, 4, 2, -10, 0, 10, 5, -9999)
	for _, p := range [][2]float64{{-10, 5}, {-7.5, 3.75}, {9.9, 0.1}} {
		ac, ar := area.CellOf(p[0], p[1])
		pc, pr := point.CellOf(p[0], p[1])
		if ac != pc || ar != pr {
			t.Fatalf("cell of (%g, %g): %d,%d without grid, %d,%d with grid", p[0], p[1], ac, ar, pc, pr)
		}
	}
	ax, ay := area.CellCenter(1, 1)
	px, py := point.CellCenter(1, 1)
	if ax != px || ay != py {
		t.Fatalf("cell centre differs: (%g, %g) vs (%g, %g)", ax, ay, px, py)
	}
}
