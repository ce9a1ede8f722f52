package raster

import (
	"fmt"
	"math"
	"sync"

	"nichemodeller/internal/sample"
)

// Grid is an in-memory raster. Bands are stored row-major.
type Grid struct {
	mu       sync.RWMutex
	header   Header
	bands    [][]float64
	readOnly bool

	finish func(*Grid) error
	remove func() error
}

// NewGrid allocates a raster filled with the header's no-data value.
func NewGrid(h Header) *Grid {
	if h.Bands <= 0 {
		h.Bands = 1
	}
	bands := make([][]float64, h.Bands)
	for b := range bands {
		cells := make([]float64, h.Cells())
		for i := range cells {
			cells[i] = h.NoData
		}
		bands[b] = cells
	}
	return &Grid{header: h, bands: bands}
}

// NewGridFromValues wraps row-major single band values.
func NewGridFromValues(h Header, values []float64) (*Grid, error) {
	if len(values) != h.Cells() {
		return nil, fmt.Errorf("%w: %d values for %dx%d grid", ErrInvalidRasterInput, len(values), h.XDim, h.YDim)
	}
	h.Bands = 1
	return &Grid{header: h, bands: [][]float64{values}}, nil
}

func (g *Grid) Header() Header {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.header
}

func (g *Grid) IsCategorical() bool {
	return g.header.Categorical
}

func (g *Grid) SetReadOnly(readOnly bool) {
	g.readOnly = readOnly
}

func (g *Grid) Get(x, y float64) (sample.Sample, bool) {
	col, row := g.header.CellOf(x, y)
	return g.Cell(col, row)
}

// Cell reads every band at a column and row.
func (g *Grid) Cell(col, row int) (sample.Sample, bool) {
	out := sample.Filled(g.header.Bands, g.header.NoData)
	if !g.header.InRange(col, row) {
		return out, false
	}
	idx := row*g.header.XDim + col
	ok := true
	for b, band := range g.bands {
		out[b] = band[idx]
		if g.isNoData(band[idx]) {
			ok = false
		}
	}
	return out, ok
}

func (g *Grid) isNoData(v float64) bool {
	return v == g.header.NoData || math.IsNaN(v)
}

func (g *Grid) Put(x, y, value float64) error {
	col, row := g.header.CellOf(x, y)
	return g.SetCell(col, row, value)
}

func (g *Grid) PutNoData(x, y float64) error {
	return g.Put(x, y, g.header.NoData)
}

// SetCell writes value to every band at a column and row.
func (g *Grid) SetCell(col, row int, value float64) error {
	if g.readOnly {
		return ErrReadOnly
	}
	if !g.header.InRange(col, row) {
		return fmt.Errorf("%w: cell (%d, %d)", ErrOutOfRange, col, row)
	}
	idx := row*g.header.XDim + col
	for _, band := range g.bands {
		band[idx] = value
	}
	return nil
}

// Row returns band 0 of a row. The slice aliases the grid storage.
func (g *Grid) Row(row int) []float64 {
	start := row * g.header.XDim
	return g.bands[0][start : start+g.header.XDim]
}

func (g *Grid) MinMax() (float64, float64, error) {
	g.mu.RLock()
	if g.header.HasMinMax {
		lo, hi := g.header.Min, g.header.Max
		g.mu.RUnlock()
		return lo, hi, nil
	}
	g.mu.RUnlock()

	lo, hi := math.Inf(1), math.Inf(-1)
	found := false
	for _, v := range g.bands[0] {
		if g.isNoData(v) {
			continue
		}
		found = true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if !found {
		return 0, 0, ErrNoValidCells
	}
	g.SetMinMax(lo, hi)
	return lo, hi, nil
}

func (g *Grid) SetMinMax(lo, hi float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.header.SetMinMax(lo, hi)
}

func (g *Grid) Finish() error {
	if g.finish == nil {
		return nil
	}
	return g.finish(g)
}

func (g *Grid) Delete() error {
	if g.remove == nil {
		return nil
	}
	return g.remove()
}
