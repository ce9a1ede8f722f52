package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Header describes the geometry and encoding of a raster. The geotransform
// follows the usual north-up convention:
//
//	x = gt[0] + col*gt[1]
//	y = gt[3] + row*gt[5]
type Header struct {
	XDim, YDim int
	XMin, YMin float64
	XMax, YMax float64
	XCel, YCel float64

	GT [6]float64

	NoData float64
	Bands  int
	// Grid is kept for round trips only. CellOf and CellCenter treat every
	// cell as an area whatever its value.
	Grid        bool
	Categorical bool
	Projection  string

	HasMinMax bool
	Min, Max  float64
}

// NewHeader builds a header for a grid of xdim by ydim cells covering the
// given extent.
func NewHeader(xdim, ydim int, xmin, ymin, xmax, ymax, noData float64, bands int, grid bool) (Header, error) {
	if xdim <= 0 || ydim <= 0 {
		return Header{}, fmt.Errorf("invalid raster dimensions: %dx%d", xdim, ydim)
	}
	if xmax <= xmin || ymax <= ymin {
		return Header{}, fmt.Errorf("invalid raster extent: (%g, %g, %g, %g)", xmin, ymin, xmax, ymax)
	}
	if bands <= 0 {
		bands = 1
	}
	h := Header{
		XDim:   xdim,
		YDim:   ydim,
		XMin:   xmin,
		YMin:   ymin,
		XMax:   xmax,
		YMax:   ymax,
		NoData: noData,
		Bands:  bands,
		Grid:   grid,
	}
	h.CalculateCell()
	return h, nil
}

// CalculateCell derives cell size and geotransform from dims and extent.
func (h *Header) CalculateCell() {
	h.XCel = (h.XMax - h.XMin) / float64(h.XDim)
	h.YCel = (h.YMax - h.YMin) / float64(h.YDim)
	h.GT = [6]float64{h.XMin, h.XCel, 0, h.YMax, 0, -h.YCel}
}

func (h Header) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{h.XMin, h.YMin}, Max: orb.Point{h.XMax, h.YMax}}
}

func (h Header) Cells() int {
	return h.XDim * h.YDim
}

// CellCenter returns the native coordinates of the centre of a cell.
func (h Header) CellCenter(col, row int) (float64, float64) {
	return h.GT[1]*(float64(col)+0.5) + h.GT[0], h.GT[5]*(float64(row)+0.5) + h.GT[3]
}

// CellOf returns the cell holding a native coordinate. Column and row may be
// outside the grid; use InRange to check.
func (h Header) CellOf(x, y float64) (int, int) {
	col := int(math.Floor((x - h.GT[0]) / h.GT[1]))
	row := int(math.Floor((y - h.GT[3]) / h.GT[5]))
	return col, row
}

func (h Header) InRange(col, row int) bool {
	return col >= 0 && col < h.XDim && row >= 0 && row < h.YDim
}

func (h *Header) SetMinMax(lo, hi float64) {
	h.Min = lo
	h.Max = hi
	h.HasMinMax = true
}
