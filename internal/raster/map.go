package raster

import (
	"fmt"

	"github.com/paulmach/orb"

	"nichemodeller/internal/geo"
	"nichemodeller/internal/sample"
)

// Map addresses a Raster by common (WGS84) coordinates. It owns its raster.
type Map struct {
	raster    Raster
	transform *geo.Transform
	scale     float64
}

// NewMap wraps r, building the transform from the raster's projection.
func NewMap(r Raster) (*Map, error) {
	tr, err := geo.New(r.Header().Projection, geo.DefaultCS)
	if err != nil {
		return nil, err
	}
	return &Map{raster: r, transform: tr, scale: 1}, nil
}

// OpenMap opens source read-only.
func OpenMap(source string, categorical bool) (*Map, error) {
	r, err := Open(source, categorical)
	if err != nil {
		return nil, err
	}
	return NewMap(r)
}

// CreateMap creates a writable map at dest. Values passed to Put are
// multiplied by the format's scale factor.
func CreateMap(dest string, format MapFormat) (*Map, error) {
	h, err := format.Header()
	if err != nil {
		return nil, err
	}
	r, err := Create(dest, h)
	if err != nil {
		return nil, err
	}
	m, err := NewMap(r)
	if err != nil {
		return nil, err
	}
	m.scale = format.ScaleFactor()
	return m, nil
}

func (m *Map) Raster() Raster {
	return m.raster
}

func (m *Map) Header() Header {
	return m.raster.Header()
}

func (m *Map) Transform() *geo.Transform {
	return m.transform
}

func (m *Map) IsCategorical() bool {
	return m.raster.IsCategorical()
}

func (m *Map) NoData() float64 {
	return m.raster.Header().NoData
}

// Get reads the raster at a common coordinate.
func (m *Map) Get(lon, lat float64) (sample.Sample, bool) {
	x, y, err := m.transform.In(lon, lat)
	if err != nil {
		return sample.Filled(m.raster.Header().Bands, m.NoData()), false
	}
	return m.raster.Get(x, y)
}

func (m *Map) Put(lon, lat, value float64) error {
	x, y, err := m.transform.In(lon, lat)
	if err != nil {
		return err
	}
	return m.raster.Put(x, y, value*m.scale)
}

func (m *Map) PutNoData(lon, lat float64) error {
	x, y, err := m.transform.In(lon, lat)
	if err != nil {
		return err
	}
	return m.raster.PutNoData(x, y)
}

// Extent returns the raster bounds in common coordinates.
func (m *Map) Extent() (orb.Bound, error) {
	return m.transform.OutBound(m.raster.Header().Bound())
}

// RowColumn returns the column and row holding a common coordinate.
func (m *Map) RowColumn(lon, lat float64) (int, int, error) {
	x, y, err := m.transform.In(lon, lat)
	if err != nil {
		return 0, 0, err
	}
	col, row := m.raster.Header().CellOf(x, y)
	return col, row, nil
}

func (m *Map) MinMax() (float64, float64, error) {
	lo, hi, err := m.raster.MinMax()
	if err != nil {
		return 0, 0, fmt.Errorf("map min/max: %w", err)
	}
	return lo, hi, nil
}

func (m *Map) Finish() error {
	return m.raster.Finish()
}

func (m *Map) Delete() error {
	return m.raster.Delete()
}

func (m *Map) Iterator() *MapIterator {
	return &MapIterator{m: m, h: m.raster.Header()}
}
