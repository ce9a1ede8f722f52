// Package raster reads and writes georeferenced grids and exposes them as
// coordinate-addressed maps.
package raster

import (
	"errors"

	"nichemodeller/internal/sample"
)

var (
	ErrOutOfRange         = errors.New("coordinate out of raster range")
	ErrReadOnly           = errors.New("raster is read only")
	ErrUnsupportedFormat  = errors.New("unsupported raster format")
	ErrFieldNotSet        = errors.New("map format field not set")
	ErrNoValidCells       = errors.New("raster has no valid cells")
	ErrBandMismatch       = errors.New("raster band count mismatch")
	ErrRasterNotFound     = errors.New("raster not found")
	ErrInvalidRasterInput = errors.New("invalid raster input")
)

// Raster is a grid of values addressed by native coordinates.
type Raster interface {
	Header() Header
	// Get reads every band at (x, y). The sample always has one entry per
	// band; cells outside the grid or holding no-data return the no-data
	// value and false.
	Get(x, y float64) (sample.Sample, bool)
	Put(x, y, value float64) error
	PutNoData(x, y float64) error
	// MinMax scans band 0 once, skipping no-data, and caches the result.
	MinMax() (float64, float64, error)
	SetMinMax(lo, hi float64)
	IsCategorical() bool
	// Finish flushes pending writes.
	Finish() error
	// Delete removes the underlying storage.
	Delete() error
}
