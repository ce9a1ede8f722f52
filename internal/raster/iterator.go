package raster

// MapIterator walks the cells of a Map row by row. The zero position is the
// upper-left cell; stepping past the last cell of a row moves to the next.
type MapIterator struct {
	m        *Map
	h        Header
	col, row int
}

func (it *MapIterator) Reset() {
	it.col, it.row = 0, 0
}

// Next advances one cell.
func (it *MapIterator) Next() {
	it.col++
	if it.col >= it.h.XDim {
		it.col = 0
		it.row++
	}
}

// Prev steps back one cell.
func (it *MapIterator) Prev() {
	it.col--
	if it.col < 0 {
		it.col = it.h.XDim - 1
		it.row--
	}
}

// Seek moves to the pixel-th cell in row-major order.
func (it *MapIterator) Seek(pixel int) {
	it.col = pixel % it.h.XDim
	it.row = pixel / it.h.XDim
	if pixel < 0 {
		it.col, it.row = -1, -1
	}
}

// Done reports whether the iterator left the grid in either direction.
func (it *MapIterator) Done() bool {
	return it.row < 0 || it.row >= it.h.YDim || it.col < 0 || it.col >= it.h.XDim
}

func (it *MapIterator) Position() (int, int) {
	return it.col, it.row
}

// Pixel returns the row-major index of the current cell.
func (it *MapIterator) Pixel() int {
	return it.row*it.h.XDim + it.col
}

// LonLat returns the centre of the current cell in common coordinates.
func (it *MapIterator) LonLat() (float64, float64, error) {
	x, y := it.h.CellCenter(it.col, it.row)
	return it.m.transform.Out(x, y)
}
