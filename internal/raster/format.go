package raster

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Encoding selects how projected values are scaled and which sentinel marks
// missing cells in an output map.
type Encoding int

const (
	FloatingASC Encoding = iota
	ByteASC
	GreyByte
	GreyBMP
	GreyPercent
	FloatingMem
)

var encodingNames = map[Encoding]string{
	FloatingASC: "floating_asc",
	ByteASC:     "byte_asc",
	GreyByte:    "grey_byte",
	GreyBMP:     "grey_bmp",
	GreyPercent: "grey_percent",
	FloatingMem: "floating_mem",
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// ScaleFactor is applied to a [0,1] prediction before it is written.
func (e Encoding) ScaleFactor() float64 {
	switch e {
	case ByteASC, GreyPercent:
		return 100
	case GreyByte:
		return 254
	case GreyBMP:
		return 255
	default:
		return 1
	}
}

func (e Encoding) NoData() float64 {
	switch e {
	case ByteASC:
		return 101
	case GreyByte:
		return 255
	case GreyBMP:
		return 0
	case GreyPercent:
		return 127
	case FloatingMem:
		return -1
	default:
		return asciiDefaultNoData
	}
}

func ParseEncoding(name string) (Encoding, error) {
	for e, n := range encodingNames {
		if strings.EqualFold(n, name) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("%w: encoding %q", ErrUnsupportedFormat, name)
}

const (
	fieldWidth uint8 = 1 << iota
	fieldHeight
	fieldXMin
	fieldYMin
	fieldXMax
	fieldYMax
	fieldNoData
	fieldProjection
)

var fieldNames = []struct {
	flag uint8
	name string
}{
	{fieldWidth, "width"},
	{fieldHeight, "height"},
	{fieldXMin, "xmin"},
	{fieldYMin, "ymin"},
	{fieldXMax, "xmax"},
	{fieldYMax, "ymax"},
	{fieldNoData, "no data value"},
	{fieldProjection, "projection"},
}

// MapFormat describes the grid an output map is written to. Each field
// remembers whether it has been set.
type MapFormat struct {
	encoding Encoding
	set      uint8

	width, height int
	xmin, ymin    float64
	xmax, ymax    float64
	noData        float64
	projection    string
}

// NewMapFormat returns an empty format using enc, with the encoding's no-data
// sentinel already set.
func NewMapFormat(enc Encoding) MapFormat {
	f := MapFormat{}
	f.SetEncoding(enc)
	return f
}

// MapFormatFromHeader sets every field from h.
func MapFormatFromHeader(enc Encoding, h Header) MapFormat {
	f := NewMapFormat(enc)
	f.SetWidth(h.XDim)
	f.SetHeight(h.YDim)
	f.SetXMin(h.XMin)
	f.SetYMin(h.YMin)
	f.SetXMax(h.XMax)
	f.SetYMax(h.YMax)
	f.SetProjection(h.Projection)
	return f
}

func (f *MapFormat) SetEncoding(enc Encoding) {
	f.encoding = enc
	f.noData = enc.NoData()
	f.set |= fieldNoData
}

func (f *MapFormat) SetWidth(v int) {
	f.width = v
	f.set |= fieldWidth
}

func (f *MapFormat) SetHeight(v int) {
	f.height = v
	f.set |= fieldHeight
}

func (f *MapFormat) SetXMin(v float64) {
	f.xmin = v
	f.set |= fieldXMin
}

func (f *MapFormat) SetYMin(v float64) {
	f.ymin = v
	f.set |= fieldYMin
}

func (f *MapFormat) SetXMax(v float64) {
	f.xmax = v
	f.set |= fieldXMax
}

func (f *MapFormat) SetYMax(v float64) {
	f.ymax = v
	f.set |= fieldYMax
}

func (f *MapFormat) SetNoData(v float64) {
	f.noData = v
	f.set |= fieldNoData
}

func (f *MapFormat) SetProjection(cs string) {
	f.projection = cs
	f.set |= fieldProjection
}

func (f MapFormat) Encoding() Encoding {
	return f.encoding
}

func (f MapFormat) isSet(flag uint8) bool {
	return f.set&flag != 0
}

func (f MapFormat) ScaleFactor() float64 {
	return f.encoding.ScaleFactor()
}

func (f MapFormat) fieldError(flag uint8) error {
	for _, fn := range fieldNames {
		if fn.flag == flag {
			return fmt.Errorf("%w: %s", ErrFieldNotSet, fn.name)
		}
	}
	return ErrFieldNotSet
}

func (f MapFormat) Width() (int, error) {
	if !f.isSet(fieldWidth) {
		return 0, f.fieldError(fieldWidth)
	}
	return f.width, nil
}

func (f MapFormat) Height() (int, error) {
	if !f.isSet(fieldHeight) {
		return 0, f.fieldError(fieldHeight)
	}
	return f.height, nil
}

func (f MapFormat) XMin() (float64, error) {
	if !f.isSet(fieldXMin) {
		return 0, f.fieldError(fieldXMin)
	}
	return f.xmin, nil
}

func (f MapFormat) YMin() (float64, error) {
	if !f.isSet(fieldYMin) {
		return 0, f.fieldError(fieldYMin)
	}
	return f.ymin, nil
}

func (f MapFormat) XMax() (float64, error) {
	if !f.isSet(fieldXMax) {
		return 0, f.fieldError(fieldXMax)
	}
	return f.xmax, nil
}

func (f MapFormat) YMax() (float64, error) {
	if !f.isSet(fieldYMax) {
		return 0, f.fieldError(fieldYMax)
	}
	return f.ymax, nil
}

func (f MapFormat) NoData() (float64, error) {
	if !f.isSet(fieldNoData) {
		return 0, f.fieldError(fieldNoData)
	}
	return f.noData, nil
}

func (f MapFormat) Projection() (string, error) {
	if !f.isSet(fieldProjection) {
		return "", f.fieldError(fieldProjection)
	}
	return f.projection, nil
}

// CopyDefaults fills every unset geometry field from the header of ref. The
// no-data value stays with the encoding.
func (f *MapFormat) CopyDefaults(ref *Map, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := ref.Header()
	if !f.isSet(fieldWidth) {
		logger.Debug("copying width", "width", h.XDim)
		f.SetWidth(h.XDim)
	}
	if !f.isSet(fieldHeight) {
		logger.Debug("copying height", "height", h.YDim)
		f.SetHeight(h.YDim)
	}
	if !f.isSet(fieldXMin) {
		f.SetXMin(h.XMin)
	}
	if !f.isSet(fieldYMin) {
		f.SetYMin(h.YMin)
	}
	if !f.isSet(fieldXMax) {
		f.SetXMax(h.XMax)
	}
	if !f.isSet(fieldYMax) {
		f.SetYMax(h.YMax)
	}
	if !f.isSet(fieldProjection) {
		logger.Debug("copying projection")
		f.SetProjection(h.Projection)
	}
}

// Header builds the raster geometry described by f. Every field must be set.
func (f MapFormat) Header() (Header, error) {
	for _, fn := range fieldNames {
		if !f.isSet(fn.flag) {
			return Header{}, f.fieldError(fn.flag)
		}
	}
	h, err := NewHeader(f.width, f.height, f.xmin, f.ymin, f.xmax, f.ymax, f.noData, 1, false)
	if err != nil {
		return Header{}, err
	}
	h.Projection = f.projection
	return h, nil
}
