package raster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const asciiDefaultNoData = -9999

// ReadASCII loads an Arc/Info ASCII grid. A sibling .prj file, when present,
// supplies the projection.
func ReadASCII(path string, categorical bool) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := DecodeASCII(f)
	if err != nil {
		return nil, fmt.Errorf("read ascii grid %s: %w", path, err)
	}
	g.header.Categorical = categorical

	prj, err := os.ReadFile(prjPath(path))
	switch {
	case err == nil:
		g.header.Projection = strings.TrimSpace(string(prj))
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	g.readOnly = true
	return g, nil
}

// DecodeASCII parses an ASCII grid stream into a single band raster.
func DecodeASCII(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	var (
		ncols, nrows        int
		xll, yll            float64
		dx, dy              float64
		xCenter, yCenter    bool
		noData              = float64(asciiDefaultNoData)
		first               string
		haveX, haveY, haveC bool
	)
	for sc.Scan() {
		key := sc.Text()
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: missing value for %s", ErrInvalidRasterInput, key)
		}
		raw := sc.Text()
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidRasterInput, key, raw)
		}
		switch strings.ToLower(key) {
		case "ncols":
			ncols = int(v)
		case "nrows":
			nrows = int(v)
		case "xllcorner":
			xll, haveX = v, true
		case "xllcenter":
			xll, haveX, xCenter = v, true, true
		case "yllcorner":
			yll, haveY = v, true
		case "yllcenter":
			yll, haveY, yCenter = v, true, true
		case "cellsize":
			dx, dy, haveC = v, v, true
		case "dx":
			dx, haveC = v, true
		case "dy":
			dy = v
		case "nodata_value":
			noData = v
		default:
			return nil, fmt.Errorf("%w: unknown header key %s", ErrInvalidRasterInput, key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if ncols <= 0 || nrows <= 0 || !haveX || !haveY || !haveC {
		return nil, fmt.Errorf("%w: incomplete header", ErrInvalidRasterInput)
	}
	if dy == 0 {
		dy = dx
	}
	if xCenter {
		xll -= dx / 2
	}
	if yCenter {
		yll -= dy / 2
	}

	h, err := NewHeader(ncols, nrows, xll, yll, xll+float64(ncols)*dx, yll+float64(nrows)*dy, noData, 1, true)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, h.Cells())
	if first != "" {
		v, _ := strconv.ParseFloat(first, 64)
		values = append(values, v)
	}
	for len(values) < h.Cells() && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %q", ErrInvalidRasterInput, len(values), sc.Text())
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewGridFromValues(h, values)
}

// EncodeASCII writes band 0 of g as an ASCII grid.
func EncodeASCII(w io.Writer, g *Grid) error {
	h := g.Header()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\n", h.XDim)
	fmt.Fprintf(bw, "nrows %d\n", h.YDim)
	fmt.Fprintf(bw, "xllcorner %s\n", formatCell(h.XMin))
	fmt.Fprintf(bw, "yllcorner %s\n", formatCell(h.YMin))
	if h.XCel == h.YCel {
		fmt.Fprintf(bw, "cellsize %s\n", formatCell(h.XCel))
	} else {
		fmt.Fprintf(bw, "dx %s\n", formatCell(h.XCel))
		fmt.Fprintf(bw, "dy %s\n", formatCell(h.YCel))
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", formatCell(h.NoData))

	for row := 0; row < h.YDim; row++ {
		for col, v := range g.Row(row) {
			if col > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(formatCell(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// CreateASCII returns a writable grid that is saved to path on Finish.
func CreateASCII(path string, h Header) *Grid {
	h.Bands = 1
	g := NewGrid(h)
	g.finish = func(g *Grid) error {
		return writeASCIIFile(path, g)
	}
	g.remove = func() error {
		for _, p := range []string{path, prjPath(path)} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		return nil
	}
	return g
}

func writeASCIIFile(path string, g *Grid) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeASCII(f, g); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if proj := g.Header().Projection; proj != "" {
		return os.WriteFile(prjPath(path), []byte(proj+"\n"), 0o644)
	}
	return nil
}

func prjPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}

func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
