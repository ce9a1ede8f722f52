package raster

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// MemoryPrefix selects the process-wide in-memory raster registry.
const MemoryPrefix = "mem:"

var memoryRegistry = struct {
	mu sync.RWMutex
	m  map[string]*Grid
}{
	m: make(map[string]*Grid),
}

// RegisterMemory publishes g under mem:<name> so Open and Create can find it.
func RegisterMemory(name string, g *Grid) {
	memoryRegistry.mu.Lock()
	defer memoryRegistry.mu.Unlock()
	memoryRegistry.m[strings.TrimPrefix(name, MemoryPrefix)] = g
}

// LookupMemory returns the grid registered under name.
func LookupMemory(name string) (*Grid, bool) {
	memoryRegistry.mu.RLock()
	defer memoryRegistry.mu.RUnlock()
	g, ok := memoryRegistry.m[strings.TrimPrefix(name, MemoryPrefix)]
	return g, ok
}

func unregisterMemory(name string) {
	memoryRegistry.mu.Lock()
	defer memoryRegistry.mu.Unlock()
	delete(memoryRegistry.m, name)
}

// Open returns a read-only raster for source, choosing the driver from the
// mem: prefix or the file extension.
func Open(source string, categorical bool) (Raster, error) {
	if strings.HasPrefix(source, MemoryPrefix) {
		g, ok := LookupMemory(source)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRasterNotFound, source)
		}
		if categorical && !g.IsCategorical() {
			return categoricalView{g}, nil
		}
		return g, nil
	}
	switch strings.ToLower(filepath.Ext(source)) {
	case ".asc":
		return ReadASCII(source, categorical)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, source)
	}
}

// categoricalView reads a registered grid as categorical without changing
// the grid other handles see.
type categoricalView struct {
	*Grid
}

func (v categoricalView) Header() Header {
	h := v.Grid.Header()
	h.Categorical = true
	return h
}

func (v categoricalView) IsCategorical() bool { return true }

// Create returns a writable raster at dest with geometry h.
func Create(dest string, h Header) (Raster, error) {
	if strings.HasPrefix(dest, MemoryPrefix) {
		name := strings.TrimPrefix(dest, MemoryPrefix)
		g := NewGrid(h)
		g.remove = func() error {
			unregisterMemory(name)
			return nil
		}
		RegisterMemory(name, g)
		return g, nil
	}
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".asc":
		return CreateASCII(dest, h), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, dest)
	}
}
