package algorithm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrAlgorithmExists   = errors.New("algorithm already registered")
	ErrAlgorithmNotFound = errors.New("algorithm not found")
)

// Factory builds a fresh, uninitialized algorithm instance.
type Factory func(opts Options) Algorithm

type Spec struct {
	Metadata Metadata
	Factory  Factory
}

var registry = struct {
	mu sync.RWMutex
	m  map[string]Spec
}{
	m: make(map[string]Spec),
}

// Register adds an algorithm under its metadata id.
func Register(spec Spec) error {
	if spec.Metadata.ID == "" {
		return errors.New("algorithm id is required")
	}
	if spec.Factory == nil {
		return errors.New("algorithm factory is required")
	}
	for _, p := range spec.Metadata.Parameters {
		if err := p.check(p.Default); err != nil {
			return fmt.Errorf("algorithm %s default: %w", spec.Metadata.ID, err)
		}
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.m[spec.Metadata.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlgorithmExists, spec.Metadata.ID)
	}
	registry.m[spec.Metadata.ID] = spec
	return nil
}

func Lookup(id string) (Spec, error) {
	registry.mu.RLock()
	spec, ok := registry.m[id]
	registry.mu.RUnlock()
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrAlgorithmNotFound, id)
	}
	return spec, nil
}

// New instantiates the registered algorithm id.
func New(id string, opts Options) (Algorithm, error) {
	spec, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	return spec.Factory(opts), nil
}

// List returns the metadata of every registered algorithm sorted by id.
func List() []Metadata {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	out := make([]Metadata, 0, len(registry.m))
	for _, spec := range registry.m {
		out = append(out, spec.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func resetRegistryForTests() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.m = make(map[string]Spec)
}
