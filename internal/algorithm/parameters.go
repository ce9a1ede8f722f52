package algorithm

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var ErrInvalidParameter = errors.New("invalid algorithm parameter")

type ParamType string

const (
	Integer ParamType = "Integer"
	Real    ParamType = "Real"
)

// Parameter describes one tunable input of an algorithm.
type Parameter struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Overview string    `json:"overview,omitempty"`
	Default  float64   `json:"default"`
	HasMin   bool      `json:"has_min,omitempty"`
	Min      float64   `json:"min,omitempty"`
	HasMax   bool      `json:"has_max,omitempty"`
	Max      float64   `json:"max,omitempty"`
}

// Metadata identifies an algorithm and its parameters.
type Metadata struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Overview    string      `json:"overview,omitempty"`
	Author      string      `json:"author,omitempty"`
	Categorical bool        `json:"categorical"`
	Absence     bool        `json:"absence"`
	Parameters  []Parameter `json:"parameters"`
}

func (m Metadata) Parameter(id string) (Parameter, bool) {
	for _, p := range m.Parameters {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}

// Values holds resolved parameter values keyed by parameter id.
type Values map[string]float64

func (v Values) Float(id string) float64 { return v[id] }
func (v Values) Int(id string) int       { return int(v[id]) }

// Resolve fills in defaults for the parameters missing from given and checks
// types and bounds.
func Resolve(meta Metadata, given map[string]string) (Values, error) {
	for id := range given {
		if _, ok := meta.Parameter(id); !ok {
			return nil, fmt.Errorf("%w: %s does not take %q", ErrInvalidParameter, meta.ID, id)
		}
	}
	out := make(Values, len(meta.Parameters))
	for _, p := range meta.Parameters {
		raw, ok := given[p.ID]
		if !ok {
			out[p.ID] = p.Default
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, p.ID, raw)
		}
		if err := p.check(v); err != nil {
			return nil, err
		}
		out[p.ID] = v
	}
	return out, nil
}

func (p Parameter) check(v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%w: %s is NaN", ErrInvalidParameter, p.ID)
	}
	if p.Type == Integer && v != math.Trunc(v) {
		return fmt.Errorf("%w: %s=%g is not an integer", ErrInvalidParameter, p.ID, v)
	}
	if p.HasMin && v < p.Min {
		return fmt.Errorf("%w: %s=%g below minimum %g", ErrInvalidParameter, p.ID, v, p.Min)
	}
	if p.HasMax && v > p.Max {
		return fmt.Errorf("%w: %s=%g above maximum %g", ErrInvalidParameter, p.ID, v, p.Max)
	}
	return nil
}

// Strings renders v back to the textual form Resolve accepts.
func (v Values) Strings() map[string]string {
	out := make(map[string]string, len(v))
	for id, f := range v {
		out[id] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return out
}

func (v Values) IDs() []string {
	ids := make([]string, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
