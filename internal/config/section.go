// Package config holds the name/value tree used to serialize fitted models,
// normalizers and evaluation statistics.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nichemodeller/internal/sample"
)

var (
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrSectionNotFound   = errors.New("section not found")
	ErrInvalidValue      = errors.New("invalid attribute value")
)

type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Section is a named node with ordered attributes and child sections.
type Section struct {
	Name        string      `json:"name"`
	Attributes  []Attribute `json:"attributes,omitempty"`
	Subsections []*Section  `json:"subsections,omitempty"`
}

func New(name string) *Section {
	return &Section{Name: name}
}

// AddNameValue appends an attribute, formatting numbers and samples the
// same way the typed getters parse them.
func (s *Section) AddNameValue(name string, value any) {
	s.Attributes = append(s.Attributes, Attribute{Name: name, Value: formatValue(value)})
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case sample.Sample:
		return v.String()
	case []float64:
		return sample.Sample(v).String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (s *Section) AddSubsection(child *Section) {
	s.Subsections = append(s.Subsections, child)
}

// Subsection returns the first child named name.
func (s *Section) Subsection(name string) (*Section, error) {
	for _, child := range s.Subsections {
		if child.Name == name {
			return child, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrSectionNotFound, s.Name, name)
}

// All returns every child named name, in insertion order.
func (s *Section) All(name string) []*Section {
	var out []*Section
	for _, child := range s.Subsections {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

func (s *Section) Has(name string) bool {
	_, err := s.Attribute(name)
	return err == nil
}

func (s *Section) Attribute(name string) (string, error) {
	for _, attr := range s.Attributes {
		if attr.Name == name {
			return attr.Value, nil
		}
	}
	return "", fmt.Errorf("%w: %s.%s", ErrAttributeNotFound, s.Name, name)
}

func (s *Section) Int(name string) (int, error) {
	raw, err := s.Attribute(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s.%s=%q", ErrInvalidValue, s.Name, name, raw)
	}
	return v, nil
}

func (s *Section) Float(name string) (float64, error) {
	raw, err := s.Attribute(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s.%s=%q", ErrInvalidValue, s.Name, name, raw)
	}
	return v, nil
}

// Bool accepts 0/1 as well as the strconv spellings.
func (s *Section) Bool(name string) (bool, error) {
	raw, err := s.Attribute(name)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%w: %s.%s=%q", ErrInvalidValue, s.Name, name, raw)
	}
	return v, nil
}

func (s *Section) Sample(name string) (sample.Sample, error) {
	raw, err := s.Attribute(name)
	if err != nil {
		return nil, err
	}
	v, err := sample.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, s.Name, name, err)
	}
	return v, nil
}

func (s *Section) IntOr(name string, def int) (int, error) {
	if !s.Has(name) {
		return def, nil
	}
	return s.Int(name)
}

func (s *Section) FloatOr(name string, def float64) (float64, error) {
	if !s.Has(name) {
		return def, nil
	}
	return s.Float(name)
}

func (s *Section) BoolOr(name string, def bool) (bool, error) {
	if !s.Has(name) {
		return def, nil
	}
	return s.Bool(name)
}

func Encode(s *Section) ([]byte, error) {
	return json.Marshal(s)
}

func Decode(data []byte) (*Section, error) {
	var s Section
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
