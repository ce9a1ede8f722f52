// Package sample implements the fixed-length numeric vector shared by
// environment lookups, occurrences and rule chromosomes.
package sample

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

var ErrDimensionMismatch = errors.New("sample dimension mismatch")

// Sample is an ordered vector of values, one per environmental layer or
// attribute. The zero value is an empty sample.
type Sample []float64

func New(n int) Sample {
	return make(Sample, n)
}

func Filled(n int, v float64) Sample {
	s := make(Sample, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// FromSlice wraps values without copying.
func FromSlice(values []float64) Sample {
	return Sample(values)
}

func (s Sample) Len() int {
	return len(s)
}

func (s Sample) Empty() bool {
	return len(s) == 0
}

func (s Sample) Clone() Sample {
	if s == nil {
		return nil
	}
	out := make(Sample, len(s))
	copy(out, s)
	return out
}

func (s Sample) check(other Sample) error {
	if len(s) != len(other) {
		return fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(s), len(other))
	}
	return nil
}

// Add adds other to s in place.
func (s Sample) Add(other Sample) error {
	if err := s.check(other); err != nil {
		return err
	}
	floats.Add(s, other)
	return nil
}

func (s Sample) Sub(other Sample) error {
	if err := s.check(other); err != nil {
		return err
	}
	floats.Sub(s, other)
	return nil
}

func (s Sample) Mul(other Sample) error {
	if err := s.check(other); err != nil {
		return err
	}
	floats.Mul(s, other)
	return nil
}

// Div divides s by other in place. Division by zero follows IEEE rules.
func (s Sample) Div(other Sample) error {
	if err := s.check(other); err != nil {
		return err
	}
	floats.Div(s, other)
	return nil
}

func (s Sample) Plus(other Sample) (Sample, error) {
	out := s.Clone()
	if err := out.Add(other); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Sample) Minus(other Sample) (Sample, error) {
	out := s.Clone()
	if err := out.Sub(other); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Sample) Times(other Sample) (Sample, error) {
	out := s.Clone()
	if err := out.Mul(other); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Sample) Over(other Sample) (Sample, error) {
	out := s.Clone()
	if err := out.Div(other); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Sample) AddScalar(v float64) {
	floats.AddConst(v, s)
}

func (s Sample) SubScalar(v float64) {
	floats.AddConst(-v, s)
}

func (s Sample) MulScalar(v float64) {
	floats.Scale(v, s)
}

func (s Sample) DivScalar(v float64) {
	for i := range s {
		s[i] /= v
	}
}

// Min keeps the elementwise minimum of s and other.
func (s Sample) Min(other Sample) error {
	if err := s.check(other); err != nil {
		return err
	}
	for i, v := range other {
		if v < s[i] {
			s[i] = v
		}
	}
	return nil
}

// Max keeps the elementwise maximum of s and other.
func (s Sample) Max(other Sample) error {
	if err := s.check(other); err != nil {
		return err
	}
	for i, v := range other {
		if v > s[i] {
			s[i] = v
		}
	}
	return nil
}

func (s Sample) Sqr() {
	floats.Mul(s, s)
}

// Sqrt takes the square root of every element. Negative elements become NaN.
func (s Sample) Sqrt() {
	for i, v := range s {
		s[i] = math.Sqrt(v)
	}
}

// Norm returns the Euclidean length of s.
func (s Sample) Norm() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Norm(s, 2)
}

func (s Sample) Dot(other Sample) (float64, error) {
	if err := s.check(other); err != nil {
		return 0, err
	}
	return floats.Dot(s, other), nil
}

// Equal reports exact elementwise equality. Samples of different length are
// never equal; two empty samples are.
func (s Sample) Equal(other Sample) bool {
	if len(s) != len(other) {
		return false
	}
	return floats.Equal(s, other)
}

// String renders the values separated by single spaces.
func (s Sample) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// Parse reads a whitespace separated list of numbers.
func Parse(text string) (Sample, error) {
	fields := strings.Fields(text)
	out := make(Sample, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse sample value %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
