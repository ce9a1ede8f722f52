package occurrence

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"nichemodeller/internal/sample"
)

var (
	ErrEmptySet           = errors.New("occurrence set is empty")
	ErrInvalidProportion  = errors.New("invalid train proportion")
	ErrMissingEnvironment = errors.New("occurrence has no environment")
)

// Set is an ordered collection of occurrences of one species label.
type Set struct {
	Label       string
	CoordSystem string

	items []*Occurrence
}

func NewSet(label, coordSystem string) *Set {
	return &Set{Label: label, CoordSystem: coordSystem}
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *Set) At(i int) *Occurrence {
	return s.items[i]
}

// All returns the backing slice. Callers must not append to it.
func (s *Set) All() []*Occurrence {
	if s == nil {
		return nil
	}
	return s.items
}

func (s *Set) Append(o ...*Occurrence) {
	s.items = append(s.items, o...)
}

// AppendFrom appends the occurrences of other without copying them.
func (s *Set) AppendFrom(other *Set) {
	if other == nil {
		return
	}
	s.items = append(s.items, other.items...)
}

// Remove deletes the i-th occurrence, keeping the order of the rest.
func (s *Set) Remove(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}

func (s *Set) Random(rng *rand.Rand) (*Occurrence, error) {
	if s.Len() == 0 {
		return nil, ErrEmptySet
	}
	return s.items[rng.Intn(len(s.items))], nil
}

func (s *Set) HasEnvironment() bool {
	return s.Len() > 0 && s.items[0].HasEnvironment()
}

// Dimension is the length of the environmental samples, 0 without one.
func (s *Set) Dimension() int {
	if !s.HasEnvironment() {
		return 0
	}
	return len(s.items[0].Environment())
}

// MinMax returns the elementwise extremes of the environmental samples.
func (s *Set) MinMax() (sample.Sample, sample.Sample, error) {
	if s.Len() == 0 {
		return nil, nil, ErrEmptySet
	}
	var lo, hi sample.Sample
	for i, o := range s.items {
		env := o.Environment()
		if len(env) == 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingEnvironment, o.ID)
		}
		if i == 0 {
			lo, hi = env.Clone(), env.Clone()
			continue
		}
		if err := lo.Min(env); err != nil {
			return nil, nil, err
		}
		if err := hi.Max(env); err != nil {
			return nil, nil, err
		}
	}
	return lo, hi, nil
}

func (s *Set) Normalize(n Normalizer) error {
	for _, o := range s.All() {
		if err := o.Normalize(n); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) ResetNormalization() {
	for _, o := range s.All() {
		o.ResetNormalization()
	}
}

// Clone deep-copies the set.
func (s *Set) Clone() *Set {
	out := NewSet(s.Label, s.CoordSystem)
	out.items = make([]*Occurrence, len(s.items))
	for i, o := range s.items {
		out.items[i] = o.Clone()
	}
	return out
}

// splitTolerance absorbs float noise such as 100*0.29 = 28.999999999999996.
const splitTolerance = 1e-9

// Split copies the occurrences into a train and a test set. The first
// floor(n*proportion) slots of a shuffled assignment go to training, so a
// fractional share of a point always goes to the test set.
func (s *Set) Split(rng *rand.Rand, proportion float64) (*Set, *Set, error) {
	if proportion < 0 || proportion > 1 {
		return nil, nil, fmt.Errorf("%w: %g", ErrInvalidProportion, proportion)
	}
	train := NewSet(s.Label, s.CoordSystem)
	test := NewSet(s.Label, s.CoordSystem)

	n := s.Len()
	k := int(math.Floor(float64(n)*proportion + splitTolerance))
	toTrain := make([]bool, n)
	for i := 0; i < k; i++ {
		toTrain[i] = true
	}
	rng.Shuffle(n, func(i, j int) {
		toTrain[i], toTrain[j] = toTrain[j], toTrain[i]
	})

	for i, o := range s.All() {
		if toTrain[i] {
			train.Append(o.Clone())
		} else {
			test.Append(o.Clone())
		}
	}
	return train, test, nil
}
