// Package sampler draws presence, absence and pseudo-absence points from
// occurrence sets and an environment.
package sampler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"nichemodeller/internal/config"
	"nichemodeller/internal/environment"
	"nichemodeller/internal/normalize"
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/sample"
)

const (
	SectionName = "Sampler"

	// MaxAttempts bounds the rejection loops of the constrained
	// pseudo-absence draws.
	MaxAttempts = 5000
)

var (
	ErrNoPresences   = errors.New("no presence points available")
	ErrNoEnvironment = errors.New("sampler has no environment")
	ErrNoPseudoPoint = errors.New("exceeded maximum number of attempts to generate point outside the probability threshold")
)

// Model is the part of a fitted model the constrained draws need.
type Model interface {
	Value(s sample.Sample) float64
}

// Sampler is not safe for concurrent use: every draw takes the caller's
// random source and Normalize mutates the occurrences.
type Sampler struct {
	env        *environment.Environment
	presences  *occurrence.Set
	absences   *occurrence.Set
	normalized bool
	logger     *slog.Logger
}

// New attaches env to every occurrence lacking an environmental sample.
// Points where env has no data are discarded with a warning.
func New(env *environment.Environment, presences, absences *occurrence.Set, logger *slog.Logger) (*Sampler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if presences.Len() == 0 && absences.Len() == 0 {
		return nil, ErrNoPresences
	}
	s := &Sampler{env: env, presences: presences, absences: absences, logger: logger}
	s.attachEnvironment(s.presences, "presence")
	s.attachEnvironment(s.absences, "absence")
	return s, nil
}

func (s *Sampler) attachEnvironment(set *occurrence.Set, kind string) {
	if s.env == nil || set.Len() == 0 {
		return
	}
	for i := 0; i < set.Len(); {
		o := set.At(i)
		if o.HasEnvironment() {
			i++
			continue
		}
		env := s.env.Unnormalized(o.X(), o.Y())
		if len(env) == 0 {
			s.logger.Warn("point has no environment, discarding", "kind", kind, "id", o.ID, "x", o.X(), "y", o.Y())
			set.Remove(i)
			continue
		}
		o.SetEnvironment(env)
		i++
	}
}

func (s *Sampler) Environment() *environment.Environment { return s.env }
func (s *Sampler) Presences() *occurrence.Set            { return s.presences }
func (s *Sampler) Absences() *occurrence.Set             { return s.absences }
func (s *Sampler) IsNormalized() bool                    { return s.normalized }
func (s *Sampler) NumPresence() int                      { return s.presences.Len() }
func (s *Sampler) NumAbsence() int                       { return s.absences.Len() }

// NumIndependent is the number of layers, or the sample dimension of the
// occurrences without an environment.
func (s *Sampler) NumIndependent() int {
	switch {
	case s.env != nil:
		return s.env.NumLayers()
	case s.presences.HasEnvironment():
		return s.presences.Dimension()
	case s.absences.HasEnvironment():
		return s.absences.Dimension()
	}
	return 0
}

func (s *Sampler) NumDependent() int {
	set := s.presences
	if set.Len() == 0 {
		set = s.absences
	}
	if set.Len() == 0 {
		return 0
	}
	return len(set.At(0).Attributes)
}

// IsCategorical reports whether independent variable i is categorical.
// Without an environment every variable is continuous.
func (s *Sampler) IsCategorical(i int) bool {
	if s.env == nil {
		return false
	}
	return s.env.IsCategorical(i)
}

// VarTypes has one slot for the dependent variable, always continuous,
// followed by one per independent variable.
func (s *Sampler) VarTypes() []bool {
	out := make([]bool, 1+s.NumIndependent())
	for i := 1; i < len(out); i++ {
		out[i] = s.IsCategorical(i - 1)
	}
	return out
}

func (s *Sampler) Presence(rng *rand.Rand) (*occurrence.Occurrence, error) {
	o, err := s.presences.Random(rng)
	if err != nil {
		return nil, ErrNoPresences
	}
	return o, nil
}

func (s *Sampler) Absence(rng *rand.Rand) (*occurrence.Occurrence, error) {
	return s.absences.Random(rng)
}

// OneSample returns a presence half of the time. Otherwise it returns a real
// absence when there is one, or a pseudo-absence.
func (s *Sampler) OneSample(rng *rand.Rand) (*occurrence.Occurrence, error) {
	if s.presences.Len() == 0 {
		return nil, ErrNoPresences
	}
	if rng.Float64() < 0.5 {
		return s.Presence(rng)
	}
	return s.absenceSide(rng)
}

func (s *Sampler) absenceSide(rng *rand.Rand) (*occurrence.Occurrence, error) {
	if s.absences.Len() > 0 {
		return s.Absence(rng)
	}
	return s.PseudoAbsence(rng)
}

// Samples draws n points alternating between the absence side (even
// slots) and presences (odd slots).
func (s *Sampler) Samples(rng *rand.Rand, n int) ([]*occurrence.Occurrence, error) {
	if s.presences.Len() == 0 {
		return nil, ErrNoPresences
	}
	out := make([]*occurrence.Occurrence, 0, n)
	for i := 0; i < n; i++ {
		var (
			o   *occurrence.Occurrence
			err error
		)
		if i%2 == 0 {
			o, err = s.absenceSide(rng)
		} else {
			o, err = s.Presence(rng)
		}
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// PseudoAbsence draws a random point of the environment with abundance 0.
func (s *Sampler) PseudoAbsence(rng *rand.Rand) (*occurrence.Occurrence, error) {
	if s.env == nil {
		return nil, ErrNoEnvironment
	}
	x, y, _, err := s.env.Random(rng)
	if err != nil {
		return nil, err
	}
	o := occurrence.New("?", x, y, 0, 0)
	o.Attributes = sample.New(s.NumDependent())
	o.SetEnvironment(s.env.Unnormalized(x, y))
	if n := s.env.Normalizer(); n != nil {
		if err := o.Normalize(normalize.Skipping{Normalizer: n, Categorical: s.env.NumCategoricalLayers()}); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// PseudoAbsenceBelow draws pseudo-absences until model scores one at or
// below threshold.
func (s *Sampler) PseudoAbsenceBelow(rng *rand.Rand, model Model, threshold float64) (*occurrence.Occurrence, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		o, err := s.PseudoAbsence(rng)
		if err != nil {
			return nil, err
		}
		if model == nil || model.Value(o.Environment()) <= threshold {
			return o, nil
		}
	}
	s.logger.Error("pseudo-absence attempts exhausted", "attempts", MaxAttempts, "threshold", threshold)
	return nil, ErrNoPseudoPoint
}

// PseudoAbsenceOutside draws pseudo-absences until one has a value outside
// [min, max] in some dimension.
func (s *Sampler) PseudoAbsenceOutside(rng *rand.Rand, min, max sample.Sample) (*occurrence.Occurrence, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		o, err := s.PseudoAbsence(rng)
		if err != nil {
			return nil, err
		}
		env := o.Environment()
		if len(env) != len(min) || len(env) != len(max) {
			return nil, fmt.Errorf("%w: sample %d min %d max %d", sample.ErrDimensionMismatch, len(env), len(min), len(max))
		}
		for i, v := range env {
			if v < min[i] || v > max[i] {
				return o, nil
			}
		}
	}
	s.logger.Error("pseudo-absence attempts exhausted", "attempts", MaxAttempts)
	return nil, ErrNoPseudoPoint
}

// PseudoOptions constrains PseudoAbsences. Min and Max take precedence over
// Model when both are set.
type PseudoOptions struct {
	Model     Model
	Threshold float64
	Min, Max  sample.Sample
	// GeoUnique rejects points sharing a cell with an existing point.
	GeoUnique bool
	// EnvUnique rejects points sharing an environment with an existing point.
	// It wins over GeoUnique.
	EnvUnique bool
}

// PseudoAbsences generates n distinct pseudo-absences honoring opts.
func (s *Sampler) PseudoAbsences(rng *rand.Rand, n int, opts PseudoOptions) (*occurrence.Set, error) {
	out := occurrence.NewSet(s.label(), s.coordSystem())
	for attempt := 0; out.Len() < n; attempt++ {
		if attempt >= n*MaxAttempts {
			return nil, ErrNoPseudoPoint
		}
		var (
			o   *occurrence.Occurrence
			err error
		)
		switch {
		case opts.Min != nil && opts.Max != nil:
			o, err = s.PseudoAbsenceOutside(rng, opts.Min, opts.Max)
		case opts.Model != nil:
			o, err = s.PseudoAbsenceBelow(rng, opts.Model, opts.Threshold)
		default:
			o, err = s.PseudoAbsence(rng)
		}
		if err != nil {
			return nil, err
		}

		unique := true
		switch {
		case opts.EnvUnique:
			unique = s.envUniqueIn(o, out) && s.envUniqueIn(o, s.presences) && s.envUniqueIn(o, s.absences)
		case opts.GeoUnique:
			unique = s.geoUniqueIn(o, out) && s.geoUniqueIn(o, s.presences) && s.geoUniqueIn(o, s.absences)
		}
		if unique {
			out.Append(o)
		}
	}
	return out, nil
}

func (s *Sampler) label() string {
	if s.presences != nil {
		return s.presences.Label
	}
	return s.absences.Label
}

func (s *Sampler) coordSystem() string {
	if s.presences != nil {
		return s.presences.CoordSystem
	}
	return s.absences.CoordSystem
}

// Split partitions presences and absences independently, so both halves
// keep the class ratio. Every point lands in exactly one half.
func (s *Sampler) Split(rng *rand.Rand, proportion float64) (*Sampler, *Sampler, error) {
	trainP, testP, err := splitSet(rng, s.presences, proportion)
	if err != nil {
		return nil, nil, fmt.Errorf("split presences: %w", err)
	}
	trainA, testA, err := splitSet(rng, s.absences, proportion)
	if err != nil {
		return nil, nil, fmt.Errorf("split absences: %w", err)
	}
	train := &Sampler{env: s.env, presences: trainP, absences: trainA, normalized: s.normalized, logger: s.logger}
	test := &Sampler{env: s.env, presences: testP, absences: testA, normalized: s.normalized, logger: s.logger}
	return train, test, nil
}

func splitSet(rng *rand.Rand, set *occurrence.Set, proportion float64) (*occurrence.Set, *occurrence.Set, error) {
	if set == nil {
		return nil, nil, nil
	}
	return set.Split(rng, proportion)
}

// Normalize installs an already computed normalizer in the environment and
// the occurrences. Later calls are no-ops.
func (s *Sampler) Normalize(n normalize.Normalizer) error {
	if s.normalized {
		return nil
	}
	if s.env == nil {
		return ErrNoEnvironment
	}
	if err := s.env.Normalize(n); err != nil {
		return err
	}
	skip := normalize.Skipping{Normalizer: n, Categorical: s.env.NumCategoricalLayers()}
	if err := s.presences.Normalize(skip); err != nil {
		s.ResetNormalization()
		return fmt.Errorf("presences: %w", err)
	}
	if s.absences != nil {
		if err := s.absences.Normalize(skip); err != nil {
			s.ResetNormalization()
			return fmt.Errorf("absences: %w", err)
		}
	}
	s.normalized = true
	return nil
}

// ResetNormalization restores raw samples everywhere.
func (s *Sampler) ResetNormalization() {
	if s.env != nil {
		s.env.ResetNormalization()
	}
	s.presences.ResetNormalization()
	if s.absences != nil {
		s.absences.ResetNormalization()
	}
	s.normalized = false
}

// MinMax covers every presence and absence.
func (s *Sampler) MinMax() (sample.Sample, sample.Sample, error) {
	all := occurrence.NewSet(s.label(), s.coordSystem())
	all.AppendFrom(s.presences)
	all.AppendFrom(s.absences)
	return all.MinMax()
}

func (s *Sampler) LayerMinMax() (sample.Sample, sample.Sample, bool, error) {
	if s.env == nil {
		return nil, nil, false, nil
	}
	lo, hi, err := s.env.MinMax()
	return lo, hi, true, err
}

func (s *Sampler) SampleMinMax() (sample.Sample, sample.Sample, error) {
	return s.MinMax()
}

func (s *Sampler) RawSamples() []sample.Sample {
	out := make([]sample.Sample, 0, s.NumPresence()+s.NumAbsence())
	for _, o := range s.presences.All() {
		out = append(out, o.UnnormalizedEnvironment())
	}
	for _, o := range s.absences.All() {
		out = append(out, o.UnnormalizedEnvironment())
	}
	return out
}

// Configuration holds the environment and both occurrence sets.
func (s *Sampler) Configuration() *config.Section {
	sec := config.New(SectionName)
	if s.env != nil {
		sec.AddSubsection(s.env.Configuration())
	}
	if s.presences != nil {
		sec.AddSubsection(s.presences.Configuration("Presence"))
	}
	if s.absences != nil {
		sec.AddSubsection(s.absences.Configuration("Absence"))
	}
	return sec
}

// FromConfiguration rebuilds a sampler, reopening its environment layers.
func FromConfiguration(sec *config.Section, logger *slog.Logger) (*Sampler, error) {
	var env *environment.Environment
	if envSec, err := sec.Subsection(environment.SectionName); err == nil {
		if env, err = environment.FromConfiguration(envSec, logger); err != nil {
			return nil, fmt.Errorf("sampler environment: %w", err)
		}
	}
	presSec, err := sec.Subsection("Presence")
	if err != nil {
		return nil, ErrNoPresences
	}
	presences, err := occurrence.SetFromConfiguration(presSec, 1)
	if err != nil {
		return nil, fmt.Errorf("sampler presences: %w", err)
	}
	if presences.Len() == 0 {
		return nil, ErrNoPresences
	}
	var absences *occurrence.Set
	if absSec, err := sec.Subsection("Absence"); err == nil {
		if absences, err = occurrence.SetFromConfiguration(absSec, 0); err != nil {
			return nil, fmt.Errorf("sampler absences: %w", err)
		}
	}
	return New(env, presences, absences, logger)
}
