// Package garp implements the Genetic Algorithm for Rule-set Production:
// interval-coded rules over normalized environmental space and the
// generational loop that evolves them.
package garp

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/sample"
)

// Kind tags the rule variant. The byte values are the ones written to
// serialized rule sets.
type Kind byte

const (
	KindRange        Kind = 'd'
	KindNegatedRange Kind = '!'
	KindLogit        Kind = 'r'
	KindAtomic       Kind = 'a'
)

func (k Kind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindNegatedRange:
		return "negated"
	case KindLogit:
		return "logit"
	case KindAtomic:
		return "atomic"
	default:
		return fmt.Sprintf("kind(%q)", byte(k))
	}
}

// Origin records which operator last produced the rule genes.
type Origin byte

const (
	OriginColonization Origin = 'o'
	OriginMutation     Origin = 'm'
	OriginCrossover    Origin = 'c'
)

// PerfIndex addresses one slot of the performance vector. Slot positions
// are part of the serialized format.
type PerfIndex int

const (
	PerfUtil PerfIndex = iota
	PerfPrStr
	PerfPrProb
	PerfPrDist
	PerfPostStr
	PerfPostProb
	PerfPostDist
	PerfCov
	PerfSig
	PerfErr
)

const (
	NumPerformance = 10

	// NotCompared marks a performance slot that comparisons must skip.
	NotCompared = -1000.0

	// MinSignificantPoints is the number of covered points below which the
	// significance slot is left at 0.
	MinSignificantPoints = 10

	// CoefficientThreshold separates relevant logit coefficients from noise.
	CoefficientThreshold = 0.05

	geneEps   = 1e-6
	atomicEps = 10e-6
)

var ErrInvalidRuleState = errors.New("invalid rule state")

// Performance is the fixed-size evaluation vector of a rule.
type Performance [NumPerformance]float64

// Rule is one member of the GARP population. Every variant encodes its
// region with two chromosomes holding one gene per environmental dimension.
type Rule interface {
	Kind() Kind
	NumGenes() int
	Chromosome1() sample.Sample
	Chromosome2() sample.Sample
	Prediction() float64
	SetPrediction(p float64)
	Performance(i PerfIndex) float64
	Performances() Performance
	Origin() Origin
	NeedsEvaluation() bool
	ForceEvaluation()

	Applies(s sample.Sample) bool
	Strength(s sample.Sample) int
	Certainty(actual float64) int
	Evaluate(occs []*occurrence.Occurrence) (float64, error)
	Similar(other Rule) bool
	CopyFrom(other Rule) error
	Clone() Rule
	Crossover(other Rule, xpt1, xpt2 int) error
	Mutate(rng *rand.Rand, temperature float64)

	core() *base
}

// Error is the absolute distance between two predictions.
func Error(predicted, actual float64) float64 {
	return math.Abs(predicted - actual)
}

func equalEps(a, b float64) bool {
	return math.Abs(a-b) < geneEps
}

func dontCare(c1, c2 float64) bool {
	return equalEps(c1, -1) && equalEps(c2, 1)
}

func between(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// base carries the state and behaviour shared by every variant.
type base struct {
	chrom1     sample.Sample
	chrom2     sample.Sample
	prediction float64
	perf       Performance
	needsEval  bool
	origin     Origin
}

func newBase(numGenes int) base {
	return base{
		chrom1:    sample.Filled(numGenes, -1),
		chrom2:    sample.Filled(numGenes, 1),
		needsEval: true,
		origin:    OriginColonization,
	}
}

func newBaseFrom(prediction float64, c1, c2 sample.Sample, perf []float64) (base, error) {
	if len(c1) != len(c2) {
		return base{}, fmt.Errorf("%w: chromosome lengths %d and %d", ErrInvalidRuleState, len(c1), len(c2))
	}
	if len(perf) > NumPerformance {
		return base{}, fmt.Errorf("%w: %d performance values", ErrInvalidRuleState, len(perf))
	}
	b := base{
		chrom1:     c1.Clone(),
		chrom2:     c2.Clone(),
		prediction: prediction,
		needsEval:  true,
		origin:     OriginColonization,
	}
	copy(b.perf[:], perf)
	return b, nil
}

func (b *base) core() *base { return b }

func (b *base) NumGenes() int              { return len(b.chrom1) }
func (b *base) Chromosome1() sample.Sample { return b.chrom1 }
func (b *base) Chromosome2() sample.Sample { return b.chrom2 }
func (b *base) Prediction() float64        { return b.prediction }
func (b *base) SetPrediction(p float64)    { b.prediction = p }
func (b *base) Origin() Origin             { return b.origin }
func (b *base) NeedsEvaluation() bool      { return b.needsEval }
func (b *base) ForceEvaluation()           { b.needsEval = true }
func (b *base) Performances() Performance  { return b.perf }

func (b *base) Performance(i PerfIndex) float64 {
	if i < 0 || int(i) >= NumPerformance {
		return 0
	}
	return b.perf[i]
}

// Certainty is 1 only when actual is exactly the rule prediction.
func (b *base) Certainty(actual float64) int {
	if b.prediction == actual {
		return 1
	}
	return 0
}

func (b *base) clone() base {
	c := *b
	c.chrom1 = b.chrom1.Clone()
	c.chrom2 = b.chrom2.Clone()
	return c
}

// rangeStrength is 1 when no used gene excludes its value.
func (b *base) rangeStrength(s sample.Sample) int {
	if len(s) != len(b.chrom1) {
		return 0
	}
	for i := range b.chrom1 {
		if dontCare(b.chrom1[i], b.chrom2[i]) {
			continue
		}
		if s[i] < b.chrom1[i] || s[i] > b.chrom2[i] {
			return 0
		}
	}
	return 1
}

// similarPattern compares which genes are in use.
func (b *base) similarPattern(kind Kind, other Rule) bool {
	if other == nil || other.Kind() != kind {
		return false
	}
	o := other.core()
	if b.prediction != o.prediction || len(b.chrom1) != len(o.chrom1) {
		return false
	}
	for i := range b.chrom1 {
		if dontCare(b.chrom1[i], b.chrom2[i]) != dontCare(o.chrom1[i], o.chrom2[i]) {
			return false
		}
	}
	return true
}

func (b *base) copyFrom(kind Kind, other Rule) error {
	if other == nil || other.Kind() != kind {
		return fmt.Errorf("%w: cannot copy %v into %v", ErrInvalidRuleState, kindOf(other), kind)
	}
	o := other.core()
	if len(o.chrom1) != len(b.chrom1) {
		return fmt.Errorf("%w: %d genes, want %d", ErrInvalidRuleState, len(o.chrom1), len(b.chrom1))
	}
	copy(b.chrom1, o.chrom1)
	copy(b.chrom2, o.chrom2)
	b.perf = o.perf
	b.needsEval = o.needsEval
	b.prediction = o.prediction
	b.origin = o.origin
	return nil
}

func kindOf(r Rule) any {
	if r == nil {
		return "nil"
	}
	return r.Kind()
}

// crossover swaps the genes in [min(xpt1, xpt2), max(xpt1, xpt2)) between
// both rules.
func (b *base) crossover(other Rule, xpt1, xpt2 int) error {
	if other == nil {
		return fmt.Errorf("%w: nil crossover partner", ErrInvalidRuleState)
	}
	o := other.core()
	if len(o.chrom1) != len(b.chrom1) {
		return fmt.Errorf("%w: crossover of %d and %d genes", ErrInvalidRuleState, len(b.chrom1), len(o.chrom1))
	}
	if xpt1 > xpt2 {
		xpt1, xpt2 = xpt2, xpt1
	}
	if xpt1 < 0 || xpt2 > len(b.chrom1) {
		return fmt.Errorf("%w: crossover points %d..%d outside %d genes", ErrInvalidRuleState, xpt1, xpt2, len(b.chrom1))
	}
	diff := 0
	for i := xpt1; i < xpt2; i++ {
		b.chrom1[i], o.chrom1[i] = o.chrom1[i], b.chrom1[i]
		b.chrom2[i], o.chrom2[i] = o.chrom2[i], b.chrom2[i]
		if b.chrom1[i] != o.chrom1[i] {
			diff++
		}
		if b.chrom2[i] != o.chrom2[i] {
			diff++
		}
	}
	if diff > 0 {
		b.origin = OriginCrossover
		b.needsEval = true
		o.origin = OriginCrossover
		o.needsEval = true
	}
	return nil
}

// Mutate moves both bounds of one random gene by up to temperature.
func (b *base) Mutate(rng *rand.Rand, temperature float64) {
	if len(b.chrom1) == 0 {
		return
	}
	j := rng.Intn(len(b.chrom1))
	b.chrom1[j] -= uniform(rng, -temperature, temperature)
	b.chrom2[j] += uniform(rng, -temperature, temperature)
	b.chrom1[j], b.chrom2[j] = adjustRange(b.chrom1[j], b.chrom2[j])
	b.needsEval = true
	b.origin = OriginMutation
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// adjustRange clamps both bounds to [-1, 1] and orders them.
func adjustRange(lo, hi float64) (float64, float64) {
	lo = math.Max(-1, math.Min(1, lo))
	hi = math.Max(-1, math.Min(1, hi))
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// evaluate fills the performance vector from the strength the variant
// assigns to every point. A point is a presence when its abundance is
// positive.
func (b *base) evaluate(strength func(sample.Sample) int, occs []*occurrence.Occurrence) (float64, error) {
	var u Performance
	u[PerfUtil] = 1
	n := len(occs)
	if n == 0 {
		b.perf = u
		b.needsEval = false
		return u[PerfUtil], nil
	}

	var pXs, pYs, pXYs, no int
	var pYcXs, pYcs float64
	for i, o := range occs {
		env := o.Environment()
		if len(env) != len(b.chrom1) {
			return 0, fmt.Errorf("%w: point %d has %d values, rule has %d genes", ErrInvalidRuleState, i, len(env), len(b.chrom1))
		}
		pointValue := 0.0
		if o.Abundance > 0 {
			pointValue = 1
		}
		st := strength(env)
		certainty := b.Certainty(pointValue)
		e := Error(0, pointValue)

		pXs += st
		pYs += certainty
		pYcs += e
		if st > 0 {
			no++
			pXYs += certainty
			pYcXs += Error(e, pointValue)
		}
	}

	fn := float64(n)
	u[PerfPrStr] = float64(pXs) / fn
	u[PerfPrProb] = float64(pYs) / fn
	u[PerfPrDist] = pYcs / fn
	prior := u[PerfPrProb]
	if no > 0 {
		u[PerfPostStr] = float64(no) / fn
		u[PerfPostProb] = float64(pXYs) / float64(no)
		u[PerfPostDist] = pYcXs / float64(no)
		u[PerfCov] = float64(no) / fn
	}
	if no >= MinSignificantPoints && prior > 0 && prior < 1 {
		u[PerfSig] = (float64(pXYs) - prior*float64(no)) / math.Sqrt(float64(no)*prior*(1-prior))
	}
	u[PerfUtil] *= u[PerfPostProb]
	u[PerfUtil] *= u[PerfSig]

	b.perf = u
	b.needsEval = false
	return u[PerfUtil], nil
}

// RangeRule applies when every used gene contains the value.
type RangeRule struct {
	base
}

func NewRangeRule(numGenes int) *RangeRule {
	return &RangeRule{base: newBase(numGenes)}
}

func (r *RangeRule) Kind() Kind { return KindRange }

func (r *RangeRule) Applies(s sample.Sample) bool {
	if len(s) != len(r.chrom1) {
		return false
	}
	for i := range r.chrom1 {
		if dontCare(r.chrom1[i], r.chrom2[i]) {
			continue
		}
		if !between(s[i], r.chrom1[i], r.chrom2[i]) {
			return false
		}
	}
	return true
}

func (r *RangeRule) Strength(s sample.Sample) int { return r.rangeStrength(s) }

func (r *RangeRule) Evaluate(occs []*occurrence.Occurrence) (float64, error) {
	return r.evaluate(r.Strength, occs)
}

func (r *RangeRule) Similar(other Rule) bool          { return r.similarPattern(KindRange, other) }
func (r *RangeRule) CopyFrom(other Rule) error        { return r.copyFrom(KindRange, other) }
func (r *RangeRule) Clone() Rule                      { return &RangeRule{base: r.clone()} }
func (r *RangeRule) Crossover(o Rule, a, b int) error { return r.crossover(o, a, b) }

// InitializeFrom narrows randomly chosen genes to the histogram range of
// the rule prediction.
func (r *RangeRule) InitializeFrom(rng *rand.Rand, h *BioclimHistogram) {
	initializeFromHistogram(&r.base, rng, h)
}

func initializeFromHistogram(b *base, rng *rand.Rand, h *BioclimHistogram) {
	n := len(b.chrom1)
	for i := 0; i < n; i++ {
		j := rng.Intn(n)
		b.chrom1[j], b.chrom2[j] = h.Range(rng, b.prediction, j)
	}
}

// NegatedRangeRule applies when some used gene excludes the value. A rule
// with no used gene never applies.
type NegatedRangeRule struct {
	base
}

func NewNegatedRangeRule(numGenes int) *NegatedRangeRule {
	return &NegatedRangeRule{base: newBase(numGenes)}
}

func (r *NegatedRangeRule) Kind() Kind { return KindNegatedRange }

func (r *NegatedRangeRule) Applies(s sample.Sample) bool {
	if len(s) != len(r.chrom1) {
		return false
	}
	for i := range r.chrom1 {
		if dontCare(r.chrom1[i], r.chrom2[i]) {
			continue
		}
		if !between(s[i], r.chrom1[i], r.chrom2[i]) {
			return true
		}
	}
	return false
}

func (r *NegatedRangeRule) Strength(s sample.Sample) int {
	if len(s) != len(r.chrom1) {
		return 0
	}
	return 1 - r.rangeStrength(s)
}

func (r *NegatedRangeRule) Evaluate(occs []*occurrence.Occurrence) (float64, error) {
	return r.evaluate(r.Strength, occs)
}

func (r *NegatedRangeRule) Similar(other Rule) bool {
	return r.similarPattern(KindNegatedRange, other)
}
func (r *NegatedRangeRule) CopyFrom(other Rule) error {
	return r.copyFrom(KindNegatedRange, other)
}
func (r *NegatedRangeRule) Clone() Rule { return &NegatedRangeRule{base: r.clone()} }
func (r *NegatedRangeRule) Crossover(o Rule, a, b int) error {
	return r.crossover(o, a, b)
}

func (r *NegatedRangeRule) InitializeFrom(rng *rand.Rand, h *BioclimHistogram) {
	initializeFromHistogram(&r.base, rng, h)
}

// AtomicRule applies to a single point: every used gene must match its
// lower bound.
type AtomicRule struct {
	base
}

func NewAtomicRule(numGenes int) *AtomicRule {
	return &AtomicRule{base: newBase(numGenes)}
}

func (r *AtomicRule) Kind() Kind { return KindAtomic }

func (r *AtomicRule) Applies(s sample.Sample) bool {
	if len(s) != len(r.chrom1) {
		return false
	}
	for i := range r.chrom1 {
		if dontCare(r.chrom1[i], r.chrom2[i]) {
			continue
		}
		if math.Abs(s[i]-r.chrom1[i]) >= atomicEps {
			return false
		}
	}
	return true
}

func (r *AtomicRule) Strength(s sample.Sample) int {
	if r.Applies(s) {
		return 1
	}
	return 0
}

func (r *AtomicRule) Evaluate(occs []*occurrence.Occurrence) (float64, error) {
	return r.evaluate(r.Strength, occs)
}

func (r *AtomicRule) Similar(other Rule) bool   { return r.similarPattern(KindAtomic, other) }
func (r *AtomicRule) CopyFrom(other Rule) error { return r.copyFrom(KindAtomic, other) }
func (r *AtomicRule) Clone() Rule               { return &AtomicRule{base: r.clone()} }
func (r *AtomicRule) Crossover(o Rule, a, b int) error {
	return r.crossover(o, a, b)
}

// InitializeFrom pins every gene to the point s.
func (r *AtomicRule) InitializeFrom(s sample.Sample) error {
	if len(s) != len(r.chrom1) {
		return fmt.Errorf("%w: point has %d values, rule has %d genes", ErrInvalidRuleState, len(s), len(r.chrom1))
	}
	copy(r.chrom1, s)
	copy(r.chrom2, s)
	r.needsEval = true
	return nil
}

// LogitRule holds regression coefficients: chromosome 1 is the linear term
// and chromosome 2 the square root of the quadratic one. Genes whose linear
// coefficient is -1 are unused.
type LogitRule struct {
	base
}

func NewLogitRule(numGenes int) *LogitRule {
	return &LogitRule{base: newBase(numGenes)}
}

func (r *LogitRule) Kind() Kind { return KindLogit }

func (r *LogitRule) Applies(s sample.Sample) bool {
	return r.Strength(s) == 1
}

func (r *LogitRule) Strength(s sample.Sample) int {
	if len(s) != len(r.chrom1) {
		return 0
	}
	sum := 0.0
	for i, v := range s {
		if equalEps(r.chrom1[i], -1) {
			continue
		}
		c2 := r.chrom2[i]
		sum += v*r.chrom1[i] + v*c2*c2
	}
	if 1/(1+math.Exp(-sum)) >= 0.5 {
		return 1
	}
	return 0
}

func (r *LogitRule) Evaluate(occs []*occurrence.Occurrence) (float64, error) {
	return r.evaluate(r.Strength, occs)
}

// Similar holds when both rules share the same relevant linear
// coefficients.
func (r *LogitRule) Similar(other Rule) bool {
	if other == nil || other.Kind() != KindLogit {
		return false
	}
	o := other.core()
	if r.prediction != o.prediction || len(r.chrom1) != len(o.chrom1) {
		return false
	}
	for k := range r.chrom1 {
		a, b := math.Abs(r.chrom1[k]), math.Abs(o.chrom1[k])
		if (a < CoefficientThreshold && b > CoefficientThreshold) || (a > CoefficientThreshold && b < CoefficientThreshold) {
			return false
		}
	}
	return true
}

func (r *LogitRule) CopyFrom(other Rule) error { return r.copyFrom(KindLogit, other) }
func (r *LogitRule) Clone() Rule               { return &LogitRule{base: r.clone()} }
func (r *LogitRule) Crossover(o Rule, a, b int) error {
	return r.crossover(o, a, b)
}

// InitializeFrom copies the regression coefficients of randomly chosen
// dimensions.
func (r *LogitRule) InitializeFrom(rng *rand.Rand, reg *Regression) {
	n := len(r.chrom1)
	for i := 0; i < n; i++ {
		j := rng.Intn(n)
		r.chrom1[j] = reg.B()[j]
		r.chrom2[j] = reg.C()[j]
	}
}

// NewRule returns a whole-space rule of the given kind.
func NewRule(kind Kind, numGenes int) (Rule, error) {
	if numGenes < 0 {
		return nil, fmt.Errorf("%w: %d genes", ErrInvalidRuleState, numGenes)
	}
	switch kind {
	case KindRange:
		return NewRangeRule(numGenes), nil
	case KindNegatedRange:
		return NewNegatedRangeRule(numGenes), nil
	case KindAtomic:
		return NewAtomicRule(numGenes), nil
	case KindLogit:
		return NewLogitRule(numGenes), nil
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidRuleState, byte(kind))
	}
}

// RuleFromChromosomes rebuilds a rule from its serialized parts.
func RuleFromChromosomes(kind Kind, prediction float64, c1, c2 sample.Sample, perf []float64) (Rule, error) {
	b, err := newBaseFrom(prediction, c1, c2, perf)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindRange:
		return &RangeRule{base: b}, nil
	case KindNegatedRange:
		return &NegatedRangeRule{base: b}, nil
	case KindAtomic:
		return &AtomicRule{base: b}, nil
	case KindLogit:
		return &LogitRule{base: b}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidRuleState, byte(kind))
	}
}
