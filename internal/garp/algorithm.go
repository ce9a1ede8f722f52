package garp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"nichemodeller/internal/algorithm"
	"nichemodeller/internal/config"
	"nichemodeller/internal/evo"
	"nichemodeller/internal/normalize"
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/sample"
	"nichemodeller/internal/sampler"
)

const (
	ID      = "GARP"
	Version = "3.3"

	ParamMaxGenerations   = "MaxGenerations"
	ParamConvergenceLimit = "ConvergenceLimit"
	ParamPopulationSize   = "PopulationSize"
	ParamResamples        = "Resamples"
	ParamSelection        = "Selection"

	SectionName = "Garp"

	defaultMortality     = 0.9
	defaultGapSize       = 0.1
	defaultCrossoverRate = 0.1
	defaultMutationRate  = 0.6
	defaultSignificance  = 2.70

	defaultPerfIndex = PerfSig

	tournamentSize = 3
)

// Selection strategies for the Selection parameter.
const (
	SelectStochasticUniversal = iota
	SelectElite
	SelectTournament
)

var (
	ErrNoIndependentVariables = errors.New("sampler has no independent variables")
	ErrUnknownSelection       = errors.New("unknown selection strategy")
)

func Metadata() algorithm.Metadata {
	return algorithm.Metadata{
		ID:          ID,
		Name:        "GARP (single run)",
		Version:     Version,
		Overview:    "Genetic Algorithm for Rule-set Production. Evolves range, negated range, atomic and logit rules over environmental space.",
		Author:      "Stockwell, D. R. B.",
		Categorical: false,
		Absence:     true,
		Parameters: []algorithm.Parameter{
			{
				ID:       ParamMaxGenerations,
				Name:     "Max generations",
				Type:     algorithm.Integer,
				Overview: "Maximum number of iterations run by the genetic algorithm.",
				Default:  400,
				HasMin:   true,
				Min:      1,
			},
			{
				ID:       ParamConvergenceLimit,
				Name:     "Convergence limit",
				Type:     algorithm.Real,
				Overview: "Defines the convergence value that makes the algorithm stop before reaching the maximum number of generations.",
				Default:  0.01,
				HasMin:   true,
				Min:      0,
				HasMax:   true,
				Max:      1,
			},
			{
				ID:       ParamPopulationSize,
				Name:     "Population size",
				Type:     algorithm.Integer,
				Overview: "Maximum number of rules kept in the solution.",
				Default:  50,
				HasMin:   true,
				Min:      1,
				HasMax:   true,
				Max:      500,
			},
			{
				ID:       ParamResamples,
				Name:     "Resamples",
				Type:     algorithm.Integer,
				Overview: "Number of points sampled for training the model.",
				Default:  2500,
				HasMin:   true,
				Min:      1,
				HasMax:   true,
				Max:      100000,
			},
			{
				ID:       ParamSelection,
				Name:     "Selection",
				Type:     algorithm.Integer,
				Overview: "Parent selection strategy: 0 stochastic universal sampling, 1 uniform among the better half, 2 tournaments of three.",
				Default:  SelectStochasticUniversal,
				HasMin:   true,
				Min:      SelectStochasticUniversal,
				HasMax:   true,
				Max:      SelectTournament,
			},
		},
	}
}

// Register adds GARP to the algorithm registry.
func Register() error {
	return algorithm.Register(algorithm.Spec{
		Metadata: Metadata(),
		Factory: func(opts algorithm.Options) algorithm.Algorithm {
			return New(opts)
		},
	})
}

// Garp evolves a rule set. Offspring are bred every generation and the best
// distinct rules survive in the fittest set, which is the model.
type Garp struct {
	logger     *slog.Logger
	rng        *rand.Rand
	normalizer normalize.Normalizer
	selection  int

	maxGen        int
	convLimit     float64
	popsize       int
	resamples     int
	mortality     float64
	significance  float64
	crossoverRate float64
	mutationRate  float64
	gapsize       float64

	numGenes    int
	cached      []*occurrence.Occurrence
	histogram   *BioclimHistogram
	regression  *Regression
	offspring   *RuleSet
	fittest     *RuleSet
	gen         int
	convergence *evo.Convergence
	progress    evo.Progress
}

func New(opts algorithm.Options) *Garp {
	return &Garp{
		logger:        opts.LoggerOrDiscard(),
		rng:           opts.Rand(),
		mortality:     defaultMortality,
		significance:  defaultSignificance,
		crossoverRate: defaultCrossoverRate,
		mutationRate:  defaultMutationRate,
		gapsize:       defaultGapSize,
		convergence:   evo.NewConvergence(),
	}
}

func (g *Garp) Metadata() algorithm.Metadata { return Metadata() }

// DefaultNormalizer scales every layer to [-1, 1] using the layer extremes.
func (g *Garp) DefaultNormalizer() normalize.Normalizer {
	return normalize.NewScale(-1, 1, true)
}

func (g *Garp) SetNormalizer(n normalize.Normalizer) { g.normalizer = n }
func (g *Garp) Normalizer() normalize.Normalizer     { return g.normalizer }

func (g *Garp) Initialize(ctx context.Context, s *sampler.Sampler, params algorithm.Values) error {
	if params == nil {
		params = algorithm.Values{}
	}
	resolved, err := algorithm.Resolve(Metadata(), params.Strings())
	if err != nil {
		return err
	}
	g.maxGen = resolved.Int(ParamMaxGenerations)
	g.convLimit = resolved.Float(ParamConvergenceLimit)
	g.popsize = resolved.Int(ParamPopulationSize)
	g.resamples = resolved.Int(ParamResamples)
	g.selection = resolved.Int(ParamSelection)
	if _, err := g.selector(1); err != nil {
		return err
	}

	g.numGenes = s.NumIndependent()
	if g.numGenes == 0 {
		return ErrNoIndependentVariables
	}

	g.cached = make([]*occurrence.Occurrence, 0, g.resamples)
	for i := 0; i < g.resamples; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		o, err := s.OneSample(g.rng)
		if err != nil {
			return fmt.Errorf("cache sample %d: %w", i, err)
		}
		g.cached = append(g.cached, o)
	}
	g.histogram = NewBioclimHistogram(g.cached)
	g.regression = NewRegression(g.cached)

	g.offspring = NewRuleSet(2 * g.popsize)
	g.fittest = NewRuleSet(2 * g.popsize)
	g.gen = 0
	g.convergence = evo.NewConvergence()
	g.progress = evo.Progress{}
	if err := g.colonize(g.offspring, g.popsize); err != nil {
		return err
	}
	g.logger.Debug("garp initialized",
		"genes", g.numGenes,
		"resamples", g.resamples,
		"population", g.popsize,
		"max_generations", g.maxGen,
		"selection", g.selection,
	)
	return nil
}

// Iterate runs one generation.
func (g *Garp) Iterate(ctx context.Context) error {
	if g.offspring == nil {
		return algorithm.ErrNotInitialized
	}
	if g.Done() {
		return nil
	}
	g.gen++

	if err := g.evaluate(ctx, g.offspring); err != nil {
		return err
	}
	if err := g.keepFittest(g.offspring, g.fittest, defaultPerfIndex); err != nil {
		return err
	}
	g.fittest.Trim(g.popsize)

	best, worst, avg := g.fittest.PerformanceSummary(defaultPerfIndex)
	g.logger.Debug("garp generation",
		"generation", g.gen,
		"rules", g.fittest.Len(),
		"convergence", g.convergence.Value(),
		"best", best,
		"worst", worst,
		"avg", avg,
	)

	if g.Done() {
		g.fittest.Filter(defaultPerfIndex, g.significance)
		g.logger.Info("garp done", "generations", g.gen, "rules", g.fittest.Len())
		return nil
	}

	if err := g.reproduce(g.fittest, g.offspring, g.gapsize); err != nil {
		return err
	}
	if err := g.colonize(g.offspring, g.popsize); err != nil {
		return err
	}
	g.offspring.Trim(g.popsize)
	g.mutate(g.offspring)
	return g.crossover(g.offspring)
}

func (g *Garp) Done() bool {
	return g.gen >= g.maxGen || g.convergence.Value() < g.convLimit
}

// Progress is the larger of the generation share and the convergence
// share, never decreasing.
func (g *Garp) Progress() float64 {
	if g.Done() {
		return 1
	}
	byIterations := float64(g.gen) / float64(g.maxGen)
	byConvergence := g.convLimit / g.convergence.Value()
	return g.progress.Observe(math.Max(byIterations, byConvergence))
}

// Value is the prediction of the first fittest rule that applies.
func (g *Garp) Value(s sample.Sample) float64 {
	if g.fittest == nil {
		return 0
	}
	return g.fittest.Value(s)
}

// Dimension is the number of genes of every rule.
func (g *Garp) Dimension() int { return g.numGenes }

func (g *Garp) Generation() int { return g.gen }

func (g *Garp) Convergence() float64 { return g.convergence.Value() }

// Fittest returns the current model rules.
func (g *Garp) Fittest() *RuleSet { return g.fittest }

func (g *Garp) evaluate(ctx context.Context, rs *RuleSet) error {
	for i, r := range rs.rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.NeedsEvaluation() {
			continue
		}
		if _, err := r.Evaluate(g.cached); err != nil {
			return fmt.Errorf("evaluate rule %d: %w", i, err)
		}
	}
	return nil
}

// keepFittest merges source into target, replacing a similar target rule
// only when the candidate performs better. The number of candidates that
// found a similar rule feeds the convergence measure.
func (g *Garp) keepFittest(source, target *RuleSet, index PerfIndex) error {
	converged := 0
	for _, candidate := range source.rules {
		similar := target.FindSimilar(candidate)
		if similar >= 0 {
			converged++
			if candidate.Performance(index) > target.At(similar).Performance(index) {
				target.Remove(similar)
				if _, err := target.Insert(index, candidate.Clone()); err != nil {
					return err
				}
			}
			continue
		}
		if _, err := target.Insert(index, candidate.Clone()); err != nil {
			return err
		}
	}
	g.convergence.Observe(converged)
	return nil
}

// selector builds the configured parent selection for a population of n
// ranked rules.
func (g *Garp) selector(n int) (evo.Selector[Rule], error) {
	switch g.selection {
	case SelectStochasticUniversal:
		return evo.StochasticUniversalSelector[Rule]{}, nil
	case SelectElite:
		return evo.EliteSelector[Rule]{EliteCount: max(1, n/2)}, nil
	case SelectTournament:
		return evo.TournamentSelector[Rule]{TournamentSize: tournamentSize}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSelection, g.selection)
	}
}

// reproduce refills target with clones of source rules picked by the
// configured selector, gapsize times the population size.
func (g *Garp) reproduce(source, target *RuleSet, gapsize float64) error {
	target.Clear()
	ranked := source.Ranked(defaultPerfIndex)
	sel, err := g.selector(len(ranked))
	if err != nil {
		return err
	}
	picked, err := sel.Select(g.rng, ranked, g.popsize)
	if errors.Is(err, evo.ErrEmptyPopulation) {
		return nil
	}
	if err != nil {
		return err
	}
	size := int(math.Ceil(float64(g.popsize) * gapsize))
	for i := 0; i < size && i < len(picked); i++ {
		r := picked[i].Clone()
		r.ForceEvaluation()
		if err := target.Add(r); err != nil {
			return fmt.Errorf("reproduce: %w", err)
		}
	}
	return nil
}

// colonize tops rs up to n rules, cycling through presence range rules,
// absence negated rules, atomic rules pinned to a cached point and logit
// rules.
func (g *Garp) colonize(rs *RuleSet, n int) error {
	for i := rs.Len(); i < n; i++ {
		var r Rule
		switch i % 4 {
		case 0:
			rr := NewRangeRule(g.numGenes)
			rr.SetPrediction(1)
			rr.InitializeFrom(g.rng, g.histogram)
			r = rr
		case 1:
			nr := NewNegatedRangeRule(g.numGenes)
			nr.SetPrediction(0)
			nr.InitializeFrom(g.rng, g.histogram)
			r = nr
		case 2:
			ar := NewAtomicRule(g.numGenes)
			o := g.cached[g.rng.Intn(len(g.cached))]
			if err := ar.InitializeFrom(o.Environment()); err != nil {
				return fmt.Errorf("colonize: %w", err)
			}
			pred := 0.0
			if o.IsPresence() {
				pred = 1
			}
			ar.SetPrediction(pred)
			r = ar
		default:
			lr := NewLogitRule(g.numGenes)
			pred := 0.0
			if g.rng.Float64() > 0.5 {
				pred = 1
			}
			lr.SetPrediction(pred)
			lr.InitializeFrom(g.rng, g.regression)
			r = lr
		}
		if err := rs.Add(r); err != nil {
			return fmt.Errorf("colonize: %w", err)
		}
	}
	return nil
}

// mutate cools down with the generation count.
func (g *Garp) mutate(rs *RuleSet) {
	temperature := 2 / float64(g.gen)
	for _, r := range rs.rules {
		r.Mutate(g.rng, temperature)
	}
}

func (g *Garp) crossover(rs *RuleSet) error {
	n := rs.Len()
	if n < 2 {
		return nil
	}
	last := int(g.crossoverRate * float64(n))
	for x := 0; x < last; x += 2 {
		mom := g.rng.Intn(n)
		dad := g.rng.Intn(n)
		if dad == mom {
			dad = (dad + 1) % n
		}
		xpt1 := g.rng.Intn(g.numGenes)
		xpt2 := g.rng.Intn(g.numGenes)
		if err := rs.At(mom).Crossover(rs.At(dad), xpt1, xpt2); err != nil {
			return err
		}
	}
	return nil
}

// Configuration serializes the run settings and the fittest rules.
func (g *Garp) Configuration() *config.Section {
	sec := config.New(SectionName)
	sec.AddNameValue("Generations", g.gen)
	sec.AddNameValue("AccuracyLimit", g.convLimit)
	sec.AddNameValue("PopulationSize", g.popsize)
	sec.AddNameValue("Mortality", g.mortality)
	sec.AddNameValue("Significance", g.significance)
	sec.AddNameValue("FinalCrossoverRate", g.crossoverRate)
	sec.AddNameValue("FinalMutationRate", g.mutationRate)
	sec.AddNameValue("FinalGapSize", g.gapsize)
	sec.AddNameValue("Selection", g.selection)

	rules := config.New("FittestRules")
	var fittest []Rule
	if g.fittest != nil {
		fittest = g.fittest.rules
	}
	rules.AddNameValue("Count", len(fittest))
	for _, r := range fittest {
		rules.AddSubsection(RuleConfiguration(r))
	}
	sec.AddSubsection(rules)
	return sec
}

// SetConfiguration restores a finished run. The restored algorithm scores
// samples but cannot iterate further.
func (g *Garp) SetConfiguration(sec *config.Section) error {
	if sec.Name != SectionName {
		var err error
		if sec, err = sec.Subsection(SectionName); err != nil {
			return err
		}
	}
	var err error
	if g.gen, err = sec.IntOr("Generations", 0); err != nil {
		return err
	}
	if g.convLimit, err = sec.FloatOr("AccuracyLimit", 0); err != nil {
		return err
	}
	if g.popsize, err = sec.IntOr("PopulationSize", 0); err != nil {
		return err
	}
	if g.mortality, err = sec.FloatOr("Mortality", defaultMortality); err != nil {
		return err
	}
	if g.significance, err = sec.FloatOr("Significance", defaultSignificance); err != nil {
		return err
	}
	if g.crossoverRate, err = sec.FloatOr("FinalCrossoverRate", defaultCrossoverRate); err != nil {
		return err
	}
	if g.mutationRate, err = sec.FloatOr("FinalMutationRate", defaultMutationRate); err != nil {
		return err
	}
	if g.gapsize, err = sec.FloatOr("FinalGapSize", defaultGapSize); err != nil {
		return err
	}
	if g.selection, err = sec.IntOr("Selection", SelectStochasticUniversal); err != nil {
		return err
	}

	rulesSec, err := sec.Subsection("FittestRules")
	if err != nil {
		return err
	}
	ruleSecs := rulesSec.All("Rule")
	capacity := max(2*g.popsize, len(ruleSecs))
	g.fittest = NewRuleSet(capacity)
	for i, rs := range ruleSecs {
		r, err := RuleFromConfiguration(rs)
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if err := g.fittest.Add(r); err != nil {
			return err
		}
	}
	if len(ruleSecs) > 0 {
		g.numGenes = g.fittest.At(0).NumGenes()
	}
	g.maxGen = g.gen
	return nil
}

func RuleConfiguration(r Rule) *config.Section {
	sec := config.New("Rule")
	sec.AddNameValue("Type", string(rune(r.Kind())))
	sec.AddNameValue("Prediction", r.Prediction())
	sec.AddNameValue("Chromosome1", r.Chromosome1())
	sec.AddNameValue("Chromosome2", r.Chromosome2())
	perf := r.Performances()
	sec.AddNameValue("Performance", perf[:])
	return sec
}

func RuleFromConfiguration(sec *config.Section) (Rule, error) {
	kind, err := sec.Attribute("Type")
	if err != nil {
		return nil, err
	}
	if len(kind) != 1 {
		return nil, fmt.Errorf("%w: rule type %q", ErrInvalidRuleState, kind)
	}
	pred, err := sec.FloatOr("Prediction", 0)
	if err != nil {
		return nil, err
	}
	c1, err := sec.Sample("Chromosome1")
	if err != nil {
		return nil, err
	}
	c2, err := sec.Sample("Chromosome2")
	if err != nil {
		return nil, err
	}
	var perf sample.Sample
	if sec.Has("Performance") {
		if perf, err = sec.Sample("Performance"); err != nil {
			return nil, err
		}
	}
	r, err := RuleFromChromosomes(Kind(kind[0]), pred, c1, c2, perf)
	if err != nil {
		return nil, err
	}
	r.core().needsEval = false
	return r, nil
}
