package stats

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/integrate"

	"nichemodeller/internal/config"
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/predict"
	"nichemodeller/internal/sampler"
)

const (
	DefaultResolution       = 15
	DefaultBackgroundPoints = 10000
)

var (
	ErrNoAbsences   = errors.New("roc curve needs absence points")
	ErrNoROCPoints  = errors.New("roc curve has fewer than two points")
	ErrNoROCSampler = errors.New("roc curve needs a sampler with an environment")
)

// Approach selects what the curve plots on its x axis.
type Approach int

const (
	// ApproachAuto picks Traditional when absences exist and
	// ProportionalArea otherwise.
	ApproachAuto Approach = iota
	// ApproachTraditional plots 1 - specificity over presences and absences.
	ApproachTraditional
	// ApproachProportionalArea plots the share of background points
	// predicted present.
	ApproachProportionalArea
)

func (a Approach) String() string {
	switch a {
	case ApproachTraditional:
		return "traditional"
	case ApproachProportionalArea:
		return "proportional_area"
	default:
		return "auto"
	}
}

// RocPoint is one point of the curve. Undefined ratios are -1.
type RocPoint struct {
	X               float64 `json:"x"`
	Sensitivity     float64 `json:"sensitivity"`
	PositivePredict float64 `json:"ppv"`
	NegativePredict float64 `json:"npv"`
	Accuracy        float64 `json:"accuracy"`
	Threshold       float64 `json:"threshold"`
}

type RocOptions struct {
	Resolution       int
	BackgroundPoints int
	Approach         Approach
	// UseAbsencesAsBackground replaces the generated background with the
	// absences and forces the proportional approach.
	UseAbsencesAsBackground bool
	Logger                  *slog.Logger
}

type RocCurve struct {
	resolution   int
	background   int
	approach     Approach
	absencesAsBG bool
	logger       *slog.Logger

	thresholds  []float64
	proportions []float64
	categories  []bool
	predictions []float64
	points      []RocPoint
	auc         float64
	ratios      map[float64]float64
	ready       bool
}

func NewRocCurve(opts RocOptions) (*RocCurve, error) {
	if opts.Resolution == 0 {
		opts.Resolution = DefaultResolution
	}
	if opts.Resolution < 2 {
		return nil, fmt.Errorf("invalid roc resolution: %d", opts.Resolution)
	}
	if opts.BackgroundPoints == 0 {
		opts.BackgroundPoints = DefaultBackgroundPoints
	}
	if opts.BackgroundPoints < 0 {
		return nil, fmt.Errorf("invalid roc background points: %d", opts.BackgroundPoints)
	}
	if opts.UseAbsencesAsBackground {
		opts.Approach = ApproachProportionalArea
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &RocCurve{
		resolution:   opts.Resolution,
		background:   opts.BackgroundPoints,
		approach:     opts.Approach,
		absencesAsBG: opts.UseAbsencesAsBackground,
		logger:       opts.Logger,
	}
	r.reset()
	return r, nil
}

func (r *RocCurve) reset() {
	r.ready = false
	r.categories = r.categories[:0]
	r.predictions = r.predictions[:0]
	r.points = nil
	r.auc = -1
	r.ratios = map[float64]float64{}
	r.thresholds = make([]float64, r.resolution)
	r.proportions = make([]float64, r.resolution)
	for i := range r.thresholds {
		r.thresholds[i] = float64(i) / float64(r.resolution-1)
	}
}

// Calculate installs the model normalization in s, scores its points and
// builds the curve. rng only draws background points.
func (r *RocCurve) Calculate(rng *rand.Rand, model predict.Model, s *sampler.Sampler) error {
	if s == nil || s.Environment() == nil {
		return ErrNoROCSampler
	}
	r.reset()
	if err := model.SetNormalization(samplerTarget{s}); err != nil {
		return err
	}

	approach := r.approach
	hasAbsences := s.Absences() != nil && s.Absences().Len() > 0
	switch {
	case approach == ApproachAuto && hasAbsences:
		approach = ApproachTraditional
	case approach == ApproachAuto:
		approach = ApproachProportionalArea
	case approach == ApproachTraditional && !hasAbsences:
		return ErrNoAbsences
	}
	if r.absencesAsBG && !hasAbsences {
		return fmt.Errorf("%w: absences requested as background", ErrNoAbsences)
	}
	r.approach = approach

	r.load(model, s.Presences(), true)
	switch {
	case approach == ApproachTraditional:
		r.load(model, s.Absences(), false)
	case r.absencesAsBG:
		r.background = 0
		for _, o := range s.Absences().All() {
			env := o.Environment()
			if len(env) == 0 {
				continue
			}
			r.background++
			r.addBackground(model.Value(env))
		}
	default:
		r.logger.Info("generating background points", "count", r.background)
		for i := 0; i < r.background; i++ {
			_, _, env, err := s.Environment().Random(rng)
			if err != nil {
				return fmt.Errorf("background point: %w", err)
			}
			r.addBackground(model.Value(env))
		}
	}
	if approach == ApproachProportionalArea && r.background > 0 {
		for i := range r.proportions {
			r.proportions[i] /= float64(r.background)
		}
	}

	r.graphPoints()
	r.ready = true
	if len(r.points) >= 2 {
		r.auc = integrate.Trapezoidal(r.xs(), r.ys())
	}
	r.logger.Info("roc curve calculated", "approach", approach.String(), "points", len(r.points), "auc", r.auc)
	return nil
}

func (r *RocCurve) load(model predict.Scorer, set *occurrence.Set, presence bool) {
	if set == nil {
		return
	}
	for _, o := range set.All() {
		env := o.Environment()
		if len(env) == 0 {
			r.logger.Warn("skipping point with no environmental data", "id", o.ID)
			continue
		}
		r.categories = append(r.categories, presence)
		r.predictions = append(r.predictions, model.Value(env))
	}
}

func (r *RocCurve) addBackground(v float64) {
	for j, t := range r.thresholds {
		if v < t {
			break
		}
		r.proportions[j]++
	}
}

func (r *RocCurve) graphPoints() {
	for i, threshold := range r.thresholds {
		var tp, fp, tn, fn int
		for j, actual := range r.categories {
			predicted := r.predictions[j] >= threshold
			switch {
			case actual && predicted:
				tp++
			case !actual && !predicted:
				tn++
			case predicted:
				fp++
			default:
				fn++
			}
		}
		sensitivity := rate(tp, tp+fn)
		specificity := rate(tn, tn+fp)
		if sensitivity == -1 {
			continue
		}
		if specificity == -1 && r.approach == ApproachTraditional {
			continue
		}
		p := RocPoint{
			Sensitivity:     sensitivity,
			PositivePredict: rate(tp, tp+fp),
			NegativePredict: rate(tn, tn+fn),
			Accuracy:        rate(tp+tn, tp+tn+fp+fn),
			Threshold:       threshold,
		}
		if r.approach == ApproachTraditional {
			p.X = 1 - specificity
		} else {
			p.X = r.proportions[i]
		}
		r.points = append(r.points, p)
	}

	r.points = append(r.points, RocPoint{PositivePredict: -1, NegativePredict: -1, Accuracy: -1, Threshold: -1})
	if r.approach == ApproachTraditional {
		r.points = append(r.points, RocPoint{X: 1, Sensitivity: 1, PositivePredict: -1, NegativePredict: -1, Accuracy: -1, Threshold: -1})
	}
	sort.SliceStable(r.points, func(i, j int) bool {
		if r.points[i].X != r.points[j].X {
			return r.points[i].X < r.points[j].X
		}
		return r.points[i].Sensitivity < r.points[j].Sensitivity
	})
}

func rate(n, total int) float64 {
	if total == 0 {
		return -1
	}
	return float64(n) / float64(total)
}

func (r *RocCurve) xs() []float64 {
	out := make([]float64, len(r.points))
	for i, p := range r.points {
		out[i] = p.X
	}
	return out
}

func (r *RocCurve) ys() []float64 {
	out := make([]float64, len(r.points))
	for i, p := range r.points {
		out[i] = p.Sensitivity
	}
	return out
}

func (r *RocCurve) Ready() bool        { return r.ready }
func (r *RocCurve) Approach() Approach { return r.approach }
func (r *RocCurve) Points() []RocPoint { return append([]RocPoint(nil), r.points...) }

// BackgroundPoints is the number of points the proportional approach
// divides by.
func (r *RocCurve) BackgroundPoints() int { return r.background }

// AUC is the trapezoidal area under the curve, or -1 with fewer than two
// points.
func (r *RocCurve) AUC() float64 {
	return r.auc
}

// PartialAreaRatio is the area under the curve where sensitivity is at
// least 1-e, divided by the area under the diagonal over the same x range.
// e is clamped to [0, 1]; ratios are cached per e.
func (r *RocCurve) PartialAreaRatio(e float64) (float64, error) {
	e = math.Max(0, math.Min(1, e))
	if len(r.points) < 2 {
		return -1, ErrNoROCPoints
	}
	if v, ok := r.ratios[e]; ok {
		return v, nil
	}

	limit := 1 - e
	area, diag := 0.0, 0.0
	trapezoid := func(x1, y1, x2, y2 float64) {
		area += (x2 - x1) * 0.5 * (y1 + y2)
		diag += (x2 - x1) * 0.5 * (x1 + x2)
	}
	interpolate := true
	for i := 1; i < len(r.points); i++ {
		x1, y1 := r.points[i-1].X, r.points[i-1].Sensitivity
		x2, y2 := r.points[i].X, r.points[i].Sensitivity
		if x2 == x1 {
			continue
		}
		switch {
		case y1 == limit:
			trapezoid(x1, y1, x2, y2)
			interpolate = false
		case y1 > limit && !interpolate:
			trapezoid(x1, y1, x2, y2)
		case y1 > limit && i > 1:
			x0, y0 := r.points[i-2].X, r.points[i-2].Sensitivity
			x := x1 - x0
			if y1 != y0 {
				x = x1 - (x1-x0)*(y1-limit)/(y1-y0)
			}
			trapezoid(x, limit, x1, y1)
			trapezoid(x1, y1, x2, y2)
			interpolate = false
		}
	}

	ratio := area / diag
	if math.IsNaN(ratio) {
		ratio = 0
	}
	r.ratios[e] = ratio
	return ratio, nil
}

func (r *RocCurve) Configuration() *config.Section {
	sec := config.New("RocCurve")
	sec.AddNameValue("Auc", r.auc)
	if r.approach == ApproachProportionalArea {
		sec.AddNameValue("NumBackgroundPoints", r.background)
	}
	flat := make([]float64, 0, 2*len(r.points))
	for _, p := range r.points {
		flat = append(flat, p.X, p.Sensitivity)
	}
	sec.AddNameValue("Points", flat)

	es := make([]float64, 0, len(r.ratios))
	for e := range r.ratios {
		es = append(es, e)
	}
	sort.Float64s(es)
	for _, e := range es {
		ratio := config.New("Ratio")
		ratio.AddNameValue("E", e)
		ratio.AddNameValue("Value", r.ratios[e])
		sec.AddSubsection(ratio)
	}
	return sec
}
