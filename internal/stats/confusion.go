package stats

import (
	"io"
	"log/slog"

	"nichemodeller/internal/config"
	"nichemodeller/internal/normalize"
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/predict"
	"nichemodeller/internal/sampler"
)

// ConfusionMatrix tabulates predictions against actual classes. Rows are
// the predicted class, columns the actual one; index 1 means presence.
type ConfusionMatrix struct {
	threshold float64
	matrix    [2][2]int
	ready     bool
	logger    *slog.Logger
}

func NewConfusionMatrix(threshold float64, logger *slog.Logger) *ConfusionMatrix {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConfusionMatrix{threshold: threshold, logger: logger}
}

func (c *ConfusionMatrix) Threshold() float64 {
	return c.threshold
}

func (c *ConfusionMatrix) Reset(threshold float64) {
	c.threshold = threshold
	c.matrix = [2][2]int{}
	c.ready = false
}

// SetLowestTrainingThreshold moves the threshold to the lowest positive
// score among the presences. Without one it falls back to DefaultThreshold.
func (c *ConfusionMatrix) SetLowestTrainingThreshold(model predict.Scorer, presences *occurrence.Set) {
	lowest := 2.0
	for _, o := range presences.All() {
		env := o.Environment()
		if len(env) == 0 {
			continue
		}
		if v := model.Value(env); v > 0 && v < lowest {
			lowest = v
		}
	}
	if lowest > 1 {
		c.logger.Warn("no valid threshold among training points", "threshold", DefaultThreshold)
		lowest = DefaultThreshold
	}
	c.threshold = lowest
}

// Calculate scores every point that has an environment. A nil absence set
// is treated as empty.
func (c *ConfusionMatrix) Calculate(model predict.Scorer, presences, absences *occurrence.Set) {
	c.Reset(c.threshold)
	tested := c.tally(model, presences, 1)
	c.logger.Debug("tested presence points", "count", tested)
	if absences != nil {
		tested = c.tally(model, absences, 0)
		c.logger.Debug("tested absence points", "count", tested)
	}
	c.ready = true
}

// CalculateSampler installs the model normalization in s before scoring
// its presences and absences.
func (c *ConfusionMatrix) CalculateSampler(model predict.Model, s *sampler.Sampler) error {
	if err := model.SetNormalization(samplerTarget{s}); err != nil {
		return err
	}
	c.Calculate(model, s.Presences(), s.Absences())
	return nil
}

func (c *ConfusionMatrix) tally(model predict.Scorer, set *occurrence.Set, actual int) int {
	n := 0
	for _, o := range set.All() {
		env := o.Environment()
		if len(env) == 0 {
			continue
		}
		n++
		c.matrix[c.class(model.Value(env))][actual]++
	}
	return n
}

func (c *ConfusionMatrix) class(v float64) int {
	if v >= c.threshold {
		return 1
	}
	return 0
}

// Value returns the count in the cell addressed by a predicted and an
// actual value, both classified with the threshold.
func (c *ConfusionMatrix) Value(predicted, actual float64) int {
	return c.matrix[c.class(predicted)][c.class(actual)]
}

func (c *ConfusionMatrix) TruePositives() int  { return c.matrix[1][1] }
func (c *ConfusionMatrix) FalsePositives() int { return c.matrix[1][0] }
func (c *ConfusionMatrix) TrueNegatives() int  { return c.matrix[0][0] }
func (c *ConfusionMatrix) FalseNegatives() int { return c.matrix[0][1] }

// Accuracy is -1 before Calculate or without points.
func (c *ConfusionMatrix) Accuracy() float64 {
	total := c.matrix[0][0] + c.matrix[0][1] + c.matrix[1][0] + c.matrix[1][1]
	return c.ratio(c.matrix[0][0]+c.matrix[1][1], total)
}

// OmissionError is the share of presences predicted absent.
func (c *ConfusionMatrix) OmissionError() float64 {
	return c.ratio(c.matrix[0][1], c.matrix[0][1]+c.matrix[1][1])
}

// CommissionError is the share of absences predicted present.
func (c *ConfusionMatrix) CommissionError() float64 {
	return c.ratio(c.matrix[1][0], c.matrix[1][0]+c.matrix[0][0])
}

func (c *ConfusionMatrix) ratio(n, total int) float64 {
	if !c.ready || total == 0 {
		return -1
	}
	return float64(n) / float64(total)
}

// Configuration reports the rates as percentages.
func (c *ConfusionMatrix) Configuration() *config.Section {
	sec := config.New("ConfusionMatrix")
	sec.AddNameValue("Threshold", c.threshold)
	sec.AddNameValue("Accuracy", c.Accuracy()*100)
	sec.AddNameValue("OmissionError", c.OmissionError()*100)
	sec.AddNameValue("CommissionError", c.CommissionError()*100)
	sec.AddNameValue("TruePositives", c.TruePositives())
	sec.AddNameValue("FalsePositives", c.FalsePositives())
	sec.AddNameValue("TrueNegatives", c.TrueNegatives())
	sec.AddNameValue("FalseNegatives", c.FalseNegatives())
	return sec
}

// samplerTarget lets a model install its training normalization in a
// sampler, replacing whatever the sampler had.
type samplerTarget struct {
	s *sampler.Sampler
}

func (t samplerTarget) Normalize(n normalize.Normalizer) error {
	t.s.ResetNormalization()
	if n == nil {
		return nil
	}
	return t.s.Normalize(n)
}
