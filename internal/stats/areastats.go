// Package stats summarizes fitted models: the area a projection predicts,
// the confusion matrix over training points and the ROC curve.
package stats

import "nichemodeller/internal/config"

// DefaultThreshold separates predicted presence from predicted absence.
const DefaultThreshold = 0.5

// AreaStats counts the cells of a projected map. Values at or above the
// threshold count as predicted present.
type AreaStats struct {
	Total            int     `json:"total"`
	PredictedPresent int     `json:"predicted_present"`
	PredictedAbsent  int     `json:"predicted_absent"`
	NotPredicted     int     `json:"not_predicted"`
	Threshold        float64 `json:"threshold"`
}

func NewAreaStats(threshold float64) *AreaStats {
	return &AreaStats{Threshold: threshold}
}

func (a *AreaStats) Reset(threshold float64) {
	*a = AreaStats{Threshold: threshold}
}

func (a *AreaStats) AddPrediction(value float64) {
	a.Total++
	if value >= a.Threshold {
		a.PredictedPresent++
	} else {
		a.PredictedAbsent++
	}
}

func (a *AreaStats) AddNonPrediction() {
	a.Total++
	a.NotPredicted++
}

// Merge adds the counters of other, which must share the threshold.
func (a *AreaStats) Merge(other AreaStats) {
	a.Total += other.Total
	a.PredictedPresent += other.PredictedPresent
	a.PredictedAbsent += other.PredictedAbsent
	a.NotPredicted += other.NotPredicted
}

// PresentRatio is the share of predicted cells above the threshold, or -1
// when no cell was predicted.
func (a *AreaStats) PresentRatio() float64 {
	predicted := a.PredictedPresent + a.PredictedAbsent
	if predicted == 0 {
		return -1
	}
	return float64(a.PredictedPresent) / float64(predicted)
}

func (a *AreaStats) Configuration() *config.Section {
	sec := config.New("AreaStatistics")
	sec.AddNameValue("TotalCells", a.Total)
	sec.AddNameValue("CellsPredicted", a.PredictedPresent)
	sec.AddNameValue("CellsPredictedAbsent", a.PredictedAbsent)
	sec.AddNameValue("CellsNotPredicted", a.NotPredicted)
	sec.AddNameValue("PredictionThreshold", a.Threshold)
	return sec
}
