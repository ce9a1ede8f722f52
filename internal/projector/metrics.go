package projector

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomePredicted    = "predicted"
	outcomeNotPredicted = "not_predicted"

	resultCompleted = "completed"
	resultAborted   = "aborted"
	resultFailed    = "failed"
)

// Metrics counts projected cells by outcome and projections by result.
type Metrics struct {
	cells       *prometheus.CounterVec
	projections *prometheus.CounterVec
	progress    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nichemodeller",
			Subsystem: "projector",
			Name:      "cells_total",
			Help:      "Projected cells by outcome.",
		}, []string{"outcome"}),
		projections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nichemodeller",
			Subsystem: "projector",
			Name:      "projections_total",
			Help:      "Finished projections by result.",
		}, []string{"result"}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nichemodeller",
			Subsystem: "projector",
			Name:      "progress_ratio",
			Help:      "Progress of the latest projection, from 0 to 1.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.cells, m.projections, m.progress} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) row(predicted, notPredicted int, progress float64) {
	if m == nil {
		return
	}
	m.cells.WithLabelValues(outcomePredicted).Add(float64(predicted))
	m.cells.WithLabelValues(outcomeNotPredicted).Add(float64(notPredicted))
	m.progress.Set(progress)
}

func (m *Metrics) done(result string) {
	if m == nil {
		return
	}
	m.projections.WithLabelValues(result).Inc()
}
