package algorithm

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts training iterations and exposes the progress of the runs
// per algorithm id.
type Metrics struct {
	iterations *prometheus.CounterVec
	progress   *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nichemodeller",
			Subsystem: "algorithm",
			Name:      "iterations_total",
			Help:      "Training iterations run per algorithm.",
		}, []string{"algorithm"}),
		progress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nichemodeller",
			Subsystem: "algorithm",
			Name:      "progress_ratio",
			Help:      "Progress of the latest training run, from 0 to 1.",
		}, []string{"algorithm"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.iterations, m.progress} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) iteration(id string, progress float64) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(id).Inc()
	m.progress.WithLabelValues(id).Set(progress)
}

func (m *Metrics) finish(id string) {
	if m == nil {
		return
	}
	m.progress.WithLabelValues(id).Set(1)
}
