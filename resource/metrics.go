package resource

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver exports handle lifecycle events as prometheus metrics.
type MetricsObserver struct {
	live     *prometheus.GaugeVec
	created  *prometheus.CounterVec
	released *prometheus.CounterVec
}

// NewMetricsObserver creates the collectors and registers them with reg.
// A nil reg skips registration.
func NewMetricsObserver(namespace string, reg prometheus.Registerer) (*MetricsObserver, error) {
	m := &MetricsObserver{
		live: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "handles_live",
				Help:      "Number of engine handles currently alive",
			},
			[]string{"kind"},
		),
		created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_created_total",
				Help:      "Total number of engine handles created",
			},
			[]string{"kind"},
		),
		released: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_released_total",
				Help:      "Total number of engine handles released",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.live, m.created, m.released} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	// Pre-populate label values so every kind shows up with 0.
	for _, k := range Kinds {
		m.live.WithLabelValues(string(k))
		m.created.WithLabelValues(string(k))
		m.released.WithLabelValues(string(k))
	}

	return m, nil
}

func (m *MetricsObserver) OnHandleEvent(e Event) {
	kind := string(e.Kind)
	switch e.Type {
	case EventCreated:
		m.created.WithLabelValues(kind).Inc()
		m.live.WithLabelValues(kind).Inc()
	case EventReleased:
		m.released.WithLabelValues(kind).Inc()
		m.live.WithLabelValues(kind).Dec()
	}
}

// Live returns the live gauge, for assertions and custom exposition.
func (m *MetricsObserver) Live() *prometheus.GaugeVec {
	return m.live
}

// CreatedTotal returns the created counter.
func (m *MetricsObserver) CreatedTotal() *prometheus.CounterVec {
	return m.created
}

// ReleasedTotal returns the released counter.
func (m *MetricsObserver) ReleasedTotal() *prometheus.CounterVec {
	return m.released
}
