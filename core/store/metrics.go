package store

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	PutTotal        prometheus.Counter
	GetTotal        prometheus.Counter
	DeleteTotal     prometheus.Counter
	IntegrityPurges prometheus.Counter
	UsedBytes       prometheus.Gauge
}

func newMetrics() metrics {
	const subsystem = "store"

	return metrics{
		PutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "put_total",
			Help:      "Number of chunks written to the store.",
		}),
		GetTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "get_total",
			Help:      "Number of successful chunk reads.",
		}),
		DeleteTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "delete_total",
			Help:      "Number of chunks deleted from the store.",
		}),
		IntegrityPurges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "integrity_purges_total",
			Help:      "Number of chunks purged after failing digest verification.",
		}),
		UsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "used_bytes",
			Help:      "Total payload bytes currently stored.",
		}),
	}
}

func (s *Store) Metrics() []prometheus.Collector {
	return []prometheus.Collector{
		s.metrics.PutTotal,
		s.metrics.GetTotal,
		s.metrics.DeleteTotal,
		s.metrics.IntegrityPurges,
		s.metrics.UsedBytes,
	}
}
