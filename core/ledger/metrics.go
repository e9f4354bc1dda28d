package ledger

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	Registered prometheus.Counter
	Deduped    prometheus.Counter
	Resolved   prometheus.Counter
	Failed     prometheus.Counter
	Retries    prometheus.Counter
	Timeouts   prometheus.Counter
	Pending    prometheus.Gauge
}

func newMetrics() metrics {
	const subsystem = "ledger"

	return metrics{
		Registered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "registered_total",
			Help:      "Number of new request entries created.",
		}),
		Deduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "deduplicated_total",
			Help:      "Number of registrations merged into an existing pending entry.",
		}),
		Resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "resolved_total",
			Help:      "Number of entries resolved.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "failed_total",
			Help:      "Number of entries that exhausted their retry ceiling.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "retries_total",
			Help:      "Number of retry attempts released after backoff.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "timeouts_total",
			Help:      "Number of pending entries aged out by the expiry monitor.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rnfs",
			Subsystem: subsystem,
			Name:      "pending",
			Help:      "Number of currently pending entries.",
		}),
	}
}

func (l *Ledger) Metrics() []prometheus.Collector {
	return []prometheus.Collector{
		l.metrics.Registered,
		l.metrics.Deduped,
		l.metrics.Resolved,
		l.metrics.Failed,
		l.metrics.Retries,
		l.metrics.Timeouts,
		l.metrics.Pending,
	}
}
