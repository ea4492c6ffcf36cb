// Package metrics holds the Prometheus collectors of the widget-data service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "dashboard"

// Metrics groups every collector the service exports.
type Metrics struct {
	StoreRequests *prometheus.CounterVec
	StoreLatency  *prometheus.HistogramVec
	ParsedRecords prometheus.Counter
	SkippedRows   prometheus.Counter
	PollCycles    *prometheus.CounterVec
	MountedWidget prometheus.Gauge
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		StoreRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "requests_total",
			Help:      "Store queries by query shape and outcome",
		}, []string{"shape", "outcome"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "request_duration_seconds",
			Help:      "Latency of store queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"shape"}),
		ParsedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "records_total",
			Help:      "Records decoded from store responses",
		}),
		SkippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "skipped_rows_total",
			Help:      "Rows dropped while decoding store responses",
		}),
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Completed poll cycles by outcome",
		}, []string{"outcome"}),
		MountedWidget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "mounted_widgets",
			Help:      "Widgets currently polling",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.StoreRequests, m.StoreLatency, m.ParsedRecords, m.SkippedRows, m.PollCycles, m.MountedWidget,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding m plus Go runtime and process collectors.
func NewRegistry(m *Metrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
