// Package metrics contains the Prometheus instrumentation for the
// real-time fan-out layer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the fan-out layer's instruments.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	EventsEmitted     *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
}

// New creates the metric set. Call Register before use.
func New() *Metrics {
	return &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ispora",
			Subsystem: "sse",
			Name:      "connections_active",
			Help:      "Number of live client stream connections",
		}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ispora",
			Subsystem: "sse",
			Name:      "events_emitted_total",
			Help:      "Total events handed to the fan-out layer",
		}, []string{"type"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ispora",
			Subsystem: "sse",
			Name:      "deliveries_total",
			Help:      "Per-connection delivery attempts by outcome",
		}, []string{"status"}),
	}
}

// Register registers all instruments with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.ConnectionsActive,
		m.EventsEmitted,
		m.Deliveries,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
