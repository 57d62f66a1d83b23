package stream

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the websocket stream.
type Metrics struct {
	Clients      prometheus.Gauge
	DroppedTotal prometheus.Counter
}

// NewMetrics registers and returns stream metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blindspot_stream_clients",
			Help: "Number of connected websocket clients.",
		}),
		DroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blindspot_stream_dropped_total",
			Help: "Total snapshots not delivered to a client because its buffer was full.",
		}),
	}
	reg.MustRegister(m.Clients, m.DroppedTotal)
	return m
}
