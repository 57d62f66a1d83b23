package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the tick loop.
type Metrics struct {
	TicksTotal         prometheus.Counter
	SkippedTotal       prometheus.Counter
	StaleTotal         prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns monitor metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blindspot_monitor_ticks_total",
			Help: "Total generator ticks.",
		}),
		SkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blindspot_monitor_cycles_skipped_total",
			Help: "Total ticks that did not start a cycle because one was already in flight.",
		}),
		StaleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blindspot_monitor_cycles_stale_total",
			Help: "Total cycle results discarded because a reset happened while they ran.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindspot_notifications_total",
			Help: "Total danger notifications by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.SkippedTotal,
		m.StaleTotal,
		m.NotificationsTotal,
	)

	return m
}

func (m *Metrics) notified(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
}
