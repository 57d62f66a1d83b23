package prioritize

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

// Metrics holds Prometheus metrics for alert prioritization.
type Metrics struct {
	CyclesTotal    *prometheus.CounterVec
	CycleDuration  *prometheus.HistogramVec
	AlertsTotal    *prometheus.CounterVec
	FallbacksTotal *prometheus.CounterVec
	RemoteCalls    *prometheus.CounterVec
	RemoteDuration prometheus.Histogram
	TokensIn       prometheus.Counter
	TokensOut      prometheus.Counter
}

// NewMetrics registers and returns prioritization metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindspot_prioritize_cycles_total",
			Help: "Total prioritization cycles by the path that produced the result.",
		}, []string{"path"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blindspot_prioritize_duration_seconds",
			Help:    "Duration of prioritization cycles in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us .. ~26s
		}, []string{"path"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindspot_alerts_total",
			Help: "Total alerts emitted by threat level and object type.",
		}, []string{"level", "object"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindspot_remote_fallbacks_total",
			Help: "Total remote results discarded in favor of the local rule, by reason.",
		}, []string{"reason"}),
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindspot_remote_calls_total",
			Help: "Total remote provider calls by outcome.",
		}, []string{"outcome"}),
		RemoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blindspot_remote_call_duration_seconds",
			Help:    "Duration of individual remote provider calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. 32s
		}),
		TokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blindspot_remote_tokens_input_total",
			Help: "Total remote input tokens consumed.",
		}),
		TokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blindspot_remote_tokens_output_total",
			Help: "Total remote output tokens consumed.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.AlertsTotal,
		m.FallbacksTotal,
		m.RemoteCalls,
		m.RemoteDuration,
		m.TokensIn,
		m.TokensOut,
	)

	return m
}

// Hooks returns Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnCycle: func(path Path, alerts []alert.Alert, duration float64) {
			m.CyclesTotal.WithLabelValues(string(path)).Inc()
			m.CycleDuration.WithLabelValues(string(path)).Observe(duration)
			for _, a := range alerts {
				m.AlertsTotal.WithLabelValues(string(a.ThreatLevel), string(a.ObjectType)).Inc()
			}
		},
		OnRemoteCall: func(inputTokens, outputTokens int, duration float64, err error) {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			m.RemoteCalls.WithLabelValues(outcome).Inc()
			m.RemoteDuration.Observe(duration)
			m.TokensIn.Add(float64(inputTokens))
			m.TokensOut.Add(float64(outputTokens))
		},
		OnFallback: func(reason string) {
			m.FallbacksTotal.WithLabelValues(reason).Inc()
		},
	}
}
