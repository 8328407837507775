package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region collectors

// Metrics holds the responder's Prometheus collectors.
type Metrics struct {
	// RequestsTotal counts finished requests.
	// Labels: strategy (one of the five, fallback, error_fallback), outcome (success, degraded, fallback, error)
	RequestsTotal *prometheus.CounterVec

	// FallbacksTotal counts fallback-path entries.
	// Labels: reason (analysis, empty_input, timeout, panic)
	FallbacksTotal *prometheus.CounterVec

	// StrategySelections counts bandit picks.
	StrategySelections *prometheus.CounterVec

	RequestDuration prometheus.Histogram
	QualityScore    prometheus.Histogram
}

// New registers every collector with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "requests_total",
			Help:      "Responses returned, by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "fallbacks_total",
			Help:      "Requests routed to the fallback path, by reason",
		}, []string{"reason"}),
		StrategySelections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "strategy_selections_total",
			Help:      "UCB selections per strategy",
		}, []string{"strategy"}),
		RequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "responder",
			Name:      "request_duration_seconds",
			Help:      "End-to-end response latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		QualityScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "responder",
			Name:      "quality_score",
			Help:      "Distribution of returned quality scores",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
	}
}

// #endregion collectors

// #region record

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(strategy, outcome string, d time.Duration, quality float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(strategy, outcome).Inc()
	m.RequestDuration.Observe(d.Seconds())
	m.QualityScore.Observe(quality)
}

// ObserveFallback records a fallback-path entry.
func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// ObserveSelection records a bandit pick.
func (m *Metrics) ObserveSelection(strategy string) {
	if m == nil {
		return
	}
	m.StrategySelections.WithLabelValues(strategy).Inc()
}

// #endregion record
