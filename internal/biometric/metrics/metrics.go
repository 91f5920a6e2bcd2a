package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for face identification and the template cache.
type Metrics struct {
	CacheReads        *prometheus.CounterVec
	CacheRepopulation *prometheus.CounterVec
	CacheBreakerState prometheus.Gauge
	MatchLatency      prometheus.Histogram
	CandidatesScanned prometheus.Histogram
	MatchOutcome      *prometheus.CounterVec
}

// New creates a new Metrics instance with all biometric metrics registered.
func New() *Metrics {
	return &Metrics{
		CacheReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "punchclock_template_cache_reads_total",
			Help: "Template cache reads by result",
		}, []string{"result"}), // result: "hit", "miss", "unavailable"

		CacheRepopulation: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "punchclock_template_cache_repopulations_total",
			Help: "Template cache full repopulations by trigger and status",
		}, []string{"trigger", "status"}),

		CacheBreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "punchclock_template_cache_breaker_open",
			Help: "1 when the template cache circuit breaker is open",
		}),

		MatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "punchclock_face_match_duration_seconds",
			Help:    "Duration of the distance scan over enrolled templates",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		CandidatesScanned: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "punchclock_face_match_candidates",
			Help:    "Number of enrolled templates compared per identification",
			Buckets: prometheus.ExponentialBuckets(10, 4, 7),
		}),

		MatchOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "punchclock_face_match_outcomes_total",
			Help: "Identification outcomes",
		}, []string{"outcome"}), // outcome: "match", "no_match"
	}
}

func (m *Metrics) IncCacheRead(result string) {
	if m != nil {
		m.CacheReads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncRepopulation(trigger, status string) {
	if m != nil {
		m.CacheRepopulation.WithLabelValues(trigger, status).Inc()
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CacheBreakerState.Set(1)
		return
	}
	m.CacheBreakerState.Set(0)
}

// ObserveMatch records one completed scan.
func (m *Metrics) ObserveMatch(d time.Duration, compared int, matched bool) {
	if m == nil {
		return
	}
	m.MatchLatency.Observe(d.Seconds())
	m.CandidatesScanned.Observe(float64(compared))
	if matched {
		m.MatchOutcome.WithLabelValues("match").Inc()
	} else {
		m.MatchOutcome.WithLabelValues("no_match").Inc()
	}
}
