package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for punch registration.
type Metrics struct {
	Outcomes        *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	Conflicts       prometheus.Counter
	Latency         *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
}

// New creates a new Metrics instance with all punch metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "punchclock_punch_outcomes_total",
			Help: "Punch attempts by source and outcome",
		}, []string{"source", "outcome"}),

		Classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "punchclock_punch_classifications_total",
			Help: "Accepted punches by type and timing classification",
		}, []string{"type", "classification"}), // classification: "on_time", "early", "late", "unchecked"

		Conflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "punchclock_punch_conflicts_total",
			Help: "Inserts rejected by the one-per-type-per-day constraint",
		}),

		Latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "punchclock_punch_registration_duration_seconds",
			Help:    "End-to-end punch registration time",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"source"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "punchclock_punch_events_total",
			Help: "punch.recorded deliveries by status",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveOutcome(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(source, outcome).Inc()
	m.Latency.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) IncClassification(punchType, classification string) {
	if m != nil {
		if classification == "" {
			classification = "unchecked"
		}
		m.Classifications.WithLabelValues(punchType, classification).Inc()
	}
}

func (m *Metrics) IncConflict() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

// ObserveDelivery is shaped for events.WithDeliveryHook.
func (m *Metrics) ObserveDelivery(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(status).Inc()
}
