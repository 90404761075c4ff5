package restart

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/asegrid/internal/exitcode"
)

// Metrics counts attempts and their classifications. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	failures *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asegrid_attempts_total",
				Help: "Total number of attempts started per parser",
			},
			[]string{"parser"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asegrid_attempt_failures_total",
				Help: "Total number of failed attempts per classification",
			},
			[]string{"classification"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asegrid_jobs_total",
				Help: "Total number of finished jobs per outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "asegrid_attempt_duration_seconds",
				Help:    "Duration of attempts in seconds, from generation to parse",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
	reg.MustRegister(m.attempts, m.failures, m.outcomes, m.duration)
	return m
}

func (m *Metrics) attemptStarted(parser string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(parser).Inc()
}

func (m *Metrics) attemptFinished(start time.Time, f *exitcode.Failure) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(start).Seconds())
	if f != nil {
		m.failures.WithLabelValues(f.Code.String()).Inc()
	}
}

func (m *Metrics) jobFinished(o *Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o.Result()).Inc()
}
