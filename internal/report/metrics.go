package report

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the covrun Prometheus collectors. They implement
// coverage.Metrics.
type Metrics struct {
	runs       *prometheus.CounterVec
	retries    *prometheus.CounterVec
	unresolved prometheus.Counter
	duration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "covrun_runs_total",
			Help: "Instrumentation runs by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "covrun_retries_total",
			Help: "Retried file operations after a transient failure.",
		}, []string{"op"}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "covrun_unresolved_dependencies_total",
			Help: "Dependencies that could not be resolved.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "covrun_run_duration_seconds",
			Help:    "Wall time of instrumentation runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.retries, m.unresolved, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	// Export both outcomes from the start so rates work on a fresh process.
	m.runs.WithLabelValues("success")
	m.runs.WithLabelValues("failure")
	return m, nil
}

// ObserveRetry counts one retry of op.
func (m *Metrics) ObserveRetry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(success bool, unresolved int, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.unresolved.Add(float64(unresolved))
	m.duration.Observe(duration.Seconds())
}
