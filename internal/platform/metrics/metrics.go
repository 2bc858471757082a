// Package metrics exposes the engine's Prometheus collectors. A nil *Metrics
// is valid and records nothing, so callers never need to guard.
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notify"

type Metrics struct {
	registry *prometheus.Registry

	enqueued    *prometheus.CounterVec
	delivery    *prometheus.CounterVec
	pill        *prometheus.CounterVec
	pruned      prometheus.Counter
	jobDuration *prometheus.HistogramVec
	jobRuns     *prometheus.CounterVec
}

// New builds a private registry with the engine collectors plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueued_total",
			Help:      "Pending notifications created by the daily planner.",
		}, []string{"tenant"}),
		delivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_total",
			Help:      "Delivery attempts by channel and outcome.",
		}, []string{"channel", "result"}),
		pill: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pill_reminders_total",
			Help:      "Contraceptive pill reminders by outcome.",
		}, []string{"result"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_pruned_total",
			Help:      "Push subscriptions deleted after a 404/410 from the push service.",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of scheduled job runs.",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by outcome (ok, error, skipped).",
		}, []string{"job", "result"}),
	}
	reg.MustRegister(
		m.enqueued, m.delivery, m.pill, m.pruned, m.jobDuration, m.jobRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	if m == nil {
		return echo.WrapHandler(promhttp.Handler())
	}
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) Enqueued(tenant string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.enqueued.WithLabelValues(tenant).Add(float64(n))
}

func (m *Metrics) Delivery(channel, result string) {
	if m == nil {
		return
	}
	m.delivery.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) PillReminder(result string) {
	if m == nil {
		return
	}
	m.pill.WithLabelValues(result).Inc()
}

func (m *Metrics) SubscriptionsPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

func (m *Metrics) JobRun(job, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	if result != "skipped" {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}
