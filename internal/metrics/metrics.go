// Package metrics exposes Prometheus collectors for the job pool and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"horse.fit/mtgate/internal/jobs"
)

const namespace = "mtgate"

// Metrics holds every collector and implements jobs.Observer.
type Metrics struct {
	registry *prometheus.Registry

	JobsSubmitted   prometheus.Counter
	JobsRejected    *prometheus.CounterVec
	JobsStarted     prometheus.Counter
	JobsFinished    *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
	ErrorCount      *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Async translation jobs accepted.",
		}),
		JobsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Async translation jobs rejected at submission.",
		}, []string{"reason"}),
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Async translation jobs picked up by a worker.",
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Async translation jobs that reached a terminal state.",
		}, []string{"state"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Engine time spent per async job.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"state"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "path", "status_code"}),
		ErrorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP requests answered with a 4xx or 5xx status.",
		}, []string{"method", "path", "status_code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsSubmitted,
		m.JobsRejected,
		m.JobsStarted,
		m.JobsFinished,
		m.JobDuration,
		m.Requests,
		m.ErrorCount,
		m.RequestDuration,
	)
	return m
}

// WatchController registers gauges that read pool and registry occupancy at scrape time.
func (m *Metrics) WatchController(c *jobs.Controller) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queued",
			Help:      "Accepted jobs waiting for a worker.",
		}, func() float64 { return float64(c.Pool().Stats().Queued) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Jobs currently executing.",
		}, func() float64 { return float64(c.Pool().Stats().Running) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Configured worker count.",
		}, func() float64 { return float64(c.Pool().Stats().Workers) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_entries",
			Help:      "Stored job entries, including expired ones not yet swept.",
		}, func() float64 { return float64(c.Registry().Len()) }),
	)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.Requests.WithLabelValues(method, path, code).Inc()
	if status >= 400 {
		m.ErrorCount.WithLabelValues(method, path, code).Inc()
	}
	m.RequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) JobSubmitted(jobs.Job) {
	m.JobsSubmitted.Inc()
}

func (m *Metrics) JobRejected(err error) {
	reason := string(jobs.KindOf(err))
	if reason == "" {
		reason = "unknown"
	}
	m.JobsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) JobStarted(jobs.Job) {
	m.JobsStarted.Inc()
}

func (m *Metrics) JobFinished(job jobs.Job, elapsed time.Duration) {
	state := string(job.State)
	m.JobsFinished.WithLabelValues(state).Inc()
	m.JobDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}
