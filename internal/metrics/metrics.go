// Package metrics exposes Prometheus collectors for the video pipeline and
// the queue worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ticketless/internal/services"
)

// Path labels distinguish the two pipeline drivers.
const (
	PathSync  = "sync"
	PathQueue = "queue"
)

// Metrics owns one registry so tests and multiple servers never collide on
// the global default.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration    *prometheus.HistogramVec
	pipelineDuration *prometheus.HistogramVec
	outcomes         *prometheus.CounterVec
	claimConflicts   prometheus.Counter
	reclaimed        prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketless_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage", "outcome"}),
		pipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketless_pipeline_duration_seconds",
			Help:    "End-to-end duration of one pipeline run including uploads.",
			Buckets: prometheus.LinearBuckets(10, 10, 12),
		}, []string{"path"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketless_pipeline_outcomes_total",
			Help: "Pipeline runs by driver path and error kind (empty kind means success).",
		}, []string{"path", "kind"}),
		claimConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketless_claim_conflicts_total",
			Help: "Job transitions rejected because the claim was lost.",
		}),
		reclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketless_stale_jobs_reclaimed_total",
			Help: "Processing jobs returned to the queue after their worker vanished.",
		}),
	}
}

// ObserveStage satisfies video.StageObserver.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome(err)).Observe(elapsed.Seconds())
}

// ObservePipeline records one finished run on path.
func (m *Metrics) ObservePipeline(path string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	m.outcomes.WithLabelValues(path, string(services.Classify(err))).Inc()
}

// ClaimConflict counts a transition rejected because the job was no longer
// held under the worker's claim.
func (m *Metrics) ClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}

// Reclaimed counts jobs returned by stale reclaim.
func (m *Metrics) Reclaimed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reclaimed.Add(float64(n))
}

// TrackWorkspaces exposes the live workspace count reported by active.
func (m *Metrics) TrackWorkspaces(active func() int64) {
	if m == nil || active == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ticketless_active_workspaces",
		Help: "Workspaces currently acquired.",
	}, func() float64 { return float64(active()) })
}

// TrackQueue exposes queue depth per status, read at scrape time.
func (m *Metrics) TrackQueue(stats func() map[string]int) {
	if m == nil || stats == nil {
		return
	}
	m.registry.MustRegister(&queueCollector{stats: stats, desc: queueDepthDesc})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(services.Classify(err))
}

var queueDepthDesc = prometheus.NewDesc(
	"ticketless_queue_jobs",
	"Jobs in the queue table by status.",
	[]string{"status"}, nil,
)

type queueCollector struct {
	stats func() map[string]int
	desc  *prometheus.Desc
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	for status, count := range c.stats() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(count), status)
	}
}
