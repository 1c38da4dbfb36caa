// Package metrics exposes Prometheus instrumentation for the posting
// pipeline. The registry is explicitly constructed and injected; no
// package-level default is used.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for the posting pipeline.
type Registry struct {
	registry *prometheus.Registry

	// Publishing pipeline
	PostsAttempted prometheus.Counter
	PostsPublished prometheus.Counter
	PostsRejected  *prometheus.CounterVec
	PostRetries    prometheus.Counter

	// Upstream calls
	NewsFetches     *prometheus.CounterVec
	NewsItemsFound  prometheus.Histogram
	GenerationRuns  *prometheus.CounterVec
	EngagementScore prometheus.Histogram

	// Workflow
	CycleDuration *prometheus.HistogramVec
	CycleRuns     *prometheus.CounterVec

	// Optimization
	OptimizationCycles prometheus.Counter

	// Alerts
	AlertsTriggered *prometheus.CounterVec
}

// NewRegistry creates a registry with all pipeline metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		PostsAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blueherald_posts_attempted_total",
			Help: "Total number of publish attempts",
		}),
		PostsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blueherald_posts_published_total",
			Help: "Total number of posts successfully published",
		}),
		PostsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blueherald_posts_rejected_total",
			Help: "Total number of posts rejected before publishing, by reason",
		}, []string{"reason"}),
		PostRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blueherald_post_retries_total",
			Help: "Total number of publish retry attempts",
		}),

		NewsFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blueherald_news_fetches_total",
			Help: "Total number of news retrieval calls, by result",
		}, []string{"result"}),
		NewsItemsFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blueherald_news_items_found",
			Help:    "Number of relevant news items returned per fetch",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		GenerationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blueherald_generation_runs_total",
			Help: "Total number of content generation calls, by content type",
		}, []string{"content_type"}),
		EngagementScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blueherald_engagement_score",
			Help:    "Estimated engagement score of generated content",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),

		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blueherald_cycle_duration_seconds",
			Help:    "Duration of agent workflow cycles in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		CycleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blueherald_cycle_runs_total",
			Help: "Total number of agent workflow cycles, by result",
		}, []string{"result"}),

		OptimizationCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blueherald_optimization_cycles_total",
			Help: "Total number of optimization cycles executed",
		}),

		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blueherald_alerts_triggered_total",
			Help: "Total number of alerts triggered, by severity",
		}, []string{"severity"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.PostsAttempted,
		r.PostsPublished,
		r.PostsRejected,
		r.PostRetries,
		r.NewsFetches,
		r.NewsItemsFound,
		r.GenerationRuns,
		r.EngagementScore,
		r.CycleDuration,
		r.CycleRuns,
		r.OptimizationCycles,
		r.AlertsTriggered,
	)
	return r
}

// SetActiveTestsSource registers the active A/B test gauge backed by
// fn, so the value is read fresh at scrape time instead of being
// pushed on every test transition. Call at most once per registry.
func (r *Registry) SetActiveTestsSource(fn func() float64) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "blueherald_active_ab_tests",
		Help: "Number of currently active A/B tests",
	}, fn))
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// CycleTimer tracks one workflow cycle.
type CycleTimer struct {
	registry *Registry
	start    time.Time
}

// StartCycleTimer begins timing a workflow cycle.
func (r *Registry) StartCycleTimer() *CycleTimer {
	return &CycleTimer{registry: r, start: time.Now()}
}

// Stop records the cycle duration and outcome. Result is one of
// "success", "error", "timeout" or "skipped".
func (t *CycleTimer) Stop(result string) {
	duration := time.Since(t.start)
	t.registry.CycleDuration.WithLabelValues(result).Observe(duration.Seconds())
	t.registry.CycleRuns.WithLabelValues(result).Inc()

	log.Debug().
		Str("result", result).
		Dur("duration", duration).
		Msg("workflow cycle recorded")
}

// Snapshot gathers current metric families for the status endpoint.
func (r *Registry) Snapshot() ([]*dto.MetricFamily, error) {
	return r.registry.Gather()
}

// CounterValue reads the current value of a counter in a snapshot, for
// threshold evaluation. Vec counters are summed across label sets.
func CounterValue(families []*dto.MetricFamily, name string) float64 {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		total := 0.0
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

// GaugeValue reads the current value of a gauge in a snapshot.
func GaugeValue(families []*dto.MetricFamily, name string) float64 {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}
