// Package metrics exports execution metrics to Prometheus
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wehubfusion/kage/pkg/executor"
)

// Collector is an executor.MetricsCollector backed by a Prometheus registry.
// It also keeps plain counters so GetMetrics works without scraping.
type Collector struct {
	invocations *prometheus.CounterVec
	errors      *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	registry *prometheus.Registry

	totals struct {
		runs, failedRuns, processed, errors, skipped, processTime atomic.Int64
	}
}

// New creates a collector registered on its own registry
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "kage"
	}
	registry := prometheus.NewRegistry()

	c := &Collector{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "binding_invocations_total",
				Help:      "Bindings that returned a result",
			},
			[]string{"binding", "strategy"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "binding_errors_total",
				Help:      "Bindings that failed",
			},
			[]string{"binding", "strategy"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "binding_skipped_total",
				Help:      "Bindings not run because their run failed first",
			},
			[]string{"binding", "strategy"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "binding_duration_seconds",
				Help:      "Binding invocation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"binding", "strategy"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Executions by strategy and status",
			},
			[]string{"strategy", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Execution latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		registry: registry,
	}

	registry.MustRegister(
		c.invocations,
		c.errors,
		c.skipped,
		c.duration,
		c.runs,
		c.runDuration,
	)
	return c
}

func (c *Collector) RecordProcessed(binding string, strategy executor.Strategy, d time.Duration) {
	c.invocations.WithLabelValues(binding, string(strategy)).Inc()
	c.duration.WithLabelValues(binding, string(strategy)).Observe(d.Seconds())
	c.totals.processed.Add(1)
	c.totals.processTime.Add(d.Nanoseconds())
}

func (c *Collector) RecordError(binding string, strategy executor.Strategy) {
	c.errors.WithLabelValues(binding, string(strategy)).Inc()
	c.totals.errors.Add(1)
}

func (c *Collector) RecordSkipped(binding string, strategy executor.Strategy) {
	c.skipped.WithLabelValues(binding, string(strategy)).Inc()
	c.totals.skipped.Add(1)
}

func (c *Collector) RecordRun(strategy executor.Strategy, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		c.totals.failedRuns.Add(1)
	}
	c.runs.WithLabelValues(string(strategy), status).Inc()
	c.runDuration.WithLabelValues(string(strategy)).Observe(d.Seconds())
	c.totals.runs.Add(1)
}

// GetMetrics returns totals across all labels
func (c *Collector) GetMetrics() executor.Metrics {
	return executor.Metrics{
		TotalRuns:        c.totals.runs.Load(),
		FailedRuns:       c.totals.failedRuns.Load(),
		TotalInvocations: c.totals.processed.Load() + c.totals.errors.Load(),
		TotalErrors:      c.totals.errors.Load(),
		TotalSkipped:     c.totals.skipped.Load(),
		ProcessingTimeNs: c.totals.processTime.Load(),
	}
}

// Reset clears every series and total
func (c *Collector) Reset() {
	c.invocations.Reset()
	c.errors.Reset()
	c.skipped.Reset()
	c.duration.Reset()
	c.runs.Reset()
	c.runDuration.Reset()
	c.totals.runs.Store(0)
	c.totals.failedRuns.Store(0)
	c.totals.processed.Store(0)
	c.totals.errors.Store(0)
	c.totals.skipped.Store(0)
	c.totals.processTime.Store(0)
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ executor.MetricsCollector = (*Collector)(nil)
