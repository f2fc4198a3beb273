package executor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds execution counters
type Metrics struct {
	TotalRuns        int64
	FailedRuns       int64
	TotalInvocations int64
	TotalErrors      int64
	TotalSkipped     int64
	ProcessingTimeNs int64
}

// MetricsCollector receives execution events
type MetricsCollector interface {
	// RecordProcessed records a binding that returned a result
	RecordProcessed(binding string, strategy Strategy, duration time.Duration)
	// RecordError records a binding that failed
	RecordError(binding string, strategy Strategy)
	// RecordSkipped records a binding that never ran because the run failed first
	RecordSkipped(binding string, strategy Strategy)
	// RecordRun records a finished run
	RecordRun(strategy Strategy, duration time.Duration, err error)
	// GetMetrics returns the current metrics
	GetMetrics() Metrics
	// Reset resets all metrics
	Reset()
}

// DefaultMetricsCollector is a thread-safe in-memory MetricsCollector
type DefaultMetricsCollector struct {
	runs        atomic.Int64
	failedRuns  atomic.Int64
	processed   atomic.Int64
	errors      atomic.Int64
	skipped     atomic.Int64
	processTime atomic.Int64

	mu         sync.RWMutex
	perBinding map[string]int64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{
		perBinding: make(map[string]int64),
	}
}

func (m *DefaultMetricsCollector) RecordProcessed(binding string, _ Strategy, duration time.Duration) {
	m.processed.Add(1)
	m.processTime.Add(duration.Nanoseconds())
	m.mu.Lock()
	m.perBinding[binding]++
	m.mu.Unlock()
}

func (m *DefaultMetricsCollector) RecordError(string, Strategy) {
	m.errors.Add(1)
}

func (m *DefaultMetricsCollector) RecordSkipped(string, Strategy) {
	m.skipped.Add(1)
}

func (m *DefaultMetricsCollector) RecordRun(_ Strategy, _ time.Duration, err error) {
	m.runs.Add(1)
	if err != nil {
		m.failedRuns.Add(1)
	}
}

// GetMetrics returns the current metrics
func (m *DefaultMetricsCollector) GetMetrics() Metrics {
	return Metrics{
		TotalRuns:        m.runs.Load(),
		FailedRuns:       m.failedRuns.Load(),
		TotalInvocations: m.processed.Load() + m.errors.Load(),
		TotalErrors:      m.errors.Load(),
		TotalSkipped:     m.skipped.Load(),
		ProcessingTimeNs: m.processTime.Load(),
	}
}

// Invocations returns how many times a binding completed successfully
func (m *DefaultMetricsCollector) Invocations(binding string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.perBinding[binding]
}

// Reset resets all metrics
func (m *DefaultMetricsCollector) Reset() {
	m.runs.Store(0)
	m.failedRuns.Store(0)
	m.processed.Store(0)
	m.errors.Store(0)
	m.skipped.Store(0)
	m.processTime.Store(0)
	m.mu.Lock()
	m.perBinding = make(map[string]int64)
	m.mu.Unlock()
}

// AverageProcessingTime returns the mean duration of successful invocations
func (m *DefaultMetricsCollector) AverageProcessingTime() time.Duration {
	processed := m.processed.Load()
	if processed == 0 {
		return 0
	}
	return time.Duration(m.processTime.Load() / processed)
}

// ErrorRate returns the error rate as a percentage
func (m *DefaultMetricsCollector) ErrorRate() float64 {
	processed := m.processed.Load()
	errors := m.errors.Load()
	total := processed + errors
	if total == 0 {
		return 0
	}
	return float64(errors) / float64(total) * 100
}

var _ MetricsCollector = (*DefaultMetricsCollector)(nil)

// NoOpMetricsCollector is a metrics collector that does nothing
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordProcessed(string, Strategy, time.Duration) {}
func (NoOpMetricsCollector) RecordError(string, Strategy)                    {}
func (NoOpMetricsCollector) RecordSkipped(string, Strategy)                  {}
func (NoOpMetricsCollector) RecordRun(Strategy, time.Duration, error)        {}
func (NoOpMetricsCollector) GetMetrics() Metrics                             { return Metrics{} }
func (NoOpMetricsCollector) Reset()                                          {}

var _ MetricsCollector = NoOpMetricsCollector{}
