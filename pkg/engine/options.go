package engine

import (
	"go.uber.org/zap"

	"github.com/wehubfusion/kage/pkg/concurrency"
	"github.com/wehubfusion/kage/pkg/executor"
)

type options struct {
	outputSchema   interface{}
	validateOutput bool
	strict         bool
	strategy       executor.Strategy
	workers        int
	logger         *zap.Logger
	metrics        executor.MetricsCollector
	tracing        *TracingConfig
	limiter        *concurrency.Limiter
	config         *concurrency.Config
}

// Option configures an Engine
type Option func(*options)

// WithOutputSchema attaches an output schema. It is parsed at construction
// but only enforced when WithOutputValidation is set.
func WithOutputSchema(src interface{}) Option {
	return func(o *options) { o.outputSchema = src }
}

// WithOutputValidation checks the output document against the output schema
// after every successful run
func WithOutputValidation(enabled bool) Option {
	return func(o *options) { o.validateOutput = enabled }
}

// WithStrictValidation rejects keys a schema does not declare
func WithStrictValidation(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithStrategy selects the default execution strategy
func WithStrategy(s executor.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithWorkers caps the parallel strategy's worker pool
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector
func WithMetrics(m executor.MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracing installs an OTLP tracer provider for the engine's lifetime.
// Close shuts it down.
func WithTracing(cfg TracingConfig) Option {
	return func(o *options) { o.tracing = &cfg }
}

// WithLimiter shares a concurrency limiter between engines
func WithLimiter(l *concurrency.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithConfig supplies environment-derived defaults. Explicit strategy and
// worker options take precedence.
func WithConfig(c *concurrency.Config) Option {
	return func(o *options) { o.config = c }
}
