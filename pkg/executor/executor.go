// Package executor runs a binding graph with one of three strategies. All
// strategies produce the same output document for the same graph of pure
// callables; they differ in how much runs at once.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/kage/pkg/binding"
	"github.com/wehubfusion/kage/pkg/concurrency"
	"github.com/wehubfusion/kage/pkg/graph"
)

const tracerName = "github.com/wehubfusion/kage/executor"

// Executor builds and runs graphs. It is safe to share between engines; run
// state lives in the State passed to Execute.
type Executor struct {
	strategy Strategy
	pool     WorkerPoolConfig
	limiter  *concurrency.Limiter
	shared   bool
	logger   *zap.Logger
	metrics  MetricsCollector
	tracer   trace.Tracer
}

// Option configures an Executor
type Option func(*Executor)

// WithStrategy sets the default strategy
func WithStrategy(s Strategy) Option {
	return func(e *Executor) { e.strategy = s }
}

// WithWorkerPool configures the parallel strategy's pool
func WithWorkerPool(cfg WorkerPoolConfig) Option {
	return func(e *Executor) { e.pool = cfg }
}

// WithLimiter shares a limiter across executors. A shared limiter also bounds
// the cooperative strategy.
func WithLimiter(l *concurrency.Limiter) Option {
	return func(e *Executor) {
		e.limiter = l
		e.shared = l != nil
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m MetricsCollector) Option {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer overrides the tracer taken from the global provider
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New creates an executor
func New(opts ...Option) *Executor {
	e := &Executor{
		strategy: DefaultStrategy,
		pool:     DefaultWorkerPoolConfig(),
		logger:   zap.NewNop(),
		metrics:  NoOpMetricsCollector{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.limiter == nil {
		e.limiter = concurrency.NewLimiter(e.pool.workers(nil))
	}
	return e
}

// Strategy returns the default strategy
func (e *Executor) Strategy() Strategy {
	return e.strategy
}

// Metrics returns the collector in use
func (e *Executor) Metrics() MetricsCollector {
	return e.metrics
}

// Execute runs bindings against input with the default strategy
func (e *Executor) Execute(ctx context.Context, bindings []*binding.Binding, input map[string]interface{}, state *State) error {
	return e.ExecuteWith(ctx, e.strategy, bindings, input, state)
}

// ExecuteWith resets state, builds the graph and runs it. Graph errors are
// returned before any callable runs.
func (e *Executor) ExecuteWith(ctx context.Context, strategy Strategy, bindings []*binding.Binding, input map[string]interface{}, state *State) (err error) {
	if strategy == "" {
		strategy = e.strategy
	}
	limiter := e.limiter
	if strategy == Cooperative && !e.shared {
		limiter = nil
	}
	runner, err := NewRunner(strategy, e.pool, limiter)
	if err != nil {
		return err
	}

	r := &runState{
		id:       uuid.NewString(),
		strategy: strategy,
		input:    input,
		state:    state,
		logger:   e.logger,
		metrics:  e.metrics,
		tracer:   e.tracer,
	}

	ctx, span := e.tracer.Start(ctx, "kage.execute",
		trace.WithAttributes(
			attribute.String("run.id", r.id),
			attribute.String("run.strategy", string(strategy)),
			attribute.Int("run.bindings", len(bindings)),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		e.metrics.RecordRun(strategy, elapsed, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Error("Execution failed",
				zap.String("runID", r.id),
				zap.String("strategy", string(strategy)),
				zap.Error(err))
			return
		}
		span.SetStatus(codes.Ok, "")
		e.logger.Info("Execution completed",
			zap.String("runID", r.id),
			zap.String("strategy", string(strategy)),
			zap.Int("bindings", len(bindings)),
			zap.Duration("duration", elapsed))
	}()

	state.Reset()
	state.RunID = r.id

	g, err := graph.Build(bindings, input)
	if err != nil {
		return err
	}

	e.logger.Debug("Execution order resolved",
		zap.String("runID", r.id),
		zap.Strings("order", graph.Names(g.Order())),
		zap.Int("levels", len(g.Levels())))

	return runner.run(ctx, g, r)
}
