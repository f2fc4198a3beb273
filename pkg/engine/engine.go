// Package engine is the entry point for embedding kage: it validates an
// input document, collects bindings and runs them.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	internaltracing "github.com/wehubfusion/kage/internal/tracing"
	"github.com/wehubfusion/kage/pkg/binding"
	"github.com/wehubfusion/kage/pkg/document"
	kerrors "github.com/wehubfusion/kage/pkg/errors"
	"github.com/wehubfusion/kage/pkg/executor"
	"github.com/wehubfusion/kage/pkg/graph"
	"github.com/wehubfusion/kage/pkg/schema"
	"github.com/wehubfusion/kage/pkg/storage"
)

// Error codes for failures raised by the engine itself
const (
	CodeInputLoad    = "INPUT_LOAD_ERROR"
	CodeOutputEncode = "OUTPUT_ENCODE_ERROR"
	CodeOutputSave   = "OUTPUT_SAVE_ERROR"
	CodeConfig       = "CONFIG_ERROR"
)

// DefaultOutputName is the object name used when saving output without one
const DefaultOutputName = "output.json"

// Engine holds one validated input document and the bindings registered
// against it. Runs are serialized; bindings may be added between runs.
type Engine struct {
	input        map[string]interface{}
	inputSchema  *schema.Schema
	outputSchema *schema.Schema

	validateOutput bool
	validator      *schema.Validator
	registry       *binding.Registry
	executor       *executor.Executor
	state          *executor.State
	logger         *zap.Logger

	tracingShutdown func(context.Context) error

	runMu   sync.Mutex
	lastRun *runInfo
}

type runInfo struct {
	id       string
	strategy executor.Strategy
	elapsed  time.Duration
	err      error
}

// New validates input against inputSchema and returns a ready engine. Both
// accept parsed documents or sources (document.Source, file path, JSON
// text, []byte, io.Reader). Construction fails with *schema.SchemaError for
// a malformed schema and *schema.ValidationError for non-conforming input.
func New(input, inputSchema interface{}, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	strategy := o.strategy
	workers := o.workers
	if o.config != nil {
		if strategy == "" && o.config.Strategy != "" {
			strategy = executor.Strategy(o.config.Strategy)
		}
		if workers <= 0 {
			workers = o.config.MaxWorkers
		}
	}
	strategy, err := executor.ParseStrategy(string(strategy))
	if err != nil {
		return nil, kerrors.NewError(CodeConfig, "invalid strategy", err)
	}

	parser := schema.NewParser()
	inSchema, err := parser.Parse(inputSchema)
	if err != nil {
		return nil, err
	}
	var outSchema *schema.Schema
	if o.outputSchema != nil {
		if outSchema, err = parser.Parse(o.outputSchema); err != nil {
			return nil, err
		}
	}

	doc, err := document.ResolveMap(input)
	if err != nil {
		return nil, kerrors.NewError(CodeInputLoad, "failed to load input document", err)
	}

	validator := schema.NewValidator(schema.WithStrict(o.strict))
	if err := validator.Validate(doc, inSchema); err != nil {
		o.logger.Debug("Input rejected", zap.Error(err))
		return nil, err
	}

	e := &Engine{
		input:          doc,
		inputSchema:    inSchema,
		outputSchema:   outSchema,
		validateOutput: o.validateOutput,
		validator:      validator,
		registry:       binding.NewRegistry(),
		state:          executor.NewState(),
		logger:         o.logger,
	}

	if o.tracing != nil {
		shutdown, err := internaltracing.Setup(context.Background(), o.tracing.toInternalConfig(), o.logger)
		if err != nil {
			o.logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			e.tracingShutdown = shutdown
		}
	}

	execOpts := []executor.Option{
		executor.WithStrategy(strategy),
		executor.WithWorkerPool(executor.DefaultWorkerPoolConfig().WithNumWorkers(workers)),
		executor.WithLogger(o.logger),
	}
	if o.metrics != nil {
		execOpts = append(execOpts, executor.WithMetrics(o.metrics))
	}
	if o.limiter != nil {
		execOpts = append(execOpts, executor.WithLimiter(o.limiter))
	}
	e.executor = executor.New(execOpts...)

	o.logger.Debug("Engine initialized",
		zap.String("strategy", string(strategy)),
		zap.Int("workers", workers),
		zap.Strings("inputSchemaKeys", inSchema.PropertyNames()),
		zap.Bool("outputSchema", outSchema != nil),
		zap.Bool("validateOutput", o.validateOutput))
	return e, nil
}

// Register binds a callable. mapping sends each parameter to a binding name
// or an input path. Registration problems surface from Execute.
func (e *Engine) Register(c binding.Callable, mapping map[string]string, opts ...binding.Option) *Engine {
	e.registry.Register(c, mapping, opts...)
	return e
}

// Add binds a callable and reports registration problems immediately
func (e *Engine) Add(c binding.Callable, mapping map[string]string, opts ...binding.Option) (*binding.Binding, error) {
	return e.registry.Add(c, mapping, opts...)
}

// Execute runs every binding with the engine's default strategy and returns
// the output document
func (e *Engine) Execute(ctx context.Context) (map[string]interface{}, error) {
	return e.ExecuteWith(ctx, e.executor.Strategy())
}

// ExecuteWith runs every binding with the given strategy. The results table
// and output document are reset first; on failure ReadOutput still shows
// what had been committed.
func (e *Engine) ExecuteWith(ctx context.Context, strategy executor.Strategy) (map[string]interface{}, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if err := e.registry.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	err := e.executor.ExecuteWith(ctx, strategy, e.registry.Bindings(), e.input, e.state)
	e.lastRun = &runInfo{
		id:       e.state.RunID,
		strategy: strategy,
		elapsed:  time.Since(start),
		err:      err,
	}
	if err != nil {
		return nil, err
	}

	output := e.state.Output.Document()
	if e.validateOutput && !e.outputSchema.IsEmpty() {
		if err := e.validator.Validate(output, e.outputSchema); err != nil {
			e.lastRun.err = err
			e.logger.Warn("Output rejected by output schema", zap.Error(err))
			return nil, err
		}
	}
	return output, nil
}

// ReadInput returns a copy of the input value at path
func (e *Engine) ReadInput(path string) (interface{}, error) {
	v, err := document.Get(e.input, path)
	if err != nil {
		return nil, err
	}
	return document.Clone(v), nil
}

// ReadResult returns a copy of a binding's result from the latest run
func (e *Engine) ReadResult(name string) (interface{}, error) {
	v, err := e.state.Results.Get(name)
	if err != nil {
		return nil, err
	}
	return document.Clone(v), nil
}

// ReadOutput returns a copy of the output document
func (e *Engine) ReadOutput() map[string]interface{} {
	return e.state.Output.Document()
}

// Results returns a copy of every committed result
func (e *Engine) Results() map[string]interface{} {
	return e.state.Results.Snapshot()
}

// ToJSON renders the output document with two-space indentation and sorted
// keys
func (e *Engine) ToJSON() (string, error) {
	data, err := e.outputJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *Engine) outputJSON() ([]byte, error) {
	data, err := json.MarshalIndent(e.ReadOutput(), "", "  ")
	if err != nil {
		return nil, kerrors.NewError(CodeOutputEncode, "failed to encode output document", err)
	}
	return data, nil
}

// SaveOutput writes the output document to dest under name and returns the
// destination's location for it
func (e *Engine) SaveOutput(ctx context.Context, dest storage.Destination, name string) (string, error) {
	if dest == nil {
		return "", kerrors.NewError(CodeOutputSave, "destination is required", nil)
	}
	if name == "" {
		name = DefaultOutputName
	}
	data, err := e.outputJSON()
	if err != nil {
		return "", err
	}

	meta := map[string]string{}
	if rec := e.Record(); rec != nil {
		meta = rec.Metadata()
	}
	loc, err := dest.Save(ctx, name, data, meta)
	if err != nil {
		return "", kerrors.NewError(CodeOutputSave, fmt.Sprintf("failed to save output to %s", name), err)
	}
	e.logger.Debug("Output saved", zap.String("location", loc))
	return loc, nil
}

// SaveOutputFile writes the output document to a local file
func (e *Engine) SaveOutputFile(path string) error {
	_, err := e.SaveOutput(context.Background(), storage.NewFileDestination("", e.logger), path)
	return err
}

// Record describes the latest run, or nil before the first run
func (e *Engine) Record() *storage.RunRecord {
	e.runMu.Lock()
	last := e.lastRun
	e.runMu.Unlock()
	if last == nil {
		return nil
	}
	var output map[string]interface{}
	if last.err == nil {
		output = e.ReadOutput()
	}
	return storage.NewRunRecord(last.id, string(last.strategy), e.registry.Len(), last.elapsed,
		output, last.err, kerrors.FailedBindings(last.err))
}

// Schedule returns the level sets the next run would use, by binding name
func (e *Engine) Schedule() ([][]string, error) {
	if err := e.registry.Err(); err != nil {
		return nil, err
	}
	g, err := graph.Build(e.registry.Bindings(), e.input)
	if err != nil {
		return nil, err
	}
	levels := g.Levels()
	out := make([][]string, len(levels))
	for i, level := range levels {
		out[i] = graph.Names(level)
	}
	return out, nil
}

// Order returns bindings in the order the sequential strategy runs them
func (e *Engine) Order() ([]string, error) {
	if err := e.registry.Err(); err != nil {
		return nil, err
	}
	g, err := graph.Build(e.registry.Bindings(), e.input)
	if err != nil {
		return nil, err
	}
	return graph.Names(g.Order()), nil
}

// Bindings lists registered binding names in registration order
func (e *Engine) Bindings() []string {
	return e.registry.Names()
}

// InputSchema returns the parsed input schema
func (e *Engine) InputSchema() *schema.Schema {
	return e.inputSchema
}

// OutputSchema returns the parsed output schema, nil when none was given
func (e *Engine) OutputSchema() *schema.Schema {
	return e.outputSchema
}

// Metrics returns the metrics collector in use
func (e *Engine) Metrics() executor.MetricsCollector {
	return e.executor.Metrics()
}

// Close releases the tracer provider installed by WithTracing
func (e *Engine) Close() error {
	if e.tracingShutdown == nil {
		return nil
	}
	err := internaltracing.Shutdown(e.tracingShutdown, e.logger)
	e.tracingShutdown = nil
	return err
}
