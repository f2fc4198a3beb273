package jsfunc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wehubfusion/kage/pkg/binding"
)

// Function is a compiled JavaScript callable. It is safe for concurrent use;
// each call runs on its own pooled runtime.
type Function struct {
	cfg     Config
	program *goja.Program
	pool    *Pool
	ownPool bool
	logger  *zap.Logger
}

// Option configures a Function
type Option func(*Function)

// WithPool runs calls on a shared pool. The pool's security level wins over
// the config's.
func WithPool(p *Pool) Option {
	return func(f *Function) { f.pool = p }
}

// WithLogger sets the logger that also receives console output
func WithLogger(l *zap.Logger) Option {
	return func(f *Function) { f.logger = l }
}

// New compiles cfg.Script. Syntax errors are reported here rather than on
// first call.
func New(cfg Config, opts ...Option) (*Function, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid function config: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = []string{}
	}

	f := &Function{cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.logger = f.logger.With(zap.String("function", cfg.Name))

	src := "(function(" + strings.Join(cfg.Params, ", ") + ") {\n" + cfg.Script + "\n})"
	program, err := goja.Compile(cfg.Name, src, false)
	if err != nil {
		return nil, wrapError(err)
	}
	f.program = program

	if f.pool == nil {
		pool, err := NewPool(cfg.SecurityLevel, DefaultPoolConfig(), f.logger)
		if err != nil {
			return nil, err
		}
		f.pool = pool
		f.ownPool = true
	}
	return f, nil
}

// Name returns the configured name
func (f *Function) Name() string { return f.cfg.Name }

// Params returns the declared parameters
func (f *Function) Params() []string { return f.cfg.Params }

// Pool returns the pool calls run on
func (f *Function) Pool() *Pool { return f.pool }

// Timeout returns the per-call time limit
func (f *Function) Timeout() time.Duration { return f.cfg.Timeout }

// Call runs the script with args bound to its parameters and returns the
// exported result. JavaScript undefined becomes nil.
func (f *Function) Call(ctx context.Context, args binding.Args) (interface{}, error) {
	rt, err := f.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer f.pool.release(rt)

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	stop := make(chan struct{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		select {
		case <-callCtx.Done():
			rt.vm.Interrupt(callCtx.Err())
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-watching
	}()

	val, err := rt.vm.RunProgram(f.program)
	if err != nil {
		return nil, f.failure(err)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, &JSError{Type: ErrorTypeInternal, Message: "compiled script is not a function"}
	}

	jsArgs := make([]goja.Value, len(f.cfg.Params))
	for i, p := range f.cfg.Params {
		jsArgs[i] = rt.vm.ToValue(toJS(args[p]))
	}
	res, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, f.failure(err)
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return res.Export(), nil
}

// toJS turns decoded JSON numbers into native numbers so scripts see
// numbers rather than strings
func toJS(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = toJS(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = toJS(val)
		}
		return out
	}
	return v
}

func (f *Function) failure(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		cause, _ := interrupted.Value().(error)
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		f.logger.Warn("Script interrupted", zap.Duration("timeout", f.cfg.Timeout), zap.Error(cause))
		return newTimeoutError(cause)
	}
	jsErr := wrapError(err)
	f.logger.Debug("Script failed", zap.String("type", string(jsErr.Type)), zap.String("message", jsErr.Message))
	return jsErr
}

// Close releases the function's private pool
func (f *Function) Close() error {
	if f.ownPool {
		return f.pool.Close()
	}
	return nil
}

var _ binding.Callable = (*Function)(nil)
