package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/kage/pkg/binding"
	"github.com/wehubfusion/kage/pkg/document"
	kerrors "github.com/wehubfusion/kage/pkg/errors"
	"github.com/wehubfusion/kage/pkg/graph"
)

// runState carries one execution's shared collaborators
type runState struct {
	id       string
	strategy Strategy
	input    map[string]interface{}
	state    *State
	logger   *zap.Logger
	metrics  MetricsCollector
	tracer   trace.Tracer
}

// ResolveArgs builds a binding's arguments. Binding references read the
// committed result; everything else reads the input document. Values are
// copied so callables cannot mutate shared data.
func ResolveArgs(n *graph.Node, input map[string]interface{}, results *ResultStore) (binding.Args, string, error) {
	args := make(binding.Args, len(n.Sources))
	for _, src := range n.Sources {
		var (
			v   interface{}
			err error
		)
		if src.FromBinding {
			v, err = results.Get(src.Ref)
		} else {
			v, err = document.Get(input, src.Ref)
		}
		if err != nil {
			return nil, src.Param, err
		}
		args[src.Param] = document.Clone(v)
	}
	return args, "", nil
}

// invoke runs one binding. It never commits; callers decide when a result
// becomes visible.
func (r *runState) invoke(ctx context.Context, n *graph.Node) (result interface{}, failure *kerrors.BindingFailure) {
	b := n.Binding
	ctx, span := r.tracer.Start(ctx, "kage.binding",
		trace.WithAttributes(
			attribute.String("binding.name", b.Name),
			attribute.Int("binding.level", n.Level),
			attribute.String("run.id", r.id),
			attribute.String("run.strategy", string(r.strategy)),
		))
	defer span.End()

	fail := func(param string, err error) *kerrors.BindingFailure {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.RecordError(b.Name, r.strategy)
		r.logger.Error("Binding failed",
			zap.String("runID", r.id),
			zap.String("binding", b.Name),
			zap.String("param", param),
			zap.Error(err))
		return &kerrors.BindingFailure{Binding: b.Name, Param: param, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, fail("", err)
	}
	if param, err := b.CheckParams(); err != nil {
		return nil, fail(param, err)
	}
	args, param, err := ResolveArgs(n, r.input, r.state.Results)
	if err != nil {
		return nil, fail(param, err)
	}

	if ce := r.logger.Check(zap.DebugLevel, "Invoking binding"); ce != nil {
		ce.Write(
			zap.String("runID", r.id),
			zap.String("binding", b.Name),
			zap.Any("mapping", b.Inputs),
			zap.Strings("args", b.ParamNames()),
		)
	}

	start := time.Now()
	result, err = safeCall(ctx, b.Callable, args)
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int64("binding.duration_ms", elapsed.Milliseconds()))
	if err != nil {
		return nil, fail("", err)
	}

	r.metrics.RecordProcessed(b.Name, r.strategy, elapsed)
	span.SetStatus(codes.Ok, "")
	r.logger.Debug("Binding completed",
		zap.String("runID", r.id),
		zap.String("binding", b.Name),
		zap.Duration("duration", elapsed))
	return result, nil
}

// safeCall converts a panicking callable into an error
func safeCall(ctx context.Context, c binding.Callable, args binding.Args) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return c.Call(ctx, args)
}

// commit stores a result and places it in the output
func (r *runState) commit(n *graph.Node, result interface{}) error {
	if err := r.state.Commit(n.Binding.Name, n.Binding.OutputKey, result); err != nil {
		return err
	}
	if n.Binding.OutputKey != "" {
		r.logger.Debug("Result placed in output",
			zap.String("runID", r.id),
			zap.String("binding", n.Binding.Name),
			zap.String("outputKey", n.Binding.OutputKey))
	}
	return nil
}

// skipRemaining records every node that has not committed as skipped
func (r *runState) skipRemaining(g *graph.Graph, failed map[string]bool) {
	for _, n := range g.Order() {
		if r.state.Results.Has(n.Binding.Name) || failed[n.Binding.Name] {
			continue
		}
		r.metrics.RecordSkipped(n.Binding.Name, r.strategy)
	}
}

func failedSet(failures []*kerrors.BindingFailure) map[string]bool {
	out := make(map[string]bool, len(failures))
	for _, f := range failures {
		out[f.Binding] = true
	}
	return out
}
