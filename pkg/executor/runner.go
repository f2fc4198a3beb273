package executor

import (
	"context"
	"errors"

	"github.com/wehubfusion/kage/pkg/concurrency"
	kerrors "github.com/wehubfusion/kage/pkg/errors"
	"github.com/wehubfusion/kage/pkg/graph"
)

// Runner walks a graph, invoking and committing each binding
type Runner interface {
	Strategy() Strategy
	run(ctx context.Context, g *graph.Graph, r *runState) error
}

// NewRunner returns the runner for a strategy
func NewRunner(s Strategy, pool WorkerPoolConfig, limiter *concurrency.Limiter) (Runner, error) {
	switch s {
	case Sequential, "":
		return &sequentialRunner{}, nil
	case Parallel:
		return &parallelRunner{pool: pool, limiter: limiter}, nil
	case Cooperative:
		return &cooperativeRunner{limiter: limiter}, nil
	}
	_, err := ParseStrategy(string(s))
	return nil, err
}

// sequentialRunner invokes bindings one at a time in topological order and
// stops at the first failure
type sequentialRunner struct{}

func (sequentialRunner) Strategy() Strategy { return Sequential }

func (sequentialRunner) run(ctx context.Context, g *graph.Graph, r *runState) error {
	for _, n := range g.Order() {
		result, failure := r.invoke(ctx, n)
		if failure != nil {
			r.skipRemaining(g, map[string]bool{failure.Binding: true})
			return kerrors.NewFailureError([]*kerrors.BindingFailure{failure})
		}
		if err := r.commit(n, result); err != nil {
			return kerrors.NewExecutionError("commit failed", err, n.Binding.Name)
		}
	}
	return nil
}

// parallelRunner runs one level at a time on a bounded worker pool. Every
// member of a level finishes before the level is judged; all failures of the
// level are reported together and no later level starts.
type parallelRunner struct {
	pool    WorkerPoolConfig
	limiter *concurrency.Limiter
}

func (parallelRunner) Strategy() Strategy { return Parallel }

func (p *parallelRunner) run(ctx context.Context, g *graph.Graph, r *runState) error {
	wp := newWorkerPool(p.pool, r.invoke, p.limiter, r.logger)
	wp.Start()
	defer wp.Close()

	for _, level := range g.Levels() {
		var failures []*kerrors.BindingFailure
		for _, o := range wp.RunLevel(ctx, level) {
			if o.failure != nil {
				failures = append(failures, o.failure)
				continue
			}
			if err := r.commit(o.node, o.result); err != nil {
				failures = append(failures, &kerrors.BindingFailure{Binding: o.node.Binding.Name, Err: err})
			}
		}
		if len(failures) > 0 {
			r.skipRemaining(g, failedSet(failures))
			return kerrors.NewFailureError(failures)
		}
	}
	return nil
}

// cooperativeRunner starts each binding on its own goroutine as soon as all
// of its dependencies have committed. Only the scheduling loop commits. A
// limiter, when set, bounds how many callables run at once.
type cooperativeRunner struct {
	limiter *concurrency.Limiter
}

func (cooperativeRunner) Strategy() Strategy { return Cooperative }

func (c *cooperativeRunner) run(ctx context.Context, g *graph.Graph, r *runState) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := make([]int, g.Len())
	done := make(chan outcome)
	inflight := 0

	dispatch := func(n *graph.Node) {
		inflight++
		go func() {
			if c.limiter != nil {
				if err := c.limiter.Acquire(runCtx); err != nil {
					done <- outcome{node: n, failure: &kerrors.BindingFailure{Binding: n.Binding.Name, Err: err}}
					return
				}
				defer c.limiter.Release()
			}
			result, failure := r.invoke(runCtx, n)
			done <- outcome{node: n, result: result, failure: failure}
		}()
	}

	for _, n := range g.Order() {
		pending[n.Index] = len(n.Deps)
		if len(n.Deps) == 0 {
			dispatch(n)
		}
	}

	var failures []*kerrors.BindingFailure
	for inflight > 0 {
		o := <-done
		inflight--

		if o.failure != nil {
			// Once cancelled, in-flight bindings that stop on the cancellation
			// are not failures of their own.
			if len(failures) > 0 && errors.Is(o.failure.Err, context.Canceled) {
				continue
			}
			failures = append(failures, o.failure)
			cancel()
			continue
		}
		if len(failures) > 0 {
			continue
		}
		if err := r.commit(o.node, o.result); err != nil {
			failures = append(failures, &kerrors.BindingFailure{Binding: o.node.Binding.Name, Err: err})
			cancel()
			continue
		}
		for _, d := range o.node.Dependents {
			pending[d]--
			if pending[d] == 0 {
				dispatch(g.NodeAt(d))
			}
		}
	}

	if len(failures) > 0 {
		r.skipRemaining(g, failedSet(failures))
		return kerrors.NewFailureError(failures)
	}
	return nil
}
