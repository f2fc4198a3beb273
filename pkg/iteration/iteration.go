// Package iteration applies a callable to every element of a sequence,
// one at a time or on a bounded set of goroutines. Both modes stop at the
// first failing element and keep results in element order.
package iteration

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/wehubfusion/kage/pkg/binding"
	"github.com/wehubfusion/kage/pkg/document"
)

// Mode selects how elements are processed
type Mode string

const (
	Sequential Mode = "sequential"
	Parallel   Mode = "parallel"
)

// Config controls element-wise calls
type Config struct {
	// Param is the parameter that receives each element. Defaults to the
	// callable's first parameter.
	Param         string `json:"param,omitempty" yaml:"param,omitempty"`
	Mode          Mode   `json:"mode,omitempty" yaml:"mode,omitempty"`
	MaxConcurrent int    `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

func (c Config) workers(n int) int {
	w := c.MaxConcurrent
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > n {
		w = n
	}
	return w
}

// ItemFunc handles one element
type ItemFunc func(ctx context.Context, item interface{}, index int) (interface{}, error)

// ItemError reports the element that stopped the iteration
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("failed processing item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Map calls fn for every item and returns the results in item order
func Map(ctx context.Context, items []interface{}, cfg Config, fn ItemFunc) ([]interface{}, error) {
	if len(items) == 0 {
		return []interface{}{}, nil
	}
	if cfg.Mode == Parallel {
		return mapParallel(ctx, items, cfg.workers(len(items)), fn)
	}

	results := make([]interface{}, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := call(ctx, fn, item, i)
		if err != nil {
			return nil, &ItemError{Index: i, Err: err}
		}
		results[i] = out
	}
	return results, nil
}

func mapParallel(ctx context.Context, items []interface{}, workers int, fn ItemFunc) ([]interface{}, error) {
	results := make([]interface{}, len(items))
	work := make(chan int)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				if ctx.Err() != nil {
					continue
				}
				out, err := call(ctx, fn, items[idx], idx)
				if err != nil {
					once.Do(func() {
						first = &ItemError{Index: idx, Err: err}
						cancel()
					})
					continue
				}
				results[idx] = out
			}
		}()
	}

feed:
	for i := range items {
		select {
		case <-ctx.Done():
			break feed
		case work <- i:
		}
	}
	close(work)
	wg.Wait()

	if first != nil {
		return nil, first
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func call(ctx context.Context, fn ItemFunc, item interface{}, index int) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item, index)
}

type each struct {
	inner binding.Callable
	param string
	cfg   Config
}

// Each wraps c so that cfg.Param receives one element of the mapped
// sequence per call. The wrapped callable returns the list of results; a
// null sequence yields nil.
func Each(c binding.Callable, cfg Config) (binding.Callable, error) {
	params := c.Params()
	param := cfg.Param
	if param == "" {
		if len(params) == 0 {
			return nil, fmt.Errorf("callable '%s' has no parameter to iterate", c.Name())
		}
		param = params[0]
	}
	if params != nil {
		found := false
		for _, p := range params {
			if p == param {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("callable '%s' has no parameter '%s'", c.Name(), param)
		}
	}
	switch cfg.Mode {
	case "", Sequential, Parallel:
	default:
		return nil, fmt.Errorf("invalid iteration mode: %s", cfg.Mode)
	}
	return &each{inner: c, param: param, cfg: cfg}, nil
}

func (e *each) Name() string     { return e.inner.Name() }
func (e *each) Params() []string { return e.inner.Params() }

func (e *each) Validate() error {
	if v, ok := e.inner.(binding.Validatable); ok {
		return v.Validate()
	}
	return nil
}

func (e *each) Call(ctx context.Context, args binding.Args) (interface{}, error) {
	v := args[e.param]
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("parameter '%s' is a %s, not an array", e.param, document.KindOf(v))
	}
	return Map(ctx, items, e.cfg, func(ctx context.Context, item interface{}, _ int) (interface{}, error) {
		scoped := make(binding.Args, len(args))
		for k, a := range args {
			scoped[k] = a
		}
		scoped[e.param] = item
		return e.inner.Call(ctx, scoped)
	})
}
