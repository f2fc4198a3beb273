// Package binding holds the callables the engine runs and the registry that
// wires their parameters to document locations and to each other.
package binding

import (
	"context"
	"fmt"
)

// Args maps parameter names to resolved argument values
type Args map[string]interface{}

// Callable is anything the engine can invoke by keyword arguments
type Callable interface {
	// Name is the default binding name
	Name() string

	// Params lists the declared parameter names. A nil slice means the
	// callable accepts whatever the mapping provides.
	Params() []string

	// Call invokes the callable with resolved arguments
	Call(ctx context.Context, args Args) (interface{}, error)
}

// Validatable is implemented by callables that can be malformed, such as
// reflected Go functions with an unsupported signature
type Validatable interface {
	Validate() error
}

// HandlerFunc is the native callable signature
type HandlerFunc func(ctx context.Context, args Args) (interface{}, error)

type funcCallable struct {
	name   string
	params []string
	fn     HandlerFunc
}

// Func adapts a HandlerFunc into a Callable
func Func(name string, params []string, fn HandlerFunc) Callable {
	return &funcCallable{name: name, params: params, fn: fn}
}

func (f *funcCallable) Name() string     { return f.name }
func (f *funcCallable) Params() []string { return f.params }

func (f *funcCallable) Call(ctx context.Context, args Args) (interface{}, error) {
	return f.fn(ctx, args)
}

func (f *funcCallable) Validate() error {
	if f.fn == nil {
		return fmt.Errorf("callable '%s' has no function", f.name)
	}
	return nil
}

// CheckArgs compares a mapping's parameter names against what a callable
// declares. It returns the first offending parameter name.
func CheckArgs(c Callable, mapped []string) (string, error) {
	declared := c.Params()
	if declared == nil {
		return "", nil
	}
	want := make(map[string]bool, len(declared))
	for _, p := range declared {
		want[p] = true
	}
	have := make(map[string]bool, len(mapped))
	for _, p := range mapped {
		if !want[p] {
			return p, fmt.Errorf("unexpected parameter '%s'", p)
		}
		have[p] = true
	}
	for _, p := range declared {
		if !have[p] {
			return p, fmt.Errorf("missing parameter '%s'", p)
		}
	}
	return "", nil
}
