package binding

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	kerrors "github.com/wehubfusion/kage/pkg/errors"
)

// Binding attaches a callable to the document: each parameter reads from a
// source reference, and the result is optionally written at OutputKey
type Binding struct {
	Name     string
	Callable Callable

	// Inputs maps parameter name to source reference. A reference names a
	// registered binding or, failing that, a dot-path into the input.
	Inputs map[string]string

	OutputKey string
	DependsOn []string

	// Index is the registration position, used to break scheduling ties
	Index int
}

// ParamNames returns the mapped parameter names in sorted order
func (b *Binding) ParamNames() []string {
	names := make([]string, 0, len(b.Inputs))
	for p := range b.Inputs {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// CheckParams verifies the mapping against the callable's declared
// parameters, returning the offending parameter name on mismatch
func (b *Binding) CheckParams() (string, error) {
	return CheckArgs(b.Callable, b.ParamNames())
}

type options struct {
	name    string
	output  string
	deps    []string
	replace bool
}

// Option customizes a registration
type Option func(*options)

// Name overrides the callable's own name
func Name(name string) Option {
	return func(o *options) { o.name = name }
}

// Output writes the result at the given dot-path of the output document
func Output(key string) Option {
	return func(o *options) { o.output = key }
}

// DependsOn forces ordering after the named bindings
func DependsOn(names ...string) Option {
	return func(o *options) { o.deps = append(o.deps, names...) }
}

// Replace allows the registration to take over an existing name. The
// replacement keeps the original registration position.
func Replace() Option {
	return func(o *options) { o.replace = true }
}

// Registry keeps bindings in registration order
type Registry struct {
	mu       sync.RWMutex
	bindings []*Binding
	byName   map[string]*Binding

	// deferred Register errors, dropped once the name registers cleanly
	errs []deferredErr
}

type deferredErr struct {
	name string
	err  error
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Binding),
	}
}

// Register adds a binding and returns the registry for chaining. Problems are
// kept and reported by Err until a later registration of the same name
// succeeds.
func (r *Registry) Register(c Callable, inputs map[string]string, opts ...Option) *Registry {
	if _, err := r.Add(c, inputs, opts...); err != nil {
		o := collect(opts)
		name := o.name
		if name == "" && c != nil {
			name = c.Name()
		}
		r.mu.Lock()
		r.errs = append(r.errs, deferredErr{name: name, err: err})
		r.mu.Unlock()
	}
	return r
}

func collect(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Add adds a binding and reports problems immediately
func (r *Registry) Add(c Callable, inputs map[string]string, opts ...Option) (*Binding, error) {
	o := collect(opts)

	if c == nil {
		return nil, invalid(o.name, "callable is nil")
	}
	name := o.name
	if name == "" {
		name = c.Name()
	}
	if name == "" {
		return nil, invalid("", "binding has no name")
	}
	if v, ok := c.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, &kerrors.ExecutionError{Kind: kerrors.ErrInvalidBinding, Message: "invalid binding", Bindings: []string{name}, Err: err}
		}
	}

	b := &Binding{
		Name:      name,
		Callable:  c,
		Inputs:    make(map[string]string, len(inputs)),
		OutputKey: o.output,
		DependsOn: append([]string{}, o.deps...),
	}
	for param, ref := range inputs {
		b.Inputs[param] = ref
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if !o.replace {
			return nil, invalid(name, fmt.Sprintf("binding '%s' is already registered", name))
		}
		b.Index = existing.Index
		r.bindings[existing.Index] = b
		r.byName[name] = b
		r.clearErrs(name)
		return b, nil
	}

	b.Index = len(r.bindings)
	r.bindings = append(r.bindings, b)
	r.byName[name] = b
	r.clearErrs(name)
	return b, nil
}

// clearErrs drops deferred errors for name. Callers hold r.mu.
func (r *Registry) clearErrs(name string) {
	kept := r.errs[:0]
	for _, d := range r.errs {
		if d.name != name {
			kept = append(kept, d)
		}
	}
	r.errs = kept
}

func invalid(name, msg string) error {
	e := &kerrors.ExecutionError{Kind: kerrors.ErrInvalidBinding, Message: msg}
	if name != "" {
		e.Bindings = []string{name}
	}
	return e
}

// Err returns every deferred registration error
func (r *Registry) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	errs := make([]error, len(r.errs))
	for i, d := range r.errs {
		errs[i] = d.err
	}
	return errors.Join(errs...)
}

// Get returns the binding registered under name
func (r *Registry) Get(name string) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byName[name]
	return b, ok
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Bindings returns a snapshot in registration order
func (r *Registry) Bindings() []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// Names returns binding names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.bindings))
	for i, b := range r.bindings {
		names[i] = b.Name
	}
	return names
}

// Len returns the number of registered bindings
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
