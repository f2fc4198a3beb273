// Package builtin provides native callables that manifests can bind by kind
// instead of shipping a script: string helpers, comparisons, date
// formatting and JSON value picking.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/wehubfusion/kage/pkg/binding"
)

// Options configures a builtin at construction time
type Options map[string]interface{}

// Factory builds a callable named name
type Factory func(name string, opts Options) (binding.Callable, error)

var factories = map[string]Factory{}

func register(kind string, f Factory) {
	factories[kind] = f
}

// New builds the builtin of the given kind
func New(kind, name string, opts Options) (binding.Callable, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown builtin '%s'", kind)
	}
	if name == "" {
		name = kind
	}
	if opts == nil {
		opts = Options{}
	}
	return f(name, opts)
}

// Kinds lists the registered builtin kinds in sorted order
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// OperationError is returned when a builtin rejects its arguments
type OperationError struct {
	Kind    string
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

type callable struct {
	name   string
	params []string
	fn     binding.HandlerFunc
}

func (c *callable) Name() string     { return c.name }
func (c *callable) Params() []string { return c.params }

func (c *callable) Call(ctx context.Context, args binding.Args) (interface{}, error) {
	return c.fn(ctx, args)
}

func newCallable(name string, params []string, fn func(args binding.Args) (interface{}, error)) *callable {
	return &callable{
		name:   name,
		params: params,
		fn: func(_ context.Context, args binding.Args) (interface{}, error) {
			return fn(args)
		},
	}
}

func (o Options) GetString(key, fallback string) string {
	if v, ok := o[key]; ok && v != nil {
		return toString(v)
	}
	return fallback
}

func (o Options) GetBool(key string, fallback bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func (o Options) GetInt(key string, fallback int) int {
	if v, ok := o[key]; ok {
		if f, err := toFloat64(v); err == nil {
			return int(f)
		}
	}
	return fallback
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}
