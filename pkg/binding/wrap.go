package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/wehubfusion/kage/pkg/document"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// reflected calls an arbitrary Go function by position, mapping parameter
// names to positions in declaration order
type reflected struct {
	name    string
	params  []string
	fn      reflect.Value
	withCtx bool
	err     error
}

// Wrap turns a Go function into a Callable. params names the function's
// parameters in order, excluding an optional leading context.Context. The
// function may return nothing, a value, an error, or a value and an error.
// A function that does not fit is reported by Validate and on every call.
func Wrap(name string, fn interface{}, params ...string) Callable {
	r := &reflected{name: name, params: append([]string{}, params...)}
	r.err = r.bind(fn)
	return r
}

func (r *reflected) bind(fn interface{}) error {
	if fn == nil {
		return fmt.Errorf("callable '%s' is nil", r.name)
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return fmt.Errorf("callable '%s' is a %s, not a function", r.name, t.Kind())
	}
	if v.IsNil() {
		return fmt.Errorf("callable '%s' is nil", r.name)
	}
	if t.IsVariadic() {
		return fmt.Errorf("callable '%s' is variadic", r.name)
	}

	in := t.NumIn()
	if in > 0 && t.In(0) == contextType {
		r.withCtx = true
		in--
	}
	if in != len(r.params) {
		return fmt.Errorf("callable '%s' takes %d parameters but %d names were given", r.name, in, len(r.params))
	}

	switch t.NumOut() {
	case 0, 1:
	case 2:
		if t.Out(1) != errorType {
			return fmt.Errorf("callable '%s' must return (value, error)", r.name)
		}
	default:
		return fmt.Errorf("callable '%s' returns too many values", r.name)
	}

	r.fn = v
	return nil
}

func (r *reflected) Name() string     { return r.name }
func (r *reflected) Params() []string { return r.params }
func (r *reflected) Validate() error  { return r.err }

func (r *reflected) Call(ctx context.Context, args Args) (result interface{}, err error) {
	if r.err != nil {
		return nil, r.err
	}
	t := r.fn.Type()

	in := make([]reflect.Value, 0, t.NumIn())
	offset := 0
	if r.withCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
		offset = 1
	}
	for i, name := range r.params {
		arg, convErr := convert(args[name], t.In(i+offset))
		if convErr != nil {
			return nil, fmt.Errorf("parameter '%s': %w", name, convErr)
		}
		in = append(in, arg)
	}

	out := r.fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if t.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// convert adapts a document value to a Go parameter type
func convert(v interface{}, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if n, ok := v.(json.Number); ok {
		switch {
		case isInt(t.Kind()) || isUint(t.Kind()):
			i, err := n.Int64()
			if err != nil {
				return reflect.Value{}, fmt.Errorf("cannot use %s as %s", n, t)
			}
			return convertNumber(reflect.ValueOf(i), t)
		case isFloat(t.Kind()):
			f, err := n.Float64()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(f).Convert(t), nil
		case t.Kind() == reflect.String:
			return reflect.ValueOf(n.String()).Convert(t), nil
		}
	}

	k := rv.Kind()
	switch {
	case isNumeric(k) && isNumeric(t.Kind()):
		return convertNumber(rv, t)
	case k == t.Kind() && (k == reflect.String || k == reflect.Bool):
		return rv.Convert(t), nil
	case t.Kind() == reflect.Slice && (k == reflect.Slice || k == reflect.Array):
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := convert(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case t.Kind() == reflect.Map && k == reflect.Map && t.Key().Kind() == reflect.String:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elem, err := convert(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("key '%v': %w", iter.Key().Interface(), err)
			}
			out.SetMapIndex(reflect.ValueOf(fmt.Sprint(iter.Key().Interface())).Convert(t.Key()), elem)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s value as %s", document.KindOf(v), t)
}

// convertNumber converts between numeric kinds, refusing lossy float to
// integer conversions
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	if isFloat(rv.Kind()) && (isInt(t.Kind()) || isUint(t.Kind())) {
		f := rv.Float()
		if f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("cannot use fractional %v as %s", f, t)
		}
	}
	if isInt(rv.Kind()) && isUint(t.Kind()) && rv.Int() < 0 {
		return reflect.Value{}, fmt.Errorf("cannot use negative %d as %s", rv.Int(), t)
	}
	return rv.Convert(t), nil
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumeric(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || isFloat(k)
}
