package builtin

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/wehubfusion/kage/pkg/binding"
	"github.com/wehubfusion/kage/pkg/document"
)

func init() {
	register("constant", func(name string, opts Options) (binding.Callable, error) {
		value := document.Normalize(opts["value"])
		return newCallable(name, []string{}, func(binding.Args) (interface{}, error) {
			return document.Clone(value), nil
		}), nil
	})
	register("pick", newPick)
	register("coalesce", func(name string, opts Options) (binding.Callable, error) {
		fallback := document.Normalize(opts["fallback"])
		return newCallable(name, []string{"value"}, func(args binding.Args) (interface{}, error) {
			if v := args["value"]; v != nil {
				return v, nil
			}
			return document.Clone(fallback), nil
		}), nil
	})
}

// newPick evaluates a gjson query against value, so array indexes, wildcards
// and modifiers such as @reverse are available. A query that matches nothing
// yields nil.
func newPick(name string, opts Options) (binding.Callable, error) {
	query := opts.GetString("path", "")
	if query == "" {
		return nil, &OperationError{Kind: "pick", Message: "option 'path' is required"}
	}
	return newCallable(name, []string{"value"}, func(args binding.Args) (interface{}, error) {
		raw, err := json.Marshal(args["value"])
		if err != nil {
			return nil, &OperationError{Kind: "pick", Message: "value is not JSON-encodable", Err: err}
		}
		res := gjson.GetBytes(raw, query)
		if !res.Exists() {
			return nil, nil
		}
		return res.Value(), nil
	}), nil
}
