package builtin

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/wehubfusion/kage/pkg/binding"
)

// Operator names a comparison
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpRegex              Operator = "regex"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
)

func init() {
	register("compare", newCompare)
	register("is_empty", func(name string, _ Options) (binding.Callable, error) {
		return newCallable(name, []string{"value"}, func(args binding.Args) (interface{}, error) {
			return isEmpty(args["value"]), nil
		}), nil
	})
}

// newCompare compares left against right with the configured operator and
// returns a boolean
func newCompare(name string, opts Options) (binding.Callable, error) {
	op := Operator(opts.GetString("operator", string(OpEquals)))
	fold := opts.GetBool("case_insensitive", false)
	if !operators[op] {
		return nil, &OperationError{Kind: "compare", Message: fmt.Sprintf("unsupported operator '%s'", op)}
	}
	return newCallable(name, []string{"left", "right"}, func(args binding.Args) (interface{}, error) {
		return compare(args["left"], args["right"], op, fold)
	}), nil
}

var operators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true,
	OpGreaterThanOrEqual: true, OpLessThanOrEqual: true, OpContains: true,
	OpStartsWith: true, OpEndsWith: true, OpRegex: true, OpIn: true, OpNotIn: true,
}

func compare(left, right interface{}, op Operator, fold bool) (bool, error) {
	switch op {
	case OpEquals:
		return equal(left, right, fold), nil
	case OpNotEquals:
		return !equal(left, right, fold), nil
	case OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual:
		return ordered(left, right, op)
	case OpContains:
		l, r := foldPair(left, right, fold)
		return strings.Contains(l, r), nil
	case OpStartsWith:
		l, r := foldPair(left, right, fold)
		return strings.HasPrefix(l, r), nil
	case OpEndsWith:
		l, r := foldPair(left, right, fold)
		return strings.HasSuffix(l, r), nil
	case OpRegex:
		if right == nil {
			return false, nil
		}
		re, err := regexp.Compile(toString(right))
		if err != nil {
			return false, &OperationError{Kind: "compare", Message: fmt.Sprintf("invalid pattern '%s'", toString(right)), Err: err}
		}
		return re.MatchString(toString(left)), nil
	case OpIn, OpNotIn:
		if right == nil {
			return op == OpNotIn, nil
		}
		items, ok := right.([]interface{})
		if !ok {
			return false, &OperationError{Kind: "compare", Message: fmt.Sprintf("'%s' needs a sequence on the right", op)}
		}
		found := false
		for _, item := range items {
			if equal(left, item, fold) {
				found = true
				break
			}
		}
		return found == (op == OpIn), nil
	}
	return false, &OperationError{Kind: "compare", Message: fmt.Sprintf("unsupported operator '%s'", op)}
}

func ordered(left, right interface{}, op Operator) (bool, error) {
	if left == nil || right == nil {
		return false, nil
	}
	l, err := toFloat64(left)
	if err != nil {
		return false, &OperationError{Kind: "compare", Message: "left value is not a number", Err: err}
	}
	r, err := toFloat64(right)
	if err != nil {
		return false, &OperationError{Kind: "compare", Message: "right value is not a number", Err: err}
	}
	switch op {
	case OpGreaterThan:
		return l > r, nil
	case OpLessThan:
		return l < r, nil
	case OpGreaterThanOrEqual:
		return l >= r, nil
	default:
		return l <= r, nil
	}
}

func equal(left, right interface{}, fold bool) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if l, err := toFloat64(left); err == nil {
		if r, err := toFloat64(right); err == nil {
			if _, isStr := left.(string); !isStr {
				return l == r
			}
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		if fold {
			return strings.EqualFold(ls, rs)
		}
		return ls == rs
	}
	return reflect.DeepEqual(left, right)
}

func foldPair(left, right interface{}, fold bool) (string, string) {
	l, r := toString(left), toString(right)
	if fold {
		return strings.ToLower(l), strings.ToLower(r)
	}
	return l, r
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	case bool:
		return !t
	}
	if f, err := toFloat64(v); err == nil {
		return f == 0
	}
	return false
}
