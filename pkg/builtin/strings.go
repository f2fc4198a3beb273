package builtin

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wehubfusion/kage/pkg/binding"
)

func init() {
	register("upper", func(name string, opts Options) (binding.Callable, error) {
		c, err := caser(opts, cases.Upper)
		if err != nil {
			return nil, err
		}
		return unary(name, func(s string) interface{} { return c.String(s) }), nil
	})
	register("lower", func(name string, opts Options) (binding.Callable, error) {
		c, err := caser(opts, cases.Lower)
		if err != nil {
			return nil, err
		}
		return unary(name, func(s string) interface{} { return c.String(s) }), nil
	})
	register("title", func(name string, opts Options) (binding.Callable, error) {
		c, err := caser(opts, cases.Title)
		if err != nil {
			return nil, err
		}
		return unary(name, func(s string) interface{} { return c.String(s) }), nil
	})
	register("trim", func(name string, opts Options) (binding.Callable, error) {
		cutset := opts.GetString("cutset", "")
		return unary(name, func(s string) interface{} {
			if cutset == "" {
				return strings.TrimSpace(s)
			}
			return strings.Trim(s, cutset)
		}), nil
	})
	register("length", func(name string, _ Options) (binding.Callable, error) {
		return unary(name, func(s string) interface{} { return utf8.RuneCountInString(s) }), nil
	})
	register("replace", newReplace)
	register("concat", newConcat)
}

func caser(opts Options, build func(language.Tag, ...cases.Option) cases.Caser) (cases.Caser, error) {
	tag := language.Und
	if lang := opts.GetString("language", ""); lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return cases.Caser{}, &OperationError{Kind: "case", Message: fmt.Sprintf("invalid language '%s'", lang), Err: err}
		}
		tag = parsed
	}
	return build(tag), nil
}

// unary wraps a string function as a callable over one parameter, value
func unary(name string, fn func(string) interface{}) binding.Callable {
	return newCallable(name, []string{"value"}, func(args binding.Args) (interface{}, error) {
		return fn(toString(args["value"])), nil
	})
}

func newReplace(name string, opts Options) (binding.Callable, error) {
	old := opts.GetString("old", "")
	repl := opts.GetString("new", "")
	count := opts.GetInt("count", -1)
	if old == "" {
		return nil, &OperationError{Kind: "replace", Message: "option 'old' is required"}
	}

	var re *regexp.Regexp
	if opts.GetBool("regex", false) {
		var err error
		if re, err = regexp.Compile(old); err != nil {
			return nil, &OperationError{Kind: "replace", Message: fmt.Sprintf("invalid pattern '%s'", old), Err: err}
		}
	}
	return unary(name, func(s string) interface{} {
		if re != nil {
			return re.ReplaceAllString(s, repl)
		}
		return strings.Replace(s, old, repl, count)
	}), nil
}

// newConcat joins every mapped argument in parameter-name order. It accepts
// any mapping.
func newConcat(name string, opts Options) (binding.Callable, error) {
	sep := opts.GetString("separator", "")
	return newCallable(name, nil, func(args binding.Args) (interface{}, error) {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = toString(args[k])
		}
		return strings.Join(parts, sep), nil
	}), nil
}
