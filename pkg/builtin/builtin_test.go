package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/kage/pkg/binding"
)

func call(t *testing.T, kind string, opts Options, args binding.Args) (interface{}, error) {
	t.Helper()
	c, err := New(kind, "", opts)
	require.NoError(t, err)
	assert.Equal(t, kind, c.Name())
	return c.Call(context.Background(), args)
}

func TestKinds(t *testing.T) {
	kinds := Kinds()
	for _, k := range []string{"upper", "lower", "title", "trim", "length", "replace", "concat",
		"compare", "is_empty", "format_date", "constant", "pick", "coalesce"} {
		assert.Contains(t, kinds, k)
	}
	_, err := New("teleport", "x", nil)
	assert.ErrorContains(t, err, "unknown builtin 'teleport'")
}

func TestStrings(t *testing.T) {
	tests := []struct {
		kind string
		opts Options
		in   interface{}
		want interface{}
	}{
		{"upper", nil, "straße", "STRASSE"},
		{"lower", nil, "HeLLo", "hello"},
		{"title", nil, "hello wide world", "Hello Wide World"},
		{"trim", nil, "  padded \n", "padded"},
		{"trim", Options{"cutset": "-"}, "--x--", "x"},
		{"length", nil, "héllo", 5},
		{"replace", Options{"old": "a", "new": "o"}, "banana", "bonono"},
		{"replace", Options{"old": "a", "new": "o", "count": 1}, "banana", "bonana"},
		{"replace", Options{"old": `\d+`, "new": "#", "regex": true}, "a1b22", "a#b#"},
		{"upper", nil, json.Number("12"), "12"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, err := call(t, tt.kind, tt.opts, binding.Args{"value": tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTitleWithLanguage(t *testing.T) {
	got, err := call(t, "upper", Options{"language": "tr"}, binding.Args{"value": "istanbul"})
	require.NoError(t, err)
	assert.Equal(t, "İSTANBUL", got)

	_, err = New("upper", "", Options{"language": "not a tag!"})
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "case", opErr.Kind)
}

func TestReplaceOptions(t *testing.T) {
	_, err := New("replace", "r", Options{})
	assert.ErrorContains(t, err, "option 'old' is required")

	_, err = New("replace", "r", Options{"old": "(", "regex": true})
	assert.ErrorContains(t, err, "invalid pattern")
}

func TestConcat(t *testing.T) {
	c, err := New("concat", "full_name", Options{"separator": " "})
	require.NoError(t, err)
	assert.Nil(t, c.Params())
	assert.Equal(t, "full_name", c.Name())

	got, err := c.Call(context.Background(), binding.Args{"b_last": "Liddell", "a_first": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", got)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		op    Operator
		fold  bool
		left  interface{}
		right interface{}
		want  bool
	}{
		{OpEquals, false, 3, 3.0, true},
		{OpEquals, false, json.Number("3"), 3, true},
		{OpEquals, false, "a", "A", false},
		{OpEquals, true, "a", "A", true},
		{OpEquals, false, nil, nil, true},
		{OpNotEquals, false, "a", "b", true},
		{OpGreaterThan, false, 10, 2, true},
		{OpLessThanOrEqual, false, "2", 2, true},
		{OpGreaterThan, false, nil, 1, false},
		{OpContains, true, "Hello World", "world", true},
		{OpStartsWith, false, "kage", "ka", true},
		{OpEndsWith, false, "kage", "ka", false},
		{OpRegex, false, "order-42", `^order-\d+$`, true},
		{OpIn, false, "b", []interface{}{"a", "b"}, true},
		{OpNotIn, false, "c", []interface{}{"a", "b"}, true},
		{OpIn, false, "c", nil, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got, err := call(t, "compare", Options{"operator": string(tt.op), "case_insensitive": tt.fold},
				binding.Args{"left": tt.left, "right": tt.right})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareErrors(t *testing.T) {
	_, err := New("compare", "c", Options{"operator": "roughly"})
	assert.ErrorContains(t, err, "unsupported operator 'roughly'")

	_, err = call(t, "compare", Options{"operator": "greater_than"}, binding.Args{"left": "x", "right": 1})
	assert.ErrorContains(t, err, "left value is not a number")

	_, err = call(t, "compare", Options{"operator": "in"}, binding.Args{"left": "x", "right": "xyz"})
	assert.ErrorContains(t, err, "needs a sequence")
}

func TestIsEmpty(t *testing.T) {
	for _, v := range []interface{}{nil, "", []interface{}{}, map[string]interface{}{}, false, 0, json.Number("0")} {
		got, err := call(t, "is_empty", nil, binding.Args{"value": v})
		require.NoError(t, err)
		assert.Equal(t, true, got, "%#v", v)
	}
	got, err := call(t, "is_empty", nil, binding.Args{"value": "x"})
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestFormatDate(t *testing.T) {
	got, err := call(t, "format_date", Options{"in_format": "DateOnly", "out_format": "02/01/2006"},
		binding.Args{"value": "20240315"})
	require.NoError(t, err)
	assert.Equal(t, "15/03/2024", got)

	got, err = call(t, "format_date", Options{"in_format": "DateTime", "out_format": "RFC3339", "in_timezone": "UTC"},
		binding.Args{"value": "2024-03-15 10:30"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15T10:30:00Z", got)

	got, err = call(t, "format_date", nil, binding.Args{"value": "  "})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = call(t, "format_date", Options{"in_format": "DateOnly"}, binding.Args{"value": "yesterday"})
	assert.ErrorContains(t, err, "does not match DateOnly")

	_, err = New("format_date", "d", Options{"out_timezone": "Mars/Olympus"})
	assert.ErrorContains(t, err, "invalid output timezone")
}

func TestConstantPickCoalesce(t *testing.T) {
	c, err := New("constant", "version", Options{"value": map[string]interface{}{"major": 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{}, c.Params())
	got, err := c.Call(context.Background(), binding.Args{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"major": 1}, got)

	doc := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"sku": "a", "qty": 2},
			map[string]interface{}{"sku": "b", "qty": 5},
		},
	}
	got, err = call(t, "pick", Options{"path": "items.#.sku"}, binding.Args{"value": doc})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, got)

	got, err = call(t, "pick", Options{"path": "items.9"}, binding.Args{"value": doc})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = New("pick", "p", nil)
	assert.ErrorContains(t, err, "option 'path' is required")

	got, err = call(t, "coalesce", Options{"fallback": "n/a"}, binding.Args{"value": nil})
	require.NoError(t, err)
	assert.Equal(t, "n/a", got)
	got, err = call(t, "coalesce", Options{"fallback": "n/a"}, binding.Args{"value": "set"})
	require.NoError(t, err)
	assert.Equal(t, "set", got)
}
