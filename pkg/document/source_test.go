package document

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		value    interface{}
		expected Kind
	}{
		{nil, KindNull},
		{"x", KindString},
		{true, KindBoolean},
		{42, KindInteger},
		{int64(42), KindInteger},
		{uint8(1), KindInteger},
		{json.Number("42"), KindInteger},
		{json.Number("4.5"), KindFloat},
		{json.Number("1e3"), KindFloat},
		{json.Number("99999999999999999999"), KindInteger},
		{json.Number("-99999999999999999999"), KindInteger},
		{json.Number("99999999999999999999.5"), KindFloat},
		{big.NewInt(7), KindInteger},
		{3.14, KindFloat},
		{float32(1), KindFloat},
		{[]interface{}{1}, KindArray},
		{[]string{"a"}, KindArray},
		{map[string]interface{}{}, KindObject},
		{map[string]int{}, KindObject},
		{struct{}{}, KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, KindOf(tt.value), "KindOf(%#v)", tt.value)
	}
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("float")
	assert.True(t, ok)
	assert.Equal(t, KindFloat, k)

	_, ok = ParseKind("number")
	assert.False(t, ok)
}

func TestToFloat(t *testing.T) {
	f, ok := ToFloat(json.Number("2.5"))
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	f, ok = ToFloat(uint(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = ToFloat(true)
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	t.Run("mapping is copied", func(t *testing.T) {
		src := map[string]interface{}{"user": map[string]interface{}{"name": "Alice"}}
		doc, err := ResolveMap(src)
		require.NoError(t, err)
		src["user"].(map[string]interface{})["name"] = "Bob"
		assert.Equal(t, "Alice", doc["user"].(map[string]interface{})["name"])
	})

	t.Run("json text keeps integer kinds", func(t *testing.T) {
		doc, err := ResolveMap(`{"a": 1, "b": 1.5}`)
		require.NoError(t, err)
		assert.Equal(t, KindInteger, KindOf(doc["a"]))
		assert.Equal(t, KindFloat, KindOf(doc["b"]))
	})

	t.Run("json text keeps integers beyond int64", func(t *testing.T) {
		doc, err := ResolveMap(`{"big": 99999999999999999999}`)
		require.NoError(t, err)
		assert.Equal(t, KindInteger, KindOf(doc["big"]))
	})

	t.Run("bytes and readers", func(t *testing.T) {
		doc, err := ResolveMap([]byte(`{"a": true}`))
		require.NoError(t, err)
		assert.Equal(t, true, doc["a"])

		doc, err = ResolveMap(strings.NewReader(`{"b": null}`))
		require.NoError(t, err)
		assert.Contains(t, doc, "b")
	})

	t.Run("nil is empty", func(t *testing.T) {
		doc, err := ResolveMap(nil)
		require.NoError(t, err)
		assert.Empty(t, doc)
	})

	t.Run("not a mapping", func(t *testing.T) {
		_, err := ResolveMap(`[1, 2]`)
		assert.Error(t, err)
	})

	t.Run("invalid text", func(t *testing.T) {
		_, err := Resolve("definitely not json")
		assert.Error(t, err)
	})

	t.Run("typed values are normalized", func(t *testing.T) {
		doc, err := Resolve(map[string][]string{"tags": {"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"tags": []interface{}{"a", "b"}}, doc)
	})
}

func TestResolve_Files(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		path := writeFile(t, "input.json", `{"user": {"name": "Alice"}}`)
		doc, err := ResolveMap(path)
		require.NoError(t, err)
		v, err := Get(doc, "user.name")
		require.NoError(t, err)
		assert.Equal(t, "Alice", v)
	})

	t.Run("yaml keeps key order", func(t *testing.T) {
		path := writeFile(t, "schema.yaml", "zeta: string\nalpha:\n  count: 3\n  ratio: 0.5\n")
		raw, err := NewFile(path).Raw()
		require.NoError(t, err)
		assert.JSONEq(t, `{"zeta":"string","alpha":{"count":3,"ratio":0.5}}`, string(raw))
		assert.Less(t, strings.Index(string(raw), "zeta"), strings.Index(string(raw), "alpha"))

		doc, err := ResolveMap(path)
		require.NoError(t, err)
		v, err := Get(doc, "alpha.count")
		require.NoError(t, err)
		assert.Equal(t, KindInteger, KindOf(v))
	})

	t.Run("toml", func(t *testing.T) {
		path := writeFile(t, "input.toml", "name = \"Alice\"\n\n[order]\nsubtotal = 100\n\n[[items]]\nsku = \"a\"\n")
		doc, err := ResolveMap(path)
		require.NoError(t, err)
		v, err := Get(doc, "order.subtotal")
		require.NoError(t, err)
		assert.Equal(t, KindInteger, KindOf(v))
		assert.Len(t, doc["items"], 1)
	})

	t.Run("hcl", func(t *testing.T) {
		path := writeFile(t, "input.hcl", "name = \"Alice\"\norder = {\n  subtotal = 100\n}\n")
		doc, err := ResolveMap(path)
		require.NoError(t, err)
		v, err := Get(doc, "order.subtotal")
		require.NoError(t, err)
		assert.Equal(t, json.Number("100"), v)
		assert.Equal(t, "Alice", doc["name"])
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "a: [1, 2\n")
		_, err := Resolve(path)
		assert.Error(t, err)
	})
}

func TestRawBytes(t *testing.T) {
	raw := []byte(`{"user":{"name":"Alice","e.mail":"x"},"n":1}`)

	v, err := GetBytes(raw, "user.name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)

	_, err = GetBytes(raw, "n.deeper")
	assert.ErrorIs(t, err, ErrPathNotFound)

	_, err = GetBytes(raw, "user.age")
	assert.ErrorIs(t, err, ErrPathNotFound)

	out, err := SetBytes(raw, "user.age", 30)
	require.NoError(t, err)
	v, err = GetBytes(out, "user.age")
	require.NoError(t, err)
	assert.Equal(t, float64(30), v)

	out, err = SetBytes([]byte(`{}`), "codes.7", "seven")
	require.NoError(t, err)
	assert.JSONEq(t, `{"codes":{"7":"seven"}}`, string(out))

	out, err = SetRawBytes(nil, "cfg", []byte(`{"on":true}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"cfg":{"on":true}}`, string(out))
}
