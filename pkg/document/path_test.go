package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sampleDoc() map[string]interface{} {
	return map[string]interface{}{
		"name": "Alice",
		"order": map[string]interface{}{
			"subtotal": 100,
			"tax":      map[string]interface{}{"rate": 0.1},
		},
		"tags": []interface{}{"a", "b"},
	}
}

func TestGet(t *testing.T) {
	doc := sampleDoc()

	tests := []struct {
		name     string
		path     string
		expected interface{}
		wantErr  bool
	}{
		{name: "top level", path: "name", expected: "Alice"},
		{name: "nested", path: "order.subtotal", expected: 100},
		{name: "deep", path: "order.tax.rate", expected: 0.1},
		{name: "empty path is the document", path: "", expected: doc},
		{name: "missing key", path: "order.total", wantErr: true},
		{name: "through scalar", path: "name.first", wantErr: true},
		{name: "array index not supported", path: "tags.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Get(doc, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrPathNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestGet_ErrorNamesSegment(t *testing.T) {
	_, err := Get(sampleDoc(), "order.missing.deeper")
	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "missing", pe.Segment)
	assert.Equal(t, "order.missing.deeper", pe.Path)
}

func TestSet(t *testing.T) {
	t.Run("creates intermediates", func(t *testing.T) {
		doc := map[string]interface{}{}
		Set(doc, "result.greeting", "Hello")
		assert.Equal(t, map[string]interface{}{
			"result": map[string]interface{}{"greeting": "Hello"},
		}, doc)
	})

	t.Run("overwrites leaf", func(t *testing.T) {
		doc := sampleDoc()
		Set(doc, "order.subtotal", 200)
		v, err := Get(doc, "order.subtotal")
		require.NoError(t, err)
		assert.Equal(t, 200, v)
	})

	t.Run("replaces scalar intermediate", func(t *testing.T) {
		doc := sampleDoc()
		Set(doc, "name.first", "Al")
		v, err := Get(doc, "name.first")
		require.NoError(t, err)
		assert.Equal(t, "Al", v)
	})

	t.Run("keeps siblings", func(t *testing.T) {
		doc := sampleDoc()
		Set(doc, "order.total", 110.0)
		assert.True(t, Exists(doc, "order.subtotal"))
		assert.True(t, Exists(doc, "order.total"))
	})

	t.Run("empty path is a no-op", func(t *testing.T) {
		doc := sampleDoc()
		Set(doc, "", "x")
		assert.Equal(t, sampleDoc(), doc)
	})
}

func TestDelete(t *testing.T) {
	doc := sampleDoc()
	assert.True(t, Delete(doc, "order.tax"))
	assert.False(t, Exists(doc, "order.tax"))
	assert.False(t, Delete(doc, "order.tax"))
	assert.False(t, Delete(doc, "name.first"))
}

func TestSetGetRoundTrip(t *testing.T) {
	segment := rapid.StringMatching(`[a-c]{1,2}`)
	path := rapid.Custom(func(t *rapid.T) string {
		return strings.Join(rapid.SliceOfN(segment, 1, 4).Draw(t, "segments"), ".")
	})
	scalar := rapid.OneOf(
		rapid.Just[interface{}](nil),
		rapid.Map(rapid.Int(), func(i int) interface{} { return i }),
		rapid.Map(rapid.String(), func(s string) interface{} { return s }),
		rapid.Map(rapid.Bool(), func(b bool) interface{} { return b }),
	)

	rapid.Check(t, func(t *rapid.T) {
		doc := map[string]interface{}{}
		for i, n := 0, rapid.IntRange(0, 6).Draw(t, "prefill"); i < n; i++ {
			Set(doc, path.Draw(t, "prefill_path"), scalar.Draw(t, "prefill_value"))
		}

		p := path.Draw(t, "path")
		v := scalar.Draw(t, "value")
		Set(doc, p, v)

		got, err := Get(doc, p)
		if err != nil {
			t.Fatalf("Get(%q) after Set: %v", p, err)
		}
		if got != v {
			t.Fatalf("Get(%q) = %v, want %v", p, got, v)
		}
	})
}
