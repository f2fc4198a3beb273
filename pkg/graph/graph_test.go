package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wehubfusion/kage/pkg/binding"
	kerrors "github.com/wehubfusion/kage/pkg/errors"
)

func noop(name string, params ...string) binding.Callable {
	return binding.Func(name, params, func(ctx context.Context, args binding.Args) (interface{}, error) {
		return nil, nil
	})
}

type spec struct {
	name   string
	inputs map[string]string
	deps   []string
}

func bindings(t *testing.T, specs ...spec) []*binding.Binding {
	t.Helper()
	r := binding.NewRegistry()
	for _, s := range specs {
		params := make([]string, 0, len(s.inputs))
		for p := range s.inputs {
			params = append(params, p)
		}
		r.Register(noop(s.name, params...), s.inputs, binding.DependsOn(s.deps...))
	}
	require.NoError(t, r.Err())
	return r.Bindings()
}

var input = map[string]interface{}{
	"user":  map[string]interface{}{"name": "Alice"},
	"order": map[string]interface{}{"subtotal": 100},
}

func TestBuild_DiamondLevels(t *testing.T) {
	bs := bindings(t,
		spec{name: "d", inputs: map[string]string{"x": "b", "y": "c"}},
		spec{name: "b", inputs: map[string]string{"x": "a"}},
		spec{name: "c", inputs: map[string]string{"x": "a"}},
		spec{name: "a", inputs: map[string]string{"x": "order.subtotal"}},
	)
	g, err := Build(bs, input)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, Names(g.Order()))

	levels := g.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"a"}, Names(levels[0]))
	assert.Equal(t, []string{"b", "c"}, Names(levels[1]))
	assert.Equal(t, []string{"d"}, Names(levels[2]))

	assert.Equal(t, []string{"b", "c"}, g.Dependencies("d"))
}

func TestBuild_TiesFollowRegistrationOrder(t *testing.T) {
	bs := bindings(t,
		spec{name: "zeta", inputs: map[string]string{"n": "user.name"}},
		spec{name: "alpha", inputs: map[string]string{"n": "user.name"}},
		spec{name: "mid", inputs: map[string]string{"n": "user.name"}},
	)
	g, err := Build(bs, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, Names(g.Order()))
	assert.Len(t, g.Levels(), 1)
}

func TestBuild_BindingNameWinsOverPath(t *testing.T) {
	bs := bindings(t,
		spec{name: "user", inputs: map[string]string{"n": "order.subtotal"}},
		spec{name: "reader", inputs: map[string]string{"u": "user"}},
	)
	g, err := Build(bs, input)
	require.NoError(t, err)

	n, ok := g.Node("reader")
	require.True(t, ok)
	require.Len(t, n.Sources, 1)
	assert.True(t, n.Sources[0].FromBinding)
	assert.Equal(t, 1, n.Level)
}

func TestBuild_ExplicitDependency(t *testing.T) {
	bs := bindings(t,
		spec{name: "second", inputs: map[string]string{}, deps: []string{"first"}},
		spec{name: "first", inputs: map[string]string{}},
	)
	g, err := Build(bs, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, Names(g.Order()))
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name  string
		specs []spec
		want  string
	}{
		{
			name:  "missing path",
			specs: []spec{{name: "a", inputs: map[string]string{"x": "user.email"}}},
			want:  "unknown source 'user.email'",
		},
		{
			name:  "missing dependency",
			specs: []spec{{name: "a", inputs: map[string]string{}, deps: []string{"ghost"}}},
			want:  "unknown binding 'ghost'",
		},
		{
			name:  "self reference",
			specs: []spec{{name: "a", inputs: map[string]string{"x": "a"}}},
			want:  "cycle a -> a",
		},
		{
			name: "two node cycle",
			specs: []spec{
				{name: "a", inputs: map[string]string{"x": "b"}},
				{name: "b", inputs: map[string]string{"x": "a"}},
			},
			want: "cycle a -> b -> a",
		},
		{
			name: "cycle through explicit dependency",
			specs: []spec{
				{name: "a", inputs: map[string]string{"x": "b"}},
				{name: "b", inputs: map[string]string{}, deps: []string{"a"}},
			},
			want: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(bindings(t, tt.specs...), input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, kerrors.ErrCircularOrMissing))
			assert.True(t, errors.Is(err, kerrors.ErrExecution))
			assert.Contains(t, err.Error(), "circular or missing dependency")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_Empty(t *testing.T) {
	g, err := Build(nil, input)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Order())
	assert.Empty(t, g.Levels())
}

func TestBuild_CycleDetectedInAnyRegistrationOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		extra := rapid.IntRange(0, 5).Draw(t, "extra")
		specs := []spec{
			{name: "p", inputs: map[string]string{"x": "q"}},
			{name: "q", inputs: map[string]string{"x": "p"}},
		}
		for i := 0; i < extra; i++ {
			specs = append(specs, spec{name: fmt.Sprintf("n%d", i), inputs: map[string]string{"x": "user.name"}})
		}
		perm := rapid.Permutation(specs).Draw(t, "order")

		r := binding.NewRegistry()
		for _, s := range perm {
			r.Register(noop(s.name, "x"), s.inputs)
		}
		_, err := Build(r.Bindings(), input)
		if !errors.Is(err, kerrors.ErrCircularOrMissing) {
			t.Fatalf("expected cycle error, got %v", err)
		}
	})
}

func TestLevels_RespectDependencies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		r := binding.NewRegistry()
		for i := 0; i < n; i++ {
			inputs := map[string]string{}
			params := []string{}
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", j, i)) {
					p := fmt.Sprintf("p%d", j)
					inputs[p] = fmt.Sprintf("b%d", j)
					params = append(params, p)
				}
			}
			r.Register(noop(fmt.Sprintf("b%d", i), params...), inputs)
		}
		g, err := Build(r.Bindings(), input)
		if err != nil {
			t.Fatalf("acyclic graph rejected: %v", err)
		}
		for k, level := range g.Levels() {
			for _, node := range level {
				if node.Level != k {
					t.Fatalf("node %s at level %d reports %d", node.Binding.Name, k, node.Level)
				}
				for _, d := range node.Deps {
					if g.NodeAt(d).Level >= k {
						t.Fatalf("node %s depends on %s in a later or equal level", node.Binding.Name, g.NodeAt(d).Binding.Name)
					}
				}
			}
		}
	})
}
