// Package graph derives the dependency graph of a set of bindings and
// schedules it.
package graph

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/wehubfusion/kage/pkg/binding"
	"github.com/wehubfusion/kage/pkg/document"
	kerrors "github.com/wehubfusion/kage/pkg/errors"
)

// Source is one parameter's resolved reference
type Source struct {
	Param string
	Ref   string

	// FromBinding is set when Ref names a binding; otherwise Ref is a path
	// into the input document
	FromBinding bool
}

// Node is a binding together with its edges. Dependency and dependent lists
// hold registration indices in ascending order.
type Node struct {
	// Index is the node's position in the graph, equal to its registration
	// position among the built bindings
	Index      int
	Binding    *binding.Binding
	Sources    []Source
	Deps       []int
	Dependents []int
	Level      int
}

// Graph is an acyclic, fully resolved binding graph
type Graph struct {
	nodes  []*Node
	byName map[string]int
	order  []int
	levels [][]int
}

// Build derives edges from input mappings and explicit dependencies, then
// proves the graph acyclic. Every reference must name a binding or an
// existing input path.
func Build(bindings []*binding.Binding, input interface{}) (*Graph, error) {
	g := &Graph{
		nodes:  make([]*Node, len(bindings)),
		byName: make(map[string]int, len(bindings)),
	}
	for i, b := range bindings {
		g.nodes[i] = &Node{Index: i, Binding: b}
		g.byName[b.Name] = i
	}

	for i, n := range g.nodes {
		deps := make(map[int]bool)
		b := n.Binding
		for _, param := range b.ParamNames() {
			ref := b.Inputs[param]
			if j, ok := g.byName[ref]; ok {
				n.Sources = append(n.Sources, Source{Param: param, Ref: ref, FromBinding: true})
				deps[j] = true
				continue
			}
			if !document.Exists(input, ref) {
				return nil, kerrors.NewGraphError(
					fmt.Sprintf("binding '%s' parameter '%s' references unknown source '%s'", b.Name, param, ref), b.Name)
			}
			n.Sources = append(n.Sources, Source{Param: param, Ref: ref})
		}
		for _, dep := range b.DependsOn {
			j, ok := g.byName[dep]
			if !ok {
				return nil, kerrors.NewGraphError(
					fmt.Sprintf("binding '%s' depends on unknown binding '%s'", b.Name, dep), b.Name)
			}
			deps[j] = true
		}
		for j := range deps {
			n.Deps = append(n.Deps, j)
			g.nodes[j].Dependents = append(g.nodes[j].Dependents, i)
		}
		sort.Ints(n.Deps)
	}
	for _, n := range g.nodes {
		sort.Ints(n.Dependents)
	}

	g.order = g.topoOrder()
	if len(g.order) != len(g.nodes) {
		cycle := g.findCycle()
		return nil, kerrors.NewGraphError("cycle "+strings.Join(cycle, " -> "), uniqueNames(cycle)...)
	}
	g.levels = g.computeLevels()
	return g, nil
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with the ready set keyed on registration index
func (g *Graph) topoOrder() []int {
	indeg := make([]int, len(g.nodes))
	ready := &intMinHeap{}
	for i, n := range g.nodes {
		indeg[i] = len(n.Deps)
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(g.nodes))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		out = append(out, i)
		for _, j := range g.nodes[i].Dependents {
			indeg[j]--
			if indeg[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}
	return out
}

// findCycle returns one cycle as binding names, first name repeated at the end
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.nodes[u].Dependents {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}
	for i := range g.nodes {
		if color[i] == white && dfs(i) {
			break
		}
	}

	names := make([]string, len(cycle))
	for i := range cycle {
		names[i] = g.nodes[cycle[len(cycle)-1-i]].Binding.Name
	}
	return names
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// computeLevels places every node one level after its deepest dependency
func (g *Graph) computeLevels() [][]int {
	var levels [][]int
	for _, i := range g.order {
		n := g.nodes[i]
		level := 0
		for _, d := range n.Deps {
			if l := g.nodes[d].Level + 1; l > level {
				level = l
			}
		}
		n.Level = level
		for len(levels) <= level {
			levels = append(levels, nil)
		}
		levels[level] = append(levels[level], i)
	}
	for _, l := range levels {
		sort.Ints(l)
	}
	return levels
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node for a binding name
func (g *Graph) Node(name string) (*Node, bool) {
	i, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// NodeAt returns the node with the given registration index
func (g *Graph) NodeAt(i int) *Node {
	return g.nodes[i]
}

// Order returns nodes in topological order, ties broken by registration order
func (g *Graph) Order() []*Node {
	out := make([]*Node, len(g.order))
	for k, i := range g.order {
		out[k] = g.nodes[i]
	}
	return out
}

// Levels returns level sets: level k holds every node whose dependencies all
// sit in earlier levels. Members are in registration order.
func (g *Graph) Levels() [][]*Node {
	out := make([][]*Node, len(g.levels))
	for k, level := range g.levels {
		out[k] = make([]*Node, len(level))
		for m, i := range level {
			out[k][m] = g.nodes[i]
		}
	}
	return out
}

// Names returns binding names for a list of nodes
func Names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Binding.Name
	}
	return out
}

// Dependencies returns the names a binding waits for
func (g *Graph) Dependencies(name string) []string {
	n, ok := g.Node(name)
	if !ok {
		return nil
	}
	out := make([]string, len(n.Deps))
	for k, d := range n.Deps {
		out[k] = g.nodes[d].Binding.Name
	}
	return out
}
