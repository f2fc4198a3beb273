package schema

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/wehubfusion/kage/pkg/document"
)

// Parser handles parsing of schema definitions
type Parser struct{}

// NewParser creates a new schema parser
func NewParser() *Parser {
	return &Parser{}
}

// node is a schema definition with mapping keys in declaration order
type node struct {
	kind  document.Kind
	str   string
	keys  []string
	vals  map[string]*node
	items []*node
}

// Parse accepts a parsed *Schema, a bare type token, a Go document or any
// source understood by document.Raw. JSON sources keep their key order; Go
// mappings are read in sorted key order.
func (p *Parser) Parse(src interface{}) (*Schema, error) {
	switch s := src.(type) {
	case nil:
		return &Schema{}, nil
	case *Schema:
		return s, nil
	case string:
		if _, ok := document.ParseKind(s); ok {
			return p.parseNode(&node{kind: document.KindString, str: s}, "")
		}
	}

	raw, ok, err := document.Raw(src)
	if err != nil {
		return nil, ParseError(err)
	}
	if ok {
		return p.ParseBytes(raw)
	}
	return p.parseNode(fromValue(document.Normalize(src)), "")
}

// ParseBytes parses a schema written as JSON text
func (p *Parser) ParseBytes(raw []byte) (*Schema, error) {
	if len(raw) == 0 {
		return &Schema{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, ParseError(fmt.Errorf("invalid JSON"))
	}
	return p.parseNode(fromResult(gjson.ParseBytes(raw)), "")
}

func fromResult(r gjson.Result) *node {
	switch {
	case r.IsObject():
		n := &node{kind: document.KindObject, vals: make(map[string]*node)}
		r.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if _, dup := n.vals[k]; !dup {
				n.keys = append(n.keys, k)
			}
			n.vals[k] = fromResult(value)
			return true
		})
		return n
	case r.IsArray():
		n := &node{kind: document.KindArray}
		for _, item := range r.Array() {
			n.items = append(n.items, fromResult(item))
		}
		return n
	case r.Type == gjson.String:
		return &node{kind: document.KindString, str: r.String()}
	case r.Type == gjson.Null:
		return &node{kind: document.KindNull}
	case r.Type == gjson.True || r.Type == gjson.False:
		return &node{kind: document.KindBoolean, str: r.Raw}
	default:
		return &node{kind: document.KindFloat, str: r.Raw}
	}
}

func fromValue(v interface{}) *node {
	switch t := v.(type) {
	case map[string]interface{}:
		n := &node{kind: document.KindObject, vals: make(map[string]*node, len(t))}
		for k := range t {
			n.keys = append(n.keys, k)
		}
		sort.Strings(n.keys)
		for _, k := range n.keys {
			n.vals[k] = fromValue(t[k])
		}
		return n
	case []interface{}:
		n := &node{kind: document.KindArray}
		for _, item := range t {
			n.items = append(n.items, fromValue(item))
		}
		return n
	case string:
		return &node{kind: document.KindString, str: t}
	default:
		return &node{kind: document.KindOf(v), str: fmt.Sprint(v)}
	}
}

func (p *Parser) parseNode(n *node, path string) (*Schema, error) {
	switch n.kind {
	case document.KindString:
		kind, ok := document.ParseKind(n.str)
		if !ok {
			return nil, NewSchemaError(path, fmt.Sprintf("unknown type '%s'", n.str), CodeUnknownType, nil)
		}
		return &Schema{Type: kind, Leaf: true}, nil
	case document.KindObject:
		if isDescriptor(n) {
			return p.parseDescriptor(n, path)
		}
		return p.parseShorthand(n, path)
	default:
		return nil, NewSchemaError(path, fmt.Sprintf("entry must be a type name or a mapping, got %s", n.kind), CodeInvalidSchema, nil)
	}
}

func isReserved(key string) bool {
	switch key {
	case KeyType, KeyRequired, KeyProperties, KeyItems:
		return true
	}
	return false
}

// isDescriptor reports whether n is read as a descriptor: it declares
// 'properties', or every key it has is reserved.
func isDescriptor(n *node) bool {
	if len(n.keys) == 0 {
		return false
	}
	if _, ok := n.vals[KeyProperties]; ok {
		return true
	}
	for _, k := range n.keys {
		if !isReserved(k) {
			return false
		}
	}
	return true
}

// parseShorthand reads a mapping of key to entry. A 'required' sequence keeps
// its meaning; every other key, 'type' and 'items' included, names a property.
func (p *Parser) parseShorthand(n *node, path string) (*Schema, error) {
	s := &Schema{}
	props := &node{kind: document.KindObject, vals: make(map[string]*node, len(n.keys))}
	for _, k := range n.keys {
		if k == KeyRequired {
			required, err := parseRequired(n.vals[k], path)
			if err != nil {
				return nil, err
			}
			s.Required = required
			continue
		}
		props.keys = append(props.keys, k)
		props.vals[k] = n.vals[k]
	}
	var err error
	if s.Properties, err = p.parseProperties(props, path); err != nil {
		return nil, err
	}
	return s, nil
}

func parseRequired(r *node, path string) ([]string, error) {
	if r.kind != document.KindArray {
		return nil, NewSchemaError(path, "'required' must be a sequence of key names", CodeInvalidSchema, nil)
	}
	out := make([]string, 0, len(r.items))
	for _, item := range r.items {
		if item.kind != document.KindString {
			return nil, NewSchemaError(path, "'required' must be a sequence of key names", CodeInvalidSchema, nil)
		}
		out = append(out, item.str)
	}
	return out, nil
}

func (p *Parser) parseDescriptor(n *node, path string) (*Schema, error) {
	s := &Schema{}

	if t, ok := n.vals[KeyType]; ok {
		if t.kind != document.KindString {
			return nil, NewSchemaError(path, "'type' must be a type name", CodeInvalidSchema, nil)
		}
		kind, known := document.ParseKind(t.str)
		if !known {
			return nil, NewSchemaError(path, fmt.Sprintf("unknown type '%s'", t.str), CodeUnknownType, nil)
		}
		s.Type = kind
	}

	if r, ok := n.vals[KeyRequired]; ok {
		required, err := parseRequired(r, path)
		if err != nil {
			return nil, err
		}
		s.Required = required
	}

	for _, k := range n.keys {
		if !isReserved(k) {
			return nil, NewSchemaError(path, fmt.Sprintf("unknown key '%s' beside 'properties'", k), CodeInvalidSchema, nil)
		}
	}

	if pr, ok := n.vals[KeyProperties]; ok {
		if pr.kind != document.KindObject {
			return nil, NewSchemaError(path, "'properties' must be a mapping", CodeInvalidSchema, nil)
		}
		props, err := p.parseProperties(pr, path)
		if err != nil {
			return nil, err
		}
		s.Properties = props
	}

	if it, ok := n.vals[KeyItems]; ok {
		if s.Type != "" && s.Type != document.KindArray {
			return nil, NewSchemaError(path, fmt.Sprintf("'items' is only allowed on arrays, not %s", s.Type), CodeInvalidSchema, nil)
		}
		items, err := p.parseNode(it, path+"[]")
		if err != nil {
			return nil, err
		}
		s.Type = document.KindArray
		s.Items = items
	}

	if (len(s.Required) > 0 || len(s.Properties) > 0) && s.Type != "" && s.Type != document.KindObject {
		return nil, NewSchemaError(path, fmt.Sprintf("'required' and 'properties' need an object, not %s", s.Type), CodeInvalidSchema, nil)
	}
	return s, nil
}

func (p *Parser) parseProperties(n *node, path string) ([]*Property, error) {
	props := make([]*Property, 0, len(n.keys))
	for _, key := range n.keys {
		child, err := p.parseNode(n.vals[key], joinPath(path, key))
		if err != nil {
			return nil, err
		}
		props = append(props, &Property{Name: key, Schema: child})
	}
	return props, nil
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + document.Separator + key
}
