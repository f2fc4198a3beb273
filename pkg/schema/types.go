package schema

import (
	"encoding/json"

	"github.com/wehubfusion/kage/pkg/document"
)

// Reserved descriptor keys. A mapping that carries any of them is a
// descriptor; any other mapping is shorthand for a properties-only descriptor.
const (
	KeyType       = "type"
	KeyRequired   = "required"
	KeyProperties = "properties"
	KeyItems      = "items"
)

// Schema is one node of a parsed schema tree. A nil or empty Schema accepts
// every document.
type Schema struct {
	// Type constrains the kind of the value. Empty means "any" for a bare
	// descriptor and "object" once Required or Properties is present.
	Type document.Kind `json:"type,omitempty"`

	// Leaf is set when the node was written as a bare type token
	Leaf bool `json:"-"`

	Required   []string    `json:"required,omitempty"`
	Properties []*Property `json:"properties,omitempty"`
	Items      *Schema     `json:"items,omitempty"`
}

// Property is a named child of an object schema. Properties keep the order
// in which the schema declared them.
type Property struct {
	Name   string  `json:"name"`
	Schema *Schema `json:"schema"`
}

// IsEmpty reports whether the schema places no constraint at all
func (s *Schema) IsEmpty() bool {
	return s == nil || (s.Type == "" && len(s.Required) == 0 && len(s.Properties) == 0 && s.Items == nil)
}

// Property returns the nested schema declared for name
func (s *Schema) Property(name string) (*Schema, bool) {
	if s == nil {
		return nil, false
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// PropertyNames lists declared properties in declaration order
func (s *Schema) PropertyNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		names = append(names, p.Name)
	}
	return names
}

// expectsObject reports whether the node requires a mapping
func (s *Schema) expectsObject() bool {
	return s.Type == document.KindObject || (s.Type == "" && (len(s.Required) > 0 || len(s.Properties) > 0))
}

// MarshalJSON renders the schema back into the descriptor notation it was
// parsed from. Leaf nodes become bare tokens.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	if s.Leaf {
		return json.Marshal(string(s.Type))
	}
	out := make(map[string]interface{})
	if s.Type != "" {
		out[KeyType] = string(s.Type)
	}
	if len(s.Required) > 0 {
		out[KeyRequired] = s.Required
	}
	if len(s.Properties) > 0 {
		props := make(map[string]*Schema, len(s.Properties))
		for _, p := range s.Properties {
			props[p.Name] = p.Schema
		}
		out[KeyProperties] = props
	}
	if s.Items != nil {
		out[KeyItems] = s.Items
	}
	return json.Marshal(out)
}

// ValidationResult collects every violation found in a document
type ValidationResult struct {
	Valid  bool               `json:"valid"`
	Errors []*ValidationError `json:"errors,omitempty"`
}

// Err returns the first violation, or nil when the document is valid
func (r *ValidationResult) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}
