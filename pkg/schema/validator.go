package schema

import (
	"fmt"
	"sort"

	"github.com/wehubfusion/kage/pkg/document"
)

// Validator validates documents against parsed schemas
type Validator struct {
	strict bool
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithStrict rejects mapping keys the schema does not declare
func WithStrict(strict bool) ValidatorOption {
	return func(v *Validator) {
		v.strict = strict
	}
}

// NewValidator creates a new schema validator
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns the first violation in schema order, or nil
func (v *Validator) Validate(data interface{}, schema *Schema) error {
	var first *ValidationError
	v.walk(data, schema, "", func(e *ValidationError) bool {
		first = e
		return false
	})
	if first != nil {
		return first
	}
	return nil
}

// ValidateAll reports every violation instead of stopping at the first
func (v *Validator) ValidateAll(data interface{}, schema *Schema) *ValidationResult {
	result := &ValidationResult{Valid: true}
	v.walk(data, schema, "", func(e *ValidationError) bool {
		result.Errors = append(result.Errors, e)
		return true
	})
	result.Valid = len(result.Errors) == 0
	return result
}

// walk reports violations to emit and stops as soon as emit returns false.
// The return value tells callers whether to keep going.
func (v *Validator) walk(data interface{}, s *Schema, path string, emit func(*ValidationError) bool) bool {
	if s.IsEmpty() {
		return true
	}

	actual := document.KindOf(data)

	if s.Type != "" && !s.expectsObject() {
		if !compatible(s.Type, actual) {
			return emit(&ValidationError{Path: path, Expected: string(s.Type), Actual: string(actual), Code: CodeTypeMismatch})
		}
		if s.Items != nil {
			return v.walkItems(data, s.Items, path, emit)
		}
		return true
	}

	m, ok := data.(map[string]interface{})
	if !ok {
		return emit(&ValidationError{Path: path, Expected: string(document.KindObject), Actual: string(actual), Code: CodeTypeMismatch})
	}

	for _, key := range s.Required {
		if _, present := m[key]; !present {
			if !emit(&ValidationError{Path: joinPath(path, key), Expected: "present", Actual: "missing", Code: CodeRequired}) {
				return false
			}
		}
	}

	for _, prop := range s.Properties {
		value, present := m[prop.Name]
		if !present {
			continue
		}
		if !v.walk(value, prop.Schema, joinPath(path, prop.Name), emit) {
			return false
		}
	}

	if v.strict {
		extras := make([]string, 0)
		for key := range m {
			if _, declared := s.Property(key); declared || contains(s.Required, key) {
				continue
			}
			extras = append(extras, key)
		}
		sort.Strings(extras)
		for _, key := range extras {
			if !emit(&ValidationError{Path: joinPath(path, key), Expected: "absent", Actual: string(document.KindOf(m[key])), Code: CodeUnexpectedField}) {
				return false
			}
		}
	}
	return true
}

func (v *Validator) walkItems(data interface{}, items *Schema, path string, emit func(*ValidationError) bool) bool {
	list, ok := data.([]interface{})
	if !ok {
		list, _ = document.Normalize(data).([]interface{})
	}
	for i, item := range list {
		if !v.walk(item, items, fmt.Sprintf("%s[%d]", path, i), emit) {
			return false
		}
	}
	return true
}

// compatible applies the leaf compatibility table: float also accepts
// integers, every other token needs an exact kind.
func compatible(expected, actual document.Kind) bool {
	if expected == actual {
		return true
	}
	return expected == document.KindFloat && actual == document.KindInteger
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
