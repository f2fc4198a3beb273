package schema

import (
	"fmt"

	kerrors "github.com/wehubfusion/kage/pkg/errors"
)

// Validation error codes
const (
	CodeTypeMismatch    = "TYPE_MISMATCH"
	CodeRequired        = "REQUIRED"
	CodeUnexpectedField = "UNEXPECTED_FIELD"
)

// Schema error codes
const (
	CodeInvalidSchema = "INVALID_SCHEMA"
	CodeUnknownType   = "UNKNOWN_TYPE"
	CodeParseError    = "SCHEMA_PARSE_ERROR"
)

// SchemaError represents a malformed schema
type SchemaError struct {
	Path    string
	Message string
	Code    string
	Err     error
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	where := "schema"
	if e.Path != "" {
		where = fmt.Sprintf("schema at '%s'", e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", where, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// Unwrap returns the underlying error
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is matches the schema sentinel
func (e *SchemaError) Is(target error) bool {
	return target == kerrors.ErrSchema || target == kerrors.ErrKage
}

// NewSchemaError creates a new schema error
func NewSchemaError(path, message, code string, err error) *SchemaError {
	return &SchemaError{
		Path:    path,
		Message: message,
		Code:    code,
		Err:     err,
	}
}

// ParseError creates a schema parsing error
func ParseError(err error) *SchemaError {
	return &SchemaError{
		Message: "schema parsing failed",
		Code:    CodeParseError,
		Err:     err,
	}
}

// ValidationError is a single document violation. Path is the dot-path of the
// offending value; the empty path is the document root.
type ValidationError struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Code     string `json:"code"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	where := "root"
	if e.Path != "" {
		where = fmt.Sprintf("'%s'", e.Path)
	}
	switch e.Code {
	case CodeRequired:
		return fmt.Sprintf("validation failed at %s: required key is missing", where)
	case CodeUnexpectedField:
		return fmt.Sprintf("validation failed at %s: unexpected key", where)
	default:
		return fmt.Sprintf("validation failed at %s: expected %s, got %s", where, e.Expected, e.Actual)
	}
}

// Is matches the validation sentinel
func (e *ValidationError) Is(target error) bool {
	return target == kerrors.ErrValidation || target == kerrors.ErrKage
}
