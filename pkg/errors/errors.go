package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrKage is the root of every error raised by the engine
	ErrKage = errors.New("kage error")

	// ErrSchema indicates a malformed schema
	ErrSchema = fmt.Errorf("%w: schema", ErrKage)

	// ErrValidation indicates a document that does not conform to its schema
	ErrValidation = fmt.Errorf("%w: validation", ErrKage)

	// ErrExecution indicates a failure while building or running the binding graph
	ErrExecution = fmt.Errorf("%w: execution", ErrKage)

	// ErrCircularOrMissing indicates a dependency cycle or an unresolvable reference
	ErrCircularOrMissing = fmt.Errorf("%w: circular or missing dependency", ErrExecution)

	// ErrInvalidBinding indicates a registration that cannot be run
	ErrInvalidBinding = fmt.Errorf("%w: invalid binding", ErrExecution)

	// ErrNotExecuted indicates a result lookup for a binding that has not run
	ErrNotExecuted = errors.New("binding has not been executed")
)

// Error represents a structured engine error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports every structured error as an ErrKage
func (e *Error) Is(target error) bool {
	return target == ErrKage
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// BindingFailure is the failure of a single binding during a run.
type BindingFailure struct {
	Binding string
	Param   string
	Err     error
}

func (f *BindingFailure) Error() string {
	if f.Param != "" {
		return fmt.Sprintf("error executing function '%s' (parameter '%s'): %v", f.Binding, f.Param, f.Err)
	}
	return fmt.Sprintf("error executing function '%s': %v", f.Binding, f.Err)
}

func (f *BindingFailure) Unwrap() error {
	return f.Err
}

// ExecutionError is raised for graph problems and callable failures. When
// several bindings of one level fail, all of them are carried in Failures.
type ExecutionError struct {
	// Kind optionally narrows the error to a more specific sentinel such as
	// ErrCircularOrMissing. It is matched by Is but not printed.
	Kind     error
	Message  string
	Bindings []string
	Failures []*BindingFailure
	Err      error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Bindings) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Bindings, ", "))
		b.WriteString("]")
	}
	if len(e.Failures) > 0 {
		parts := make([]string, 0, len(e.Failures))
		for _, f := range e.Failures {
			parts = append(parts, f.Error())
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, "; "))
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes every cause so errors.Is and errors.As see through aggregates
func (e *ExecutionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Is matches ErrExecution and its ancestors
func (e *ExecutionError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return target == ErrExecution || target == ErrKage
}

// NewExecutionError builds an ExecutionError naming the given bindings
func NewExecutionError(message string, err error, bindings ...string) *ExecutionError {
	return &ExecutionError{
		Message:  message,
		Bindings: bindings,
		Err:      err,
	}
}

// NewGraphError builds the error raised for cycles and unresolvable references
func NewGraphError(detail string, bindings ...string) *ExecutionError {
	return &ExecutionError{
		Kind:     ErrCircularOrMissing,
		Message:  "circular or missing dependency: " + detail,
		Bindings: bindings,
	}
}

// NewFailureError aggregates binding failures. Binding names are sorted so the
// message does not depend on completion order.
func NewFailureError(failures []*BindingFailure) *ExecutionError {
	sorted := make([]*BindingFailure, len(failures))
	copy(sorted, failures)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding })

	names := make([]string, 0, len(sorted))
	for _, f := range sorted {
		names = append(names, f.Binding)
	}
	msg := "binding execution failed"
	if len(sorted) > 1 {
		msg = fmt.Sprintf("%d bindings failed", len(sorted))
	}
	return &ExecutionError{
		Message:  msg,
		Bindings: names,
		Failures: sorted,
	}
}

// FailedBindings returns the binding names carried by an ExecutionError in err's chain
func FailedBindings(err error) []string {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Bindings
	}
	return nil
}

// IsExecution checks if an error is an execution error
func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsSchema checks if an error is a schema error
func IsSchema(err error) bool {
	return errors.Is(err, ErrSchema)
}
