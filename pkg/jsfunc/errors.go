package jsfunc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// ErrorType categorizes script failures
type ErrorType string

const (
	ErrorTypeSyntax   ErrorType = "syntax_error"
	ErrorTypeRuntime  ErrorType = "runtime_error"
	ErrorTypeTimeout  ErrorType = "timeout_error"
	ErrorTypeSecurity ErrorType = "security_error"
	ErrorTypeInternal ErrorType = "internal_error"
)

// JSError is a structured script failure
type JSError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Stack   string    `json:"stack,omitempty"`
	Err     error     `json:"-"`
}

// Error implements the error interface
func (e *JSError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the cause, such as a context error for timeouts
func (e *JSError) Unwrap() error {
	return e.Err
}

// fromException classifies a goja exception
func fromException(exc *goja.Exception) *JSError {
	jsErr := &JSError{
		Type:    ErrorTypeRuntime,
		Message: exc.Error(),
		Stack:   exc.String(),
	}

	var secErr *JSError
	if obj, ok := exc.Value().(*goja.Object); ok {
		if inner := obj.Get("value"); inner != nil {
			if goErr, ok := inner.Export().(error); ok && errors.As(goErr, &secErr) {
				return secErr
			}
		}
	}

	msg := strings.ToLower(jsErr.Message)
	switch {
	case strings.Contains(msg, "syntaxerror"):
		jsErr.Type = ErrorTypeSyntax
	case strings.Contains(msg, "not allowed"):
		jsErr.Type = ErrorTypeSecurity
	}
	return jsErr
}

// wrapError converts anything returned by goja into a JSError
func wrapError(err error) *JSError {
	if err == nil {
		return nil
	}
	var jsErr *JSError
	if errors.As(err, &jsErr) {
		return jsErr
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return fromException(exc)
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &JSError{Type: ErrorTypeSyntax, Message: syntax.Error()}
	}
	return &JSError{Type: ErrorTypeInternal, Message: err.Error(), Err: err}
}

// NewSecurityError creates a new security error
func NewSecurityError(message string) *JSError {
	return &JSError{Type: ErrorTypeSecurity, Message: message}
}

func newTimeoutError(cause error) *JSError {
	return &JSError{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("execution interrupted: %v", cause),
		Err:     cause,
	}
}
