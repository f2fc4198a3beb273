package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := NewError("LOAD_FAILED", "could not load input", errors.New("no such file"))
	assert.Equal(t, "[LOAD_FAILED] could not load input: no such file", err.Error())
	assert.True(t, errors.Is(err, ErrKage))

	bare := NewError("X", "plain", nil)
	assert.Equal(t, "[X] plain", bare.Error())
}

func TestExecutionError_SingleFailure(t *testing.T) {
	cause := errors.New("boom")
	err := NewFailureError([]*BindingFailure{{Binding: "add", Err: cause}})

	assert.Equal(t, "binding execution failed [add]: error executing function 'add': boom", err.Error())
	assert.True(t, errors.Is(err, ErrExecution))
	assert.True(t, errors.Is(err, ErrKage))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestExecutionError_AggregateIsSorted(t *testing.T) {
	err := NewFailureError([]*BindingFailure{
		{Binding: "zeta", Err: errors.New("z")},
		{Binding: "alpha", Param: "x", Err: errors.New("a")},
	})

	assert.Equal(t, []string{"alpha", "zeta"}, err.Bindings)
	assert.Contains(t, err.Error(), "2 bindings failed")
	assert.Contains(t, err.Error(), "parameter 'x'")

	var failure *BindingFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "alpha", failure.Binding)
}

func TestGraphError(t *testing.T) {
	err := NewGraphError("cycle a -> b -> a", "a", "b")

	assert.True(t, errors.Is(err, ErrCircularOrMissing))
	assert.True(t, errors.Is(err, ErrExecution))
	assert.True(t, IsExecution(err))
	assert.Contains(t, err.Error(), "circular or missing dependency")
	assert.Equal(t, []string{"a", "b"}, FailedBindings(err))
}

func TestFailedBindings_NotExecution(t *testing.T) {
	assert.Nil(t, FailedBindings(errors.New("other")))
}
