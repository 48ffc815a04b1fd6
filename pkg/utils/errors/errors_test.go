package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsType(t *testing.T) {
	base := NotFound("position p-1 not found")
	wrapped := Wrapf(base, "load position %s", "p-1")

	assert.Equal(t, ErrorTypeNotFound, TypeOf(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeNotFound))
	assert.True(t, Is(wrapped, base))
	assert.Equal(t, "load position p-1: position p-1 not found", wrapped.Error())
}

func TestTypeOfForeignErrors(t *testing.T) {
	plain := stderrors.New("boom")
	assert.Equal(t, ErrorTypeUnknown, TypeOf(plain))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(nil))

	typed := WithType(plain, ErrorTypeTimeout)
	assert.Equal(t, ErrorTypeTimeout, TypeOf(typed))
	assert.True(t, Is(typed, plain))

	// fmt wrapping still exposes the inner AppError
	outer := fmt.Errorf("call gateway: %w", Unavailable("circuit open"))
	assert.Equal(t, ErrorTypeUnavailable, TypeOf(outer))
}

func TestNilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))
	assert.Nil(t, WithType(nil, ErrorTypeInternal))
	assert.False(t, IsType(nil, ErrorTypeUnknown))
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "permission_denied", ErrorTypePermissionDenied.String())
	assert.Equal(t, "unknown", ErrorType(99).String())
}
