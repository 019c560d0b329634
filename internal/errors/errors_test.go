package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "profile not found", NotFound("profile not found").Error())

	cause := errors.New("dial tcp: refused")
	err := Unavailable(cause, "profile source unavailable")
	assert.Equal(t, "profile source unavailable: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
	assert.Nil(t, Unavailable(nil, "x"))
}

func TestCodeAndFieldOf(t *testing.T) {
	wrapped := fmt.Errorf("upsert profile: %w", ValidationField("user_id", "user ID cannot be empty"))
	assert.Equal(t, ErrCodeValidation, CodeOf(wrapped))
	assert.Equal(t, "user_id", FieldOf(wrapped))
	assert.Equal(t, "user ID cannot be empty", PublicMessage(wrapped))

	plain := errors.New("boom")
	assert.Empty(t, CodeOf(plain))
	assert.Empty(t, FieldOf(plain))
	assert.Equal(t, "Internal Server Error", PublicMessage(plain))
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeNotFound:    http.StatusNotFound,
		ErrCodeValidation:  http.StatusBadRequest,
		ErrCodeConflict:    http.StatusConflict,
		ErrCodeUnavailable: http.StatusServiceUnavailable,
		ErrCodeTimeout:     http.StatusGatewayTimeout,
		ErrCodeCanceled:    http.StatusInternalServerError,
		ErrCodeInternal:    http.StatusInternalServerError,
		"":                 http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, code.HTTPStatus(), "code %q", code)
	}
}
