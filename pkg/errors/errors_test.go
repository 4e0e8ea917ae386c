package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorIncludesCause(t *testing.T) {
	t.Parallel()

	err := Wrap(ErrCodeInternalError, "failed to save", fmt.Errorf("disk full"))
	assert.Equal(t, "INTERNAL_ERROR: failed to save (disk full)", err.Error())
	assert.Equal(t, "NOT_FOUND: comment not found", New(ErrCodeNotFound, "comment not found").Error())
}

func TestIsHelpers_FollowWrappedChain(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("handler: %w", New(ErrCodeNotFound, "missing"))

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsUnauthorized(wrapped))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "missing", appErr.Message)
}

func TestNewValidation_CarriesFields(t *testing.T) {
	t.Parallel()

	err := NewValidation("Please correct the highlighted fields.", map[string]string{"email": "invalid"})

	assert.True(t, IsValidation(err))
	assert.Equal(t, "invalid", err.Fields["email"])
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]int{
		ErrCodeNotFound:      http.StatusNotFound,
		ErrCodeUnauthorized:  http.StatusUnauthorized,
		ErrCodeForbidden:     http.StatusForbidden,
		ErrCodeBadRequest:    http.StatusBadRequest,
		ErrCodeConflict:      http.StatusConflict,
		ErrCodeRateLimited:   http.StatusTooManyRequests,
		ErrCodeInternalError: http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, New(code, "x").HTTPStatus(), "code %s", code)
	}
}
