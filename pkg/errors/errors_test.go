package huntcall_errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRetryable verifies that only the rejoin and lock-timeout kinds are retried.
func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrNotFound))
	assert.True(t, Retryable(fmt.Errorf("join: %w", ErrLockTimeout)))
	assert.False(t, Retryable(ErrForbidden))
	assert.False(t, Retryable(ErrUnauthorized))
	assert.False(t, Retryable(nil))
}

// TestHTTPStatus checks the status mapping for wrapped and bare errors.
func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrInvalidInput:                     http.StatusBadRequest,
		ErrUnauthorized:                     http.StatusUnauthorized,
		ErrWebRTCDisabled:                   http.StatusForbidden,
		fmt.Errorf("x: %w", ErrForbidden):   http.StatusForbidden,
		ErrNotFound:                         http.StatusNotFound,
		ErrAlreadyExists:                    http.StatusConflict,
		ErrRateLimited:                      http.StatusTooManyRequests,
		ErrLockTimeout:                      http.StatusServiceUnavailable,
		fmt.Errorf("boom"):                  http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

// TestCode verifies the disabled flag gets its own code while still being Forbidden.
func TestCode(t *testing.T) {
	assert.Equal(t, "WEBRTC_DISABLED", Code(ErrWebRTCDisabled))
	assert.Equal(t, "FORBIDDEN", Code(ErrForbidden))
	assert.Equal(t, "LOCK_TIMEOUT", Code(ErrLockTimeout))
	assert.ErrorIs(t, ErrWebRTCDisabled, ErrForbidden)
}
