package huntcall_errors

import (
	"errors"
	"net/http"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
	ErrLockTimeout        = errors.New("lock acquisition timed out")
)

// ErrWebRTCDisabled is returned while the disable.webrtc flag is set.
var ErrWebRTCDisabled = &wrapped{msg: "webrtc disabled", base: ErrForbidden}

type wrapped struct {
	msg  string
	base error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.base }

// Retryable reports whether a caller should back off and retry the whole
// operation. NotFound means "rejoin"; LockTimeout means "try again".
func Retryable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrLockTimeout)
}

// IsDuplicate reports whether err is an absorbed duplicate-insert race.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrLockTimeout), errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the wire error code sent to clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrWebRTCDisabled):
		return "WEBRTC_DISABLED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrLockTimeout):
		return "LOCK_TIMEOUT"
	case errors.Is(err, ErrServiceUnavailable):
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
