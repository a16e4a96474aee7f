package httpdto

import huntcall_errors "huntcall/pkg/errors"

type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// FromError builds an error response with the wire code mapped from err.
func FromError(err error) Response[any] {
	return NewErrorResponse(err.Error(), huntcall_errors.Code(err))
}
