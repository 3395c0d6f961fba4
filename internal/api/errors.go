package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    lower(http.StatusText(statusCode)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict)
}

// NewValidationError is a bad request carrying the reason the input was
// rejected.
func NewValidationError(err error) *ApiError {
	e := NewBadRequestError()
	e.Message = err.Error()
	return e
}

// ErrorFromDomain maps an error from the chat server or the store onto the
// HTTP response that reports it.
func ErrorFromDomain(err error) *ApiError {
	var apiErr *ApiError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, types.ErrAuthentication):
		return NewUnauthorizedError()
	case errors.Is(err, types.ErrAccessDenied):
		return NewForbiddenError()
	case errors.Is(err, types.ErrNotFound), errors.Is(err, database.ErrNotFound):
		return NewNotFoundError()
	case errors.Is(err, types.ErrValidation):
		return NewValidationError(err)
	case errors.Is(err, database.ErrConflict):
		return NewConflictError()
	default:
		return NewInternalServerError(err)
	}
}
