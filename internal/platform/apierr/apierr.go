package apierr

import (
	"fmt"
	"net/http"
)

// Error kinds carried on the wire as error.code.
const (
	CodeValidation   = "validation"
	CodeAuth         = "auth"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeNotCompleted = "not_completed"
	CodeOverCap      = "over_cap"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(err error) *Error {
	return New(http.StatusBadRequest, CodeValidation, err)
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeNotFound, err)
}

func Conflict(code string, err error) *Error {
	return New(http.StatusConflict, code, err)
}
