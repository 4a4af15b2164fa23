// Package errors defines the coded errors shared by the rating pipeline and
// the admin API. Codes decide both the HTTP status and whether the consumer
// may retry a message.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

var (
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
	ErrRateLimited        = NewError("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)

	// Named cache resolution failures stop a stage from starting.
	ErrCacheNotFound  = NewError("CACHE_NOT_FOUND", "named cache is not configured", http.StatusNotFound)
	ErrCacheWrongKind = NewError("CACHE_WRONG_KIND", "named cache has a different kind", http.StatusBadRequest)
	ErrCacheNotLoaded = NewError("CACHE_NOT_LOADED", "named cache has no loaded snapshot", http.StatusServiceUnavailable)

	// ErrRecord aborts rating of a single record. The record is forwarded
	// with the error attached and never retried.
	ErrRecord = NewError("RECORD_ERROR", "record could not be rated", http.StatusUnprocessableEntity)
)

// fatalCodes are never retried unless the error was marked retryable.
var fatalCodes = map[string]bool{
	ErrValidation.Code:     true,
	ErrCacheNotFound.Code:  true,
	ErrCacheWrongKind.Code: true,
	ErrRecord.Code:         true,
}

type retryMode uint8

const (
	retryByCode retryMode = iota
	retryAlways
	retryNever
)

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
	mode    retryMode
}

func NewError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// Error prefers a "message" detail over the generic message of the code.
func (e *Error) Error() string {
	msg := e.Message
	if m, ok := e.Details["message"].(string); ok && m != "" {
		msg = m
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any error carrying the same code, so errors derived with
// WithDetail or WithCause still match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) IsFatal() bool {
	switch e.mode {
	case retryAlways:
		return false
	case retryNever:
		return true
	}
	if fatalCodes[e.Code] {
		return true
	}
	var inner interface{ IsFatal() bool }
	return e.Cause != nil && errors.As(e.Cause, &inner) && inner.IsFatal()
}

func (e *Error) IsRetryable() bool {
	return !e.IsFatal()
}

func (e *Error) clone() *Error {
	c := *e
	c.Details = maps.Clone(e.Details)
	return &c
}

func (e *Error) WithCause(cause error) *Error {
	c := e.clone()
	c.Cause = cause
	return c
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	c := e.clone()
	if c.Details == nil {
		c.Details = make(map[string]interface{}, 1)
	}
	c.Details[key] = value
	return c
}

func (e *Error) AsRetryable() *Error {
	c := e.clone()
	c.mode = retryAlways
	return c
}

func (e *Error) AsFatal() *Error {
	c := e.clone()
	c.mode = retryNever
	return c
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRecordScoped reports whether err should be attached to the record
// being rated instead of failing the message.
func IsRecordScoped(err error) bool {
	return errors.Is(err, ErrRecord)
}

func IsFatal(err error) bool {
	var f interface{ IsFatal() bool }
	return errors.As(err, &f) && f.IsFatal()
}

func as(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// Code returns the application error code of err, or INTERNAL_ERROR.
func Code(err error) string {
	if appErr, ok := as(err); ok {
		return appErr.Code
	}
	return ErrInternal.Code
}

func ToHTTPStatus(err error) int {
	if appErr, ok := as(err); ok {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse renders err as the admin API error body. Errors without a
// code are reported as INTERNAL_ERROR without leaking their text.
func ToErrorResponse(err error) map[string]interface{} {
	appErr, ok := as(err)
	if !ok {
		appErr = ErrInternal
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}
	return response
}
