package model

import (
	"errors"
)

var (
	ErrEmptyInput        = errors.New("empty input")
	ErrMissingURL        = errors.New("missing required field: url")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrUnsupportedItem   = errors.New("unsupported batch command")
	ErrMissingRequestID  = errors.New("missing required field: requestId")
	ErrDeliveryExhausted = errors.New("callback delivery attempts exhausted")
	ErrDeliveryRejected  = errors.New("callback delivery rejected")
	ErrFallbackDisabled  = errors.New("fallback directory not configured")
)

// RequestError is a fatal error reported synchronously to the caller.
type RequestError struct {
	Code  string
	Err   error
	Extra map[string]any
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func NewRequestError(code string, err error) *RequestError {
	return &RequestError{Code: code, Err: err}
}
