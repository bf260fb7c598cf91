package router

import (
	"errors"

	"github.com/nixxel-company-limited/zpl-bridge/adapter"
)

// Code names a class of failure reported to callers
type Code string

const (
	CodeMissingArgument Code = "MissingArgument"
	CodeConnection      Code = "ConnectionError"
	CodeUnimplemented   Code = "UnimplementedOperation"
)

// Sentinels for errors.Is
var (
	ErrMissingArgument = errors.New("missing argument")
	ErrConnection      = errors.New("connection error")
	ErrUnimplemented   = errors.New("not implemented")
)

// Error is the structured error returned for every failed call
type Error struct {
	Code    Code   `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Details string `json:"details,omitempty" yaml:"details,omitempty"`

	// Field is the missing argument for MissingArgument errors
	Field string `json:"-" yaml:"-"`
	cause error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return string(e.Code) + ": " + e.Message + " (" + e.Details + ")"
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Code {
	case CodeMissingArgument:
		errs = append(errs, ErrMissingArgument)
	case CodeConnection:
		errs = append(errs, ErrConnection)
	case CodeUnimplemented:
		errs = append(errs, ErrUnimplemented)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func missingArgument(field, message string) *Error {
	return &Error{Code: CodeMissingArgument, Field: field, Message: message}
}

func unimplemented(method string) *Error {
	return &Error{Code: CodeUnimplemented, Message: "not implemented", Details: method}
}

// connectionError passes the transport message through unchanged
func connectionError(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}

	e := &Error{Code: CodeConnection, Message: adapter.DefaultConnectionMessage, cause: err}
	var ce *adapter.ConnectionError
	if errors.As(err, &ce) {
		e.Message = ce.Message()
		e.Details = ce.Op
	} else if err != nil && err.Error() != "" {
		e.Message = err.Error()
	}
	return e
}
