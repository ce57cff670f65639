package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a failure. Callers branch on codes, never on messages.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeStateConflict       Code = "STATE_CONFLICT"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeAccountNotActive    Code = "ACCOUNT_NOT_ACTIVE"
	CodeLimitExceeded       Code = "LIMIT_EXCEEDED"
	CodeTransactionBlocked  Code = "TRANSACTION_BLOCKED"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeIntegrityViolation  Code = "INTEGRITY_VIOLATION"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces outside the process.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Blocked transactions answer 202: the money has not moved but the request
// was accepted for review.
var metadataByCode = map[Code]Metadata{
	// status, retryable, public message, details allowed
	CodeValidation:          {http.StatusBadRequest, false, "validation failed", true},
	CodeNotFound:            {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:            {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict:       {http.StatusUnprocessableEntity, false, "state transition disallowed", true},
	CodeInsufficientFunds:   {http.StatusUnprocessableEntity, false, "insufficient funds", true},
	CodeAccountNotActive:    {http.StatusUnprocessableEntity, false, "account is not active", true},
	CodeLimitExceeded:       {http.StatusUnprocessableEntity, false, "transaction limit exceeded", true},
	CodeTransactionBlocked:  {http.StatusAccepted, false, "transaction under review", false},
	CodeConcurrencyConflict: {http.StatusConflict, true, "please try again", false},
	CodeIntegrityViolation:  {http.StatusInternalServerError, false, "internal server error", false},
	CodeInternal:            {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:          {http.StatusServiceUnavailable, true, "dependency unavailable", true},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns. Error() deliberately omits
// the cause so messages stay safe to echo; the chain is still reachable
// through Unwrap.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the client-visible payload. It mutates and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsRetryable reports whether the caller may retry the whole operation.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}
