package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DomainError is an error with a stable code of the form RS-<AREA>-<NNNN>.
//
// For 4xxx and 5xxx codes the first three digits are the HTTP status the
// error maps to; ARG codes map to 400.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

// NewDomainError creates a sentinel error.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	if e.Details == "" {
		return "[" + e.Code + "] " + e.Message
	}
	return "[" + e.Code + "] " + e.Message + ": " + e.Details
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError with the same code, so a sentinel matches
// the copies made by WithDetails and WithCause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy carrying details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithDetailsf returns a copy carrying formatted details.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// Status returns the HTTP status for the error code.
func (e *DomainError) Status() int {
	i := strings.LastIndexByte(e.Code, '-')
	n, err := strconv.Atoi(e.Code[i+1:])
	switch {
	case err != nil:
		return 500
	case n >= 4000 && n < 6000:
		return n / 10
	case strings.HasPrefix(e.Code, "RS-ARG-"):
		return 400
	}
	return 500
}

// IsDomainError reports whether err wraps a DomainError with code, or
// any DomainError when code is empty.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && (code == "" || de.Code == code)
}

// GetErrorCode returns the code of the DomainError in err's chain.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Regions and states.
var (
	ErrInvalidRegion  = NewDomainError("RS-REGN-4001", "invalid memory region")
	ErrMalformedToken = NewDomainError("RS-STAT-4000", "malformed state token")
	ErrUnknownToken   = NewDomainError("RS-STAT-4040", "unknown state token")
	ErrTokenConflict  = NewDomainError("RS-STAT-4090", "state token conflict")
	ErrStateTooLarge  = NewDomainError("RS-STAT-4130", "state too large")
)

// Arguments.
var (
	ErrInvalidArgument = NewDomainError("RS-ARG-1001", "invalid argument")
	ErrMissingArgument = NewDomainError("RS-ARG-1002", "missing required argument")
)

// Transport and system.
var (
	ErrBadRequest         = NewDomainError("RS-SYS-4000", "bad request")
	ErrRateLimited        = NewDomainError("RS-SYS-4290", "too many requests")
	ErrInternalServer     = NewDomainError("RS-SYS-5000", "internal server error")
	ErrStorageError       = NewDomainError("RS-SYS-5001", "storage error")
	ErrServiceUnavailable = NewDomainError("RS-SYS-5030", "service unavailable")
)
