package dispatch

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a dispatch failure with a canonical status code.
// Message is safe to show to the caller; Err holds the underlying cause, if any.
type Error struct {
	Code    codes.Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// GRPCStatus lets status.FromError and status.Code understand dispatch errors.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// NewInvalidArgument reports a request that cannot be dispatched as given.
func NewInvalidArgument(msg string) *Error {
	return &Error{Code: codes.InvalidArgument, Message: msg}
}

// NewUnauthenticated reports a call rejected by origin verification.
func NewUnauthenticated(msg string) *Error {
	return &Error{Code: codes.Unauthenticated, Message: msg}
}

// NewDependencyFailure wraps a failure of the directory or the gateway.
func NewDependencyFailure(op string, err error) *Error {
	return &Error{Code: codes.Internal, Message: op + " failed", Err: err}
}

// CodeOf returns the status code carried by err.
// nil maps to codes.OK and errors of any other type to codes.Unknown.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return codes.Unknown
}
