// Package errors defines the stable error codes surfaced by the vip HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ValidationFailed indicates malformed or missing input fields
	ValidationFailed ErrorCode = "VALIDATION_FAILED"
	// PipelineFailure indicates the training or prediction collaborator failed
	PipelineFailure ErrorCode = "PIPELINE_FAILURE"
	// DispatchUnavailable indicates the worker pool is stopped
	DispatchUnavailable ErrorCode = "DISPATCH_UNAVAILABLE"
	// Unauthorized indicates a missing or wrong access token
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// NotFound indicates the requested resource does not exist
	NotFound ErrorCode = "NOT_FOUND"
	// BadRequest indicates a body that could not be decoded at all
	BadRequest ErrorCode = "BAD_REQUEST"
	// RateLimited indicates too many training requests from one client
	RateLimited ErrorCode = "RATE_LIMITED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// VipError carries a code, a message and an optional cause.
type VipError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new VipError
func New(code ErrorCode, message string, cause error) *VipError {
	return &VipError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *VipError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *VipError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *VipError) WithDetails(details interface{}) *VipError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first VipError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var ve *VipError
	if stderrors.As(err, &ve) {
		return ve.Code
	}
	return InternalError
}
