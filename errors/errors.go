// Package errors provides custom error types for the live sync client.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeMalformedMessage        ErrorCode = "MALFORMED_MESSAGE"
	ErrCodeTransportFailure        ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeSendRejected            ErrorCode = "SEND_REJECTED"
	ErrCodeConflictNotFound        ErrorCode = "CONFLICT_NOT_FOUND"
	ErrCodeConflictAlreadyResolved ErrorCode = "CONFLICT_ALREADY_RESOLVED"
	ErrCodeReconnectExhausted      ErrorCode = "RECONNECT_EXHAUSTED"
	ErrCodeStorageFailure          ErrorCode = "STORAGE_FAILURE"
	ErrCodeValidationFailure       ErrorCode = "VALIDATION_FAILURE"
)

// Operation represents the type of client operation
type Operation string

const (
	OpConnect    Operation = "connect"
	OpDisconnect Operation = "disconnect"
	OpSend       Operation = "send"
	OpDecode     Operation = "decode"
	OpEncode     Operation = "encode"
	OpRecord     Operation = "record"
	OpResolve    Operation = "resolve"
	OpList       Operation = "list"
	OpSchedule   Operation = "schedule"
	OpClose      Operation = "close"
)

// SyncError represents an error that occurred in the live sync client
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "store", "transport")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}

	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// New creates a new SyncError
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewMalformedMessage creates an error for a frame that could not be decoded.
// Malformed frames are dropped by the caller, never propagated as fatal.
func NewMalformedMessage(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeMalformedMessage,
		Op:        op,
		Component: "wire",
		Err:       cause,
	}
}

// NewTransportError creates a new transport-related SyncError
func NewTransportError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeTransportFailure,
		Op:        op,
		Component: "transport",
		Err:       cause,
		Retryable: true,
	}
}

// NewSendRejected creates the error returned when a send is attempted
// while the connection is not in the connected state
func NewSendRejected(status string) *SyncError {
	return &SyncError{
		Code:      ErrCodeSendRejected,
		Op:        OpSend,
		Component: "manager",
		Err:       fmt.Errorf("connection status is %q, not connected", status),
		Metadata:  map[string]interface{}{"status": status},
	}
}

// NewConflictNotFound creates the error returned when a conflict id is unknown
func NewConflictNotFound(id string) *SyncError {
	return &SyncError{
		Code:      ErrCodeConflictNotFound,
		Op:        OpResolve,
		Component: "store",
		Err:       fmt.Errorf("conflict %q not found", id),
		Metadata:  map[string]interface{}{"conflict_id": id},
	}
}

// NewConflictAlreadyResolved creates the error returned when resolving a
// conflict whose status is already resolved
func NewConflictAlreadyResolved(id string) *SyncError {
	return &SyncError{
		Code:      ErrCodeConflictAlreadyResolved,
		Op:        OpResolve,
		Component: "store",
		Err:       fmt.Errorf("conflict %q is already resolved", id),
		Metadata:  map[string]interface{}{"conflict_id": id},
	}
}

// NewReconnectExhausted creates the terminal error reported when the attempt
// cap is reached and no further reconnects will be scheduled
func NewReconnectExhausted(attempts int) *SyncError {
	return &SyncError{
		Code:      ErrCodeReconnectExhausted,
		Op:        OpConnect,
		Component: "manager",
		Err:       fmt.Errorf("gave up after %d reconnect attempts", attempts),
		Metadata:  map[string]interface{}{"attempts": attempts},
	}
}

// NewStorageError creates a new storage-related SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a new validation-related SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code: ErrCodeValidationFailure,
		Op:   op,
		Err:  cause,
	}
}

// NewRetryable creates a new retryable SyncError
func NewRetryable(op Operation, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// IsCode checks whether err is a SyncError carrying the given code
func IsCode(err error, code ErrorCode) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code == code
	}
	return false
}

// IsNotFound reports whether err means the conflict id is unknown
func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeConflictNotFound)
}

// IsAlreadyResolved reports whether err means the conflict was resolved before
func IsAlreadyResolved(err error) bool {
	return IsCode(err, ErrCodeConflictAlreadyResolved)
}

// IsSendRejected reports whether err means a send was refused because the
// connection was not in the connected state
func IsSendRejected(err error) bool {
	return IsCode(err, ErrCodeSendRejected)
}

// IsMalformedMessage reports whether err means a frame failed to decode
func IsMalformedMessage(err error) bool {
	return IsCode(err, ErrCodeMalformedMessage)
}
