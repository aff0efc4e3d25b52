package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error types for the categories of traversal failures
type ErrorType string

const (
	// ErrorTypeConfiguration covers malformed requests and strategy/heuristic mismatches.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeRelationship covers relationships that cannot be traversed as asked.
	ErrorTypeRelationship ErrorType = "relationship"
	// ErrorTypeDataSource covers failures reading neighbors or statistics.
	ErrorTypeDataSource ErrorType = "data_source"
	// ErrorTypeCancelled covers cancellation and deadline expiry.
	ErrorTypeCancelled ErrorType = "cancelled"
)

// ErrNodeNotFound is wrapped by data source errors for unknown node ids.
var ErrNodeNotFound = stderrors.New("node not found")

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Stack     []uintptr
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new structured error
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(operation, message string) *StructuredError {
	return New(ErrorTypeConfiguration, operation, message)
}

// NewRelationshipError creates a relationship error
func NewRelationshipError(operation, message string) *StructuredError {
	return New(ErrorTypeRelationship, operation, message)
}

// NewDataSourceError creates a data source error
func NewDataSourceError(operation, message string) *StructuredError {
	return New(ErrorTypeDataSource, operation, message)
}

// WrapConfigurationError wraps an error as a configuration error
func WrapConfigurationError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeConfiguration, operation, message)
}

// WrapRelationshipError wraps an error as a relationship error
func WrapRelationshipError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeRelationship, operation, message)
}

// WrapDataSourceError wraps an error as a data source error
func WrapDataSourceError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeDataSource, operation, message)
}

// NewNotFoundError reports an unknown node as a data source error.
func NewNotFoundError(operation string, id int64) *StructuredError {
	return Wrap(ErrNodeNotFound, ErrorTypeDataSource, operation, fmt.Sprintf("node %d", id)).
		WithContext("node_id", id)
}

// Cancelled wraps a context error. ctxErr should be ctx.Err().
func Cancelled(ctxErr error, operation string) *StructuredError {
	if ctxErr == nil {
		ctxErr = context.Canceled
	}
	return Wrap(ctxErr, ErrorTypeCancelled, operation, "traversal cancelled")
}

// TypeOf returns the structured type of err, or "" when err is not structured.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return TypeOf(err) == ErrorTypeConfiguration }

// IsRelationship reports whether err is a relationship error.
func IsRelationship(err error) bool { return TypeOf(err) == ErrorTypeRelationship }

// IsDataSource reports whether err is a data source error.
func IsDataSource(err error) bool { return TypeOf(err) == ErrorTypeDataSource }

// IsCancelled reports whether err is a cancellation, structured or raw.
func IsCancelled(err error) bool {
	if TypeOf(err) == ErrorTypeCancelled {
		return true
	}
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// IsNotFound reports whether err wraps ErrNodeNotFound.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNodeNotFound)
}

// ToGRPCStatus converts a domain error to a gRPC status error with appropriate code.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}

	// Already a gRPC status error
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case IsConfiguration(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case IsRelationship(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case IsCancelled(err):
		if stderrors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Canceled, err.Error())
	case IsDataSource(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
