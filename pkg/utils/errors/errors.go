package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies an application error
type ErrorType uint

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeInvalidArgument
	ErrorTypeNotFound
	ErrorTypeAlreadyExists
	ErrorTypePermissionDenied
	ErrorTypeUnauthenticated
	ErrorTypeNetwork
	ErrorTypeTimeout
	ErrorTypeInternal
	ErrorTypeResourceExhausted
	// ErrorTypeUnavailable marks an upstream that refuses work, e.g. an open circuit
	ErrorTypeUnavailable
)

// String returns a lowercase name for the type
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeInvalidArgument:
		return "invalid_argument"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeAlreadyExists:
		return "already_exists"
	case ErrorTypePermissionDenied:
		return "permission_denied"
	case ErrorTypeUnauthenticated:
		return "unauthenticated"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeInternal:
		return "internal"
	case ErrorTypeResourceExhausted:
		return "resource_exhausted"
	case ErrorTypeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// AppError is an error carrying an ErrorType
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an untyped error
func New(message string) error {
	return &AppError{Type: ErrorTypeUnknown, Message: message}
}

// Newf creates an untyped error from a format string
func Newf(format string, args ...interface{}) error {
	return &AppError{Type: ErrorTypeUnknown, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a message, keeping the type of the innermost AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Type: TypeOf(err), Message: message, Err: err}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithType wraps err so that TypeOf reports errType
func WithType(err error, errType ErrorType) error {
	if err == nil {
		return nil
	}
	return &AppError{Type: errType, Message: err.Error(), Err: err}
}

// TypeOf returns the type of the first AppError in the chain
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given type
func IsType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// InvalidArgument creates a new InvalidArgument error
func InvalidArgument(message string) error {
	return &AppError{Type: ErrorTypeInvalidArgument, Message: message}
}

// InvalidArgumentf creates a new InvalidArgument error from a format string
func InvalidArgumentf(format string, args ...interface{}) error {
	return &AppError{Type: ErrorTypeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a new NotFound error
func NotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error from a format string
func NotFoundf(format string, args ...interface{}) error {
	return &AppError{Type: ErrorTypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates a new AlreadyExists error
func AlreadyExists(message string) error {
	return &AppError{Type: ErrorTypeAlreadyExists, Message: message}
}

// PermissionDenied creates a new PermissionDenied error
func PermissionDenied(message string) error {
	return &AppError{Type: ErrorTypePermissionDenied, Message: message}
}

// Unauthenticated creates a new Unauthenticated error
func Unauthenticated(message string) error {
	return &AppError{Type: ErrorTypeUnauthenticated, Message: message}
}

// Network wraps a transport failure
func Network(err error, message string) error {
	return &AppError{Type: ErrorTypeNetwork, Message: message, Err: err}
}

// Timeout creates a new Timeout error
func Timeout(message string) error {
	return &AppError{Type: ErrorTypeTimeout, Message: message}
}

// Internal wraps an unexpected failure
func Internal(err error, message string) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// ResourceExhausted creates a new ResourceExhausted error
func ResourceExhausted(message string) error {
	return &AppError{Type: ErrorTypeResourceExhausted, Message: message}
}

// Unavailable creates a new Unavailable error
func Unavailable(message string) error {
	return &AppError{Type: ErrorTypeUnavailable, Message: message}
}
