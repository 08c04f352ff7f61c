package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes carried by AppError. The first two are fatal for a document;
// the rest are recovered and end up in a report's parsing errors.
const (
	CodeUnsupportedFormat  = "UNSUPPORTED_FORMAT"
	CodeConversionFailed   = "CONVERSION_FAILED"
	CodeRecognitionFailed  = "RECOGNITION_FAILED"
	CodeDateParseError     = "DATE_PARSE_ERROR"
	CodeFieldCoercionError = "FIELD_COERCION_ERROR"
	CodeFallbackExhausted  = "FALLBACK_EXHAUSTED"
	CodeConfigError        = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError with the same code, so callers can test against the
// sentinels below with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Sentinels for errors.Is checks.
var (
	ErrUnsupportedFormat = &AppError{Code: CodeUnsupportedFormat}
	ErrConversionFailed  = &AppError{Code: CodeConversionFailed}
	ErrRecognitionFailed = &AppError{Code: CodeRecognitionFailed}
	ErrDateParse         = &AppError{Code: CodeDateParseError}
	ErrFieldCoercion     = &AppError{Code: CodeFieldCoercionError}
	ErrFallbackExhausted = &AppError{Code: CodeFallbackExhausted}
	ErrConfig            = &AppError{Code: CodeConfigError}
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("resource not found")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Code returns the AppError code found in err's chain, or "".
func Code(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsFatal reports whether err prevents a report from being produced.
func IsFatal(err error) bool {
	switch Code(err) {
	case CodeUnsupportedFormat, CodeConversionFailed:
		return true
	}
	return false
}

// ToStatus maps an error onto a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrConversionFailed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func UnimplementedError(message string) error {
	return status.Error(codes.Unimplemented, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
