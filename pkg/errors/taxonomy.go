package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryTransient  ErrorCategory = "transient"
	CategoryAuth       ErrorCategory = "authentication"
	CategoryCostGuard  ErrorCategory = "cost_guard"
	CategoryMalformed  ErrorCategory = "malformed_response"
	CategoryInternal   ErrorCategory = "internal"
)

const (
	// Transient errors (1xxx)
	ErrTimeout     = "ADS-1001" // Outbound call timed out
	ErrRateLimit   = "ADS-1002" // Remote rate limit hit
	ErrServerError = "ADS-1003" // Remote 5xx

	// Authentication errors (2xxx)
	ErrAuthInvalid    = "ADS-2001" // Invalid or expired credentials
	ErrAuthPermission = "ADS-2002" // Insufficient permissions

	// Validation errors (3xxx)
	ErrInvalidInput     = "ADS-3001" // Bad input link or parameter
	ErrMissingRequired  = "ADS-3002" // Missing required config or field
	ErrUnsupportedMedia = "ADS-3003" // Non-video media
	ErrNoVideoFound     = "ADS-3004" // Folder had no usable video

	// Guard and response errors (4xxx)
	ErrCostExceeded      = "ADS-4001" // Pre-flight cost estimate above ceiling
	ErrMalformedResponse = "ADS-4002" // Response failed parsing or schema validation

	// System errors (5xxx)
	ErrInternal = "ADS-5001" // Unexpected internal error
	ErrPanic    = "ADS-5002" // Panic recovered at a row boundary
)

// PipelineError is a classified error carried through the row pipeline.
type PipelineError struct {
	Code          string                 `json:"code"`
	Category      ErrorCategory          `json:"category"`
	Message       string                 `json:"message"`
	Retryable     bool                   `json:"retryable"`
	Context       map[string]interface{} `json:"context,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Cause         error                  `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new PipelineError
func New(code string, message string) *PipelineError {
	return &PipelineError{
		Code:          code,
		Category:      getCategoryFromCode(code),
		Message:       message,
		Retryable:     isRetryableCode(code),
		Timestamp:     time.Now(),
		CorrelationID: uuid.New().String(),
	}
}

// Newf creates a new PipelineError with a formatted message.
func Newf(code string, format string, args ...interface{}) *PipelineError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error
func Wrap(err error, code string, message string) *PipelineError {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Cause = err
	return e
}

// Validation is shorthand for an invalid-input error.
func Validation(format string, args ...interface{}) *PipelineError {
	return Newf(ErrInvalidInput, format, args...)
}

// Malformed is shorthand for a malformed-response error.
func Malformed(format string, args ...interface{}) *PipelineError {
	return Newf(ErrMalformedResponse, format, args...)
}

// As returns the first PipelineError in err's chain.
func As(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCode reports whether err's chain carries a PipelineError with the given code.
func IsCode(err error, code string) bool {
	pe, ok := As(err)
	return ok && pe.Code == code
}

// IsRetryable reports whether err is a transient failure: a rate limit, a
// server error, or a timeout. Everything else fails immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := As(err); ok {
		return pe.Retryable
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		return isRetryableCode(Classify(gerr.Code))
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return isRetryableCode(classifyGRPC(s.Code()))
	}
	return false
}

// Classify maps an HTTP status to an error code.
func Classify(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status >= 500:
		return ErrServerError
	case status == http.StatusUnauthorized:
		return ErrAuthInvalid
	case status == http.StatusForbidden:
		return ErrAuthPermission
	case status >= 400:
		return ErrInvalidInput
	default:
		return ErrInternal
	}
}

// FromHTTP builds a classified error from a failed HTTP exchange.
func FromHTTP(status int, service string, body string) *PipelineError {
	return Newf(Classify(status), "%s returned status %d: %s", service, status, body).
		WithContext("status", status)
}

// FromGoogleAPI classifies errors from Google API clients. Non-API errors
// come back wrapped as internal unless they are context deadlines.
func FromGoogleAPI(err error, service string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		return Wrap(err, Classify(gerr.Code), service+" request failed").WithContext("status", gerr.Code)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrTimeout, service+" request timed out")
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown && s.Code() != codes.OK {
		return Wrap(err, classifyGRPC(s.Code()), service+" request failed").WithContext("grpc_code", s.Code().String())
	}
	return Wrap(err, ErrInternal, service+" request failed")
}

func classifyGRPC(code codes.Code) string {
	switch code {
	case codes.ResourceExhausted:
		return ErrRateLimit
	case codes.DeadlineExceeded:
		return ErrTimeout
	case codes.Unavailable, codes.Internal, codes.Aborted:
		return ErrServerError
	case codes.Unauthenticated:
		return ErrAuthInvalid
	case codes.PermissionDenied:
		return ErrAuthPermission
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound, codes.OutOfRange:
		return ErrInvalidInput
	default:
		return ErrInternal
	}
}

// getCategoryFromCode determines category from error code
func getCategoryFromCode(code string) ErrorCategory {
	switch code {
	case ErrCostExceeded:
		return CategoryCostGuard
	case ErrMalformedResponse:
		return CategoryMalformed
	}
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4:5] {
	case "1":
		return CategoryTransient
	case "2":
		return CategoryAuth
	case "3":
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// isRetryableCode determines if an error code is retryable
func isRetryableCode(code string) bool {
	switch code {
	case ErrTimeout, ErrRateLimit, ErrServerError:
		return true
	default:
		return false
	}
}
