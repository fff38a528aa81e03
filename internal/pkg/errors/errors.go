// Package errors provides the error taxonomy shared by the evaluation harness,
// the retrieval backends and the corpus loaders.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
)

// Error codes.
const (
	// Load errors.
	CodeMalformedRecord = "MALFORMED_RECORD"
	CodeValidation      = "VALIDATION_ERROR"

	// Backend errors.
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeEmptyIndex         = "EMPTY_INDEX"
	CodeQueryTimeout       = "QUERY_TIMEOUT"

	// Server errors.
	CodeRateLimited = "RATE_LIMITED"

	CodeInternal = "INTERNAL_ERROR"
)

// Detail keys.
const (
	DetailScenarioIndex = "scenario_index"
	DetailLine          = "line"
	DetailBackend       = "backend"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeMalformedRecord:
		return http.StatusBadRequest
	case CodeEmptyIndex:
		return http.StatusConflict
	case CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case CodeQueryTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Fatal reports whether an error of this kind must abort an evaluation run.
func (e *AppError) Fatal() bool {
	return e.Code == CodeBackendUnavailable || e.Code == CodeEmptyIndex
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithScenario records the index of the scenario that triggered the error.
func (e *AppError) WithScenario(index int) *AppError {
	return e.WithDetail(DetailScenarioIndex, strconv.Itoa(index))
}

// Convenience constructors.

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// MalformedRecordError creates a load error for the record on the given 1-based line.
func MalformedRecordError(line int, message string, err error) *AppError {
	return Wrap(CodeMalformedRecord, message, err).WithDetail(DetailLine, strconv.Itoa(line))
}

// BackendUnavailableError creates an error for a backend that cannot be reached.
func BackendUnavailableError(backend string, err error) *AppError {
	return Wrap(CodeBackendUnavailable, fmt.Sprintf("%s is unavailable", backend), err).
		WithDetail(DetailBackend, backend)
}

// EmptyIndexError creates an error for a backend holding zero documents.
func EmptyIndexError(backend string) *AppError {
	return New(CodeEmptyIndex, fmt.Sprintf("%s holds no documents", backend)).
		WithDetail(DetailBackend, backend)
}

// QueryTimeoutError creates a per-query timeout error.
func QueryTimeoutError(err error) *AppError {
	return Wrap(CodeQueryTimeout, "query timed out", err)
}

// RateLimitedError creates an error for a client over its request budget.
func RateLimitedError(retryAfterSeconds int) *AppError {
	return New(CodeRateLimited, "rate limit exceeded").
		WithDetail("retry_after", strconv.Itoa(retryAfterSeconds))
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

// IsBackendUnavailable checks if error is a backend unavailable error.
func IsBackendUnavailable(err error) bool {
	return CodeOf(err) == CodeBackendUnavailable
}

// IsEmptyIndex checks if error is an empty index error.
func IsEmptyIndex(err error) bool {
	return CodeOf(err) == CodeEmptyIndex
}

// IsMalformedRecord checks if error is a malformed record error.
func IsMalformedRecord(err error) bool {
	return CodeOf(err) == CodeMalformedRecord
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsFatal reports whether err must abort an evaluation run.
func IsFatal(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Fatal()
	}
	return false
}

// ErrorResponse is the standard JSON error response structure.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON error response to the ResponseWriter.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignore encoding errors - headers already sent
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes an error response.
// AppErrors keep their code and status; anything else is reported as an
// internal error without leaking its message.
func WriteError(w http.ResponseWriter, err error) {
	if appErr, ok := As(err); ok {
		WriteJSON(w, appErr.HTTPStatus(), ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal server error",
		Code:    CodeInternal,
		Message: "An unexpected error occurred",
	})
}
