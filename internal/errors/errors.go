package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

/**
 * Custom error types for the placeholder service
 *
 * Factory functions build a ServiceError per failure kind.
 * OCR being unavailable and missing replacement values are NOT errors:
 * the former skips a cascade step, the latter leaves a region blank.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorInvalidRect      ErrorCode = "INVALID_RECT"
	ErrorInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrorDuplicateLabel   ErrorCode = "DUPLICATE_LABEL"
	ErrorNotFound         ErrorCode = "NOT_FOUND"

	// Document errors
	ErrorDocumentUnavailable ErrorCode = "DOCUMENT_UNAVAILABLE"
	ErrorRedactionFailed     ErrorCode = "REDACTION_FAILED"
	ErrorDrawFailure         ErrorCode = "DRAW_FAILURE"
	ErrorOCRFailed           ErrorCode = "OCR_FAILED"

	// Infrastructure errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
	ErrorQueueFailed   ErrorCode = "QUEUE_FAILED"
	ErrorLockTimeout   ErrorCode = "LOCK_TIMEOUT"
)

// ServiceError represents a structured service error
type ServiceError struct {
	Code      ErrorCode
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is matches another *ServiceError by code, so errors.Is(err, &ServiceError{Code: X}) works.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Factory functions for common errors

func NewInvalidRectError(page int, x0, y0, x1, y1 float64, reason string) *ServiceError {
	return &ServiceError{
		Code:      ErrorInvalidRect,
		Message:   fmt.Sprintf("invalid rect (%g,%g,%g,%g) on page %d: %s", x0, y0, x1, y1, page, reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page": page,
			"rect": []float64{x0, y0, x1, y1},
		},
	}
}

func NewInvalidParameterError(name string, value interface{}) *ServiceError {
	return &ServiceError{
		Code:      ErrorInvalidParameter,
		Message:   fmt.Sprintf("invalid value for %s: %v", name, value),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"parameter": name,
		},
	}
}

func NewDuplicateLabelError(label string) *ServiceError {
	return &ServiceError{
		Code:      ErrorDuplicateLabel,
		Message:   fmt.Sprintf("placeholder label %q is used more than once", label),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"label": label,
		},
	}
}

func NewNotFoundError(kind, id string) *ServiceError {
	return &ServiceError{
		Code:      ErrorNotFound,
		Message:   fmt.Sprintf("%s not found: %s", kind, id),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"kind": kind,
			"id":   id,
		},
	}
}

func NewDocumentUnavailableError(ref string, cause error) *ServiceError {
	return &ServiceError{
		Code:      ErrorDocumentUnavailable,
		Message:   fmt.Sprintf("document %s cannot be opened", ref),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"document": ref,
		},
		Cause: cause,
	}
}

func NewRedactionFailedError(label string, page int, cause error) *ServiceError {
	return &ServiceError{
		Code:      ErrorRedactionFailed,
		Message:   fmt.Sprintf("redaction of placeholder %q on page %d failed", label, page),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"label": label,
			"page":  page,
		},
		Cause: cause,
	}
}

func NewDrawFailureError(label string, cause error) *ServiceError {
	return &ServiceError{
		Code:      ErrorDrawFailure,
		Message:   fmt.Sprintf("replacement text for %q could not be drawn", label),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"label": label,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(engine string, cause error) *ServiceError {
	return &ServiceError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed on engine: %s", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(operation string, cause error) *ServiceError {
	return &ServiceError{
		Code:      ErrorStorageFailed,
		Message:   fmt.Sprintf("storage operation failed: %s", operation),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewQueueFailedError(taskType string, cause error) *ServiceError {
	return &ServiceError{
		Code:      ErrorQueueFailed,
		Message:   fmt.Sprintf("failed to enqueue %s task", taskType),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewLockTimeoutError(documentID string, wait time.Duration) *ServiceError {
	return &ServiceError{
		Code:      ErrorLockTimeout,
		Message:   fmt.Sprintf("document %s is locked by another generation (waited %v)", documentID, wait),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"document": documentID,
			"wait":     wait.String(),
		},
	}
}

// CodeOf returns the code of the first ServiceError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrorInvalidRect, ErrorInvalidParameter, ErrorDuplicateLabel:
		return http.StatusBadRequest
	case ErrorNotFound:
		return http.StatusNotFound
	case ErrorLockTimeout:
		return http.StatusConflict
	case ErrorDocumentUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ToMap converts error to map for job records and API responses
func (e *ServiceError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
