// Package errors provides categorized errors for the contact ranker pipeline.
//
// The taxonomy follows the failure model of the backfill pipeline: scope
// errors are soft and absorbed at the backfill boundary, source errors fail
// the whole job, validation errors are rejected synchronously, and
// concurrency conflicts are benign.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/contact-ranker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryScopeMissing represents a source skipped for missing OAuth scope (soft)
	CategoryScopeMissing ErrorCategory = "scope_missing"
	// CategorySource represents a hard upstream source failure (fails the job)
	CategorySource ErrorCategory = "source"
	// CategoryValidation represents caller input errors (4xx, nothing mutated)
	CategoryValidation ErrorCategory = "validation"
	// CategoryConflict represents benign concurrency conflicts (dedup hit, CAS miss)
	CategoryConflict ErrorCategory = "conflict"
	// CategoryNotFound represents missing resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryDatabase represents datastore errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryQueue represents queue transport errors
	CategoryQueue ErrorCategory = "queue"
	// CategorySystem represents other internal errors
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewScopeMissingError creates a soft scope-missing error for a source.
// The backfill service records these in the job result instead of failing.
func NewScopeMissingError(source types.Source) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryScopeMissing,
		StatusCode: http.StatusForbidden,
		Code:       "SCOPE_MISSING",
		Message:    fmt.Sprintf("OAuth scope missing for source: %s", source),
		Details: map[string]interface{}{
			"source": string(source),
		},
	}
}

// NewSourceError creates a hard source failure that fails the whole job
func NewSourceError(source types.Source, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySource,
		StatusCode: http.StatusBadGateway,
		Code:       "SOURCE_ERROR",
		Message:    fmt.Sprintf("metadata source failed: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": string(source),
		},
	}
}

// NewValidationError creates a validation error
func NewValidationError(reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Message:    reason,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewConflictError creates a benign concurrency conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewQueueError creates a queue transport error
func NewQueueError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryQueue,
		StatusCode: http.StatusInternalServerError,
		Code:       "QUEUE_ERROR",
		Message:    fmt.Sprintf("queue error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// IsScopeMissing reports whether the error is a soft scope-missing error
func IsScopeMissing(err error) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Category == CategoryScopeMissing
}

// IsConflict reports whether the error is a benign concurrency conflict
func IsConflict(err error) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Category == CategoryConflict
}

// IsValidation reports whether the error is a caller validation error
func IsValidation(err error) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Category == CategoryValidation
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable by the job scheduler.
// Scope and validation errors never are; transport and source errors may be.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategorySource, CategoryDatabase, CategoryQueue:
		return true
	default:
		return false
	}
}
