package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// respondCategorizedError maps a service-layer error onto the wire. Database
// and system errors are reduced to a generic message so internals never leak.
func respondCategorizedError(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)

	switch catErr.Category {
	case apperrors.CategoryValidation:
		respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
	case apperrors.CategoryNotFound:
		respondError(w, http.StatusNotFound, ErrCodeNotFound, catErr.Message, nil)
	case apperrors.CategoryConflict:
		respondError(w, http.StatusConflict, ErrCodeConflict, catErr.Message, nil)
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
	}
}
