// Package api holds the HTTP response envelope shared by every handler.
// Successes wrap their payload in {"data": ...}; failures use a normalized
// envelope that mirrors the error records stored on index runs.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tessera-ai/tessera/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorEntry is one normalized error in a failure response
type ErrorEntry struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// FailureResponse is the envelope every failed request returns
type FailureResponse struct {
	Status    string       `json:"status"`
	Errors    []ErrorEntry `json:"errors"`
	Timestamp string       `json:"timestamp"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Failure writes a normalized failure envelope with a single error
func Failure(w http.ResponseWriter, status int, provider, code, message string) {
	JSON(w, status, FailureResponse{
		Status:    "failure",
		Errors:    []ErrorEntry{{Provider: provider, Code: code, Message: message}},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Error writes a failure envelope attributed to the API layer itself
func Error(w http.ResponseWriter, status int, code, message string) {
	Failure(w, status, "api", code, message)
}

// HandleError maps an error to the failure envelope. Domain errors keep
// their code and message; anything else becomes an opaque internal error
// so no raw error text leaks to clients.
func HandleError(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		Failure(w, DomainErrorToHTTP(err), "api", domainErr.Code, domainErr.Message)
		return
	}
	Failure(w, http.StatusInternalServerError, "api", domain.ErrCodeInternalError, "internal server error")
}

// DomainErrorToHTTP maps domain error codes to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeAlreadyExists:
		return http.StatusConflict
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeForbidden:
		return http.StatusForbidden
	case domain.ErrCodeInvalidOperation:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
