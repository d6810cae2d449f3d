package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Pipeline error codes. Configuration errors abort a run; the others are
// isolated to the failing unit or batch and recorded on the IndexRun.
const (
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeParse           = "PARSE_ERROR"
	ErrCodeEmbeddingFailed = "EMBEDDING_FAILED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeStorageFailure  = "STORAGE_FAILURE"
)

// Validation errors
var (
	ErrInvalidFragmentType   = NewDomainError(ErrCodeValidation, "invalid fragment type")
	ErrInvalidSourceType     = NewDomainError(ErrCodeValidation, "invalid source type")
	ErrInvalidEdgeKind       = NewDomainError(ErrCodeValidation, "invalid relationship edge kind")
	ErrInvalidRunScope       = NewDomainError(ErrCodeValidation, "invalid index run scope")
	ErrInvalidSourceKind     = NewDomainError(ErrCodeValidation, "invalid source kind")
	ErrEmptyContent          = NewDomainError(ErrCodeValidation, "fragment content cannot be empty")
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidEmbeddingState = NewDomainError(ErrCodeValidation, "invalid embedding status")
)

// Not found errors
var (
	ErrFragmentNotFound     = NewDomainError(ErrCodeNotFound, "fragment not found")
	ErrSourceNotFound       = NewDomainError(ErrCodeNotFound, "source not found")
	ErrIndexRunNotFound     = NewDomainError(ErrCodeNotFound, "index run not found")
	ErrOrganizationNotFound = NewDomainError(ErrCodeNotFound, "organization not found")
	ErrProjectNotFound      = NewDomainError(ErrCodeNotFound, "project not found")
	ErrAPIKeyNotFound       = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrOrganizationAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "organization already exists")
	ErrProjectAlreadyExists      = NewDomainError(ErrCodeAlreadyExists, "project already exists")
	ErrSourceAlreadyExists       = NewDomainError(ErrCodeAlreadyExists, "source already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Scheduler errors
var (
	ErrRunInFlight      = NewDomainError(ErrCodeAlreadyExists, "an index run is already in flight for this source")
	ErrRunNotCancelable = NewDomainError(ErrCodeInvalidOperation, "index run is not in a cancelable state")
	ErrSourceDisabled   = NewDomainError(ErrCodeInvalidOperation, "source is disabled")
)

// Pipeline errors
var (
	ErrMissingAPIKey      = NewDomainError(ErrCodeConfiguration, "embedding provider api key is not configured")
	ErrWrongDimension     = NewDomainError(ErrCodeConfiguration, "embedding dimension does not match configuration")
	ErrEmbeddingExhausted = NewDomainError(ErrCodeEmbeddingFailed, "embedding retries exhausted")
)
