package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API callers and stored on failed jobs.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeTemplateUnavailable = "TEMPLATE_UNAVAILABLE"
	CodeDuplicateTicket     = "DUPLICATE_TICKET"
	CodeGenerationExhausted = "GENERATION_EXHAUSTED"
	CodeNotFound            = "NOT_FOUND"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeMailFailure         = "MAIL_FAILURE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeConflict            = "CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewMissingField reports a required request field that was absent or blank.
func NewMissingField(field string) error {
	return NewValidationError("missing required field: "+field, map[string]any{"field": field})
}

// NewTemplateUnavailable reports a template that could not be fetched or loaded.
// Caller-caused failures (bad URL, unknown id) map to 400, the rest to 502.
func NewTemplateUnavailable(source string, callerCaused bool, err error) error {
	status := http.StatusBadGateway
	if callerCaused {
		status = http.StatusBadRequest
	}
	return &DomainError{
		Code:       CodeTemplateUnavailable,
		Message:    "template image unavailable",
		HTTPStatus: status,
		Details:    map[string]any{"source": source},
		Err:        err,
	}
}

func NewDuplicateTicket(ticketNumber string) error {
	return NewDomainError(CodeDuplicateTicket, "ticket number already exists", http.StatusConflict,
		map[string]any{"ticket_number": ticketNumber})
}

func NewGenerationExhausted(attempts int) error {
	return NewDomainError(CodeGenerationExhausted, "could not generate a unique ticket number",
		http.StatusInternalServerError, map[string]any{"attempts": attempts})
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewStoreUnavailable(err error) error {
	return &DomainError{
		Code:       CodeStoreUnavailable,
		Message:    "store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
