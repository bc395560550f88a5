// File: internal/common/errors.go
package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// APIError represents a standard structure for API errors.
type APIError struct {
	StatusCode int         `json:"-"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("APIError: StatusCode=%d, Code=%s, Message=%s", e.StatusCode, e.Code, e.Message)
}

func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying details; the shared values stay untouched.
func (e *APIError) WithDetails(details interface{}) *APIError {
	clone := *e
	clone.Details = details
	return &clone
}

var (
	ErrBadRequest          = NewAPIError(http.StatusBadRequest, "BAD_REQUEST", "The request is invalid.")
	ErrUnauthorized        = NewAPIError(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication is required and has failed or has not yet been provided.")
	ErrForbidden           = NewAPIError(http.StatusForbidden, "FORBIDDEN", "You do not have permission to access this resource.")
	ErrNotFound            = NewAPIError(http.StatusNotFound, "NOT_FOUND", "The requested resource could not be found.")
	ErrConflict            = NewAPIError(http.StatusConflict, "CONFLICT", "A conflict occurred with the current state of the resource.")
	ErrUnprocessableEntity = NewAPIError(http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY", "The request was well-formed but was unable to be followed due to semantic errors.")
	ErrInternalServer      = NewAPIError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred on the server.")
	ErrServiceUnavailable  = NewAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "The server is currently unable to handle the request.")
	ErrProfileMissing      = NewAPIError(http.StatusForbidden, "PROFILE_MISSING", "The account has no profile.")
)

func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func NewValidationAPIError(details interface{}) *APIError {
	return &APIError{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "VALIDATION_ERROR",
		Message:    "Input validation failed.",
		Details:    details,
	}
}

// FormatValidationErrors converts validator.ValidationErrors into a map.
func FormatValidationErrors(errs validator.ValidationErrors) map[string]string {
	errorMap := make(map[string]string)
	for _, e := range errs {
		field := e.Field()
		var message string
		switch e.Tag() {
		case "required":
			message = fmt.Sprintf("The %s field is required.", strings.ToLower(field))
		case "email":
			message = fmt.Sprintf("The %s field must be a valid email address.", strings.ToLower(field))
		case "min":
			message = fmt.Sprintf("The %s field must be at least %s characters long.", strings.ToLower(field), e.Param())
		case "max":
			message = fmt.Sprintf("The %s field may not be greater than %s characters.", strings.ToLower(field), e.Param())
		case "alphanumdash":
			message = fmt.Sprintf("The %s field may only contain alphanumeric characters and dashes.", strings.ToLower(field))
		case "oneof":
			message = fmt.Sprintf("The %s field must be one of the following values: %s.", strings.ToLower(field), e.Param())
		case "url":
			message = fmt.Sprintf("The %s field must be a valid URL.", strings.ToLower(field))
		case "datetime":
			message = fmt.Sprintf("The %s field must be a valid datetime in the format %s.", strings.ToLower(field), e.Param())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag.", field, e.Tag())
		}
		errorMap[field] = message
	}
	return errorMap
}

// ErrorKind classifies failures of session and content operations.
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION"
	KindAuthentication ErrorKind = "AUTHENTICATION"
	KindRegistration   ErrorKind = "REGISTRATION"
	KindWrite          ErrorKind = "WRITE"
)

// Authentication failure reasons.
const (
	ReasonNoSuchAccount   = "no_such_account"
	ReasonWrongCredential = "wrong_credential"
	ReasonUnknown         = "unknown"
)

// AppError is a domain failure that keeps its kind up to the HTTP layer.
type AppError struct {
	Kind    ErrorKind
	Reason  string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// NewValidationError reports input rejected before any remote call.
func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

// NewAuthenticationError reports a failed sign-in with one of the Reason* values.
func NewAuthenticationError(reason, message string, err error) *AppError {
	return &AppError{Kind: KindAuthentication, Reason: reason, Message: message, Err: err}
}

// NewRegistrationError reports a failed account or profile creation.
func NewRegistrationError(message string, err error) *AppError {
	return &AppError{Kind: KindRegistration, Message: message, Err: err}
}

// NewWriteError reports a failed content document write.
func NewWriteError(message string, err error) *AppError {
	return &AppError{Kind: KindWrite, Message: message, Err: err}
}

// IsAppError unwraps err to an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Kind == kind
}

// ToAPIError maps an AppError onto the HTTP error envelope.
func (e *AppError) ToAPIError() *APIError {
	var details interface{}
	if e.Reason != "" {
		details = map[string]string{"reason": e.Reason}
	}
	switch e.Kind {
	case KindValidation:
		return &APIError{StatusCode: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: e.Message, Details: details}
	case KindAuthentication:
		return &APIError{StatusCode: http.StatusUnauthorized, Code: "AUTHENTICATION_ERROR", Message: e.Message, Details: details}
	case KindRegistration:
		return &APIError{StatusCode: http.StatusBadGateway, Code: "REGISTRATION_ERROR", Message: e.Message, Details: details}
	case KindWrite:
		return &APIError{StatusCode: http.StatusBadGateway, Code: "WRITE_ERROR", Message: e.Message, Details: details}
	default:
		return &APIError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: e.Message, Details: details}
	}
}
