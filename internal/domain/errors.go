// Package domain provides the canonical types and error taxonomy for the gateway.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates a resource (usually a model) was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypePermission indicates policy forbids the requested model.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypePayment indicates no credential can fund the request.
	ErrorTypePayment ErrorType = "payment"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeContextLength indicates the context window was exceeded.
	ErrorTypeContextLength ErrorType = "context_length"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeModelNotFound       ErrorCode = "model_not_found"
	ErrorCodeModelAmbiguous      ErrorCode = "model_ambiguous"
	ErrorCodePaidProhibited      ErrorCode = "paid_model_prohibited"
	ErrorCodeModeratedProhibited ErrorCode = "moderated_model_prohibited"
	ErrorCodeFamilyProhibited    ErrorCode = "family_prohibited"
	ErrorCodeNoCredentialFree    ErrorCode = "no_credential_free"
	ErrorCodeNoCredentialPaid    ErrorCode = "no_credential_paid"
	ErrorCodeContextExceeded     ErrorCode = "context_length_exceeded"
	ErrorCodeSchemaValidation    ErrorCode = "schema_validation"
)

// APIError is the canonical error returned by the resolve/select/transform
// chain. The boundary layer maps it to a vendor error shape and HTTP status.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Param is the offending value (model name, field list) if applicable
	Param string `json:"param,omitempty"`

	// StatusCode is an explicit HTTP status override
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest, ErrorTypeContextLength:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypePayment:
		return http.StatusPaymentRequired
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AsAPIError unwraps err into an *APIError, or wraps it as a server error.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Type: ErrorTypeServer, Message: err.Error()}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{Type: errType, Message: message}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam records the offending value.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// ErrModelNotFound reports a model name that matched nothing in the catalogue.
func ErrModelNotFound(input string) *APIError {
	return NewAPIError(ErrorTypeNotFound, fmt.Sprintf("no model matching %q", input)).
		WithCode(ErrorCodeModelNotFound).
		WithParam(input)
}

// ErrModelAmbiguous reports a name that could not be disambiguated. It covers
// both zero candidates after fuzzy search and multiple without a tiebreak.
func ErrModelAmbiguous(input string) *APIError {
	return NewAPIError(ErrorTypeNotFound, fmt.Sprintf("model name %q is ambiguous", input)).
		WithCode(ErrorCodeModelAmbiguous).
		WithParam(input)
}

// ErrPaidProhibited reports a paid model blocked by policy.
func ErrPaidProhibited(model string) *APIError {
	return NewAPIError(ErrorTypePermission, fmt.Sprintf("model %s is a paid model and paid models are disabled", model)).
		WithCode(ErrorCodePaidProhibited).
		WithParam(model)
}

// ErrModeratedProhibited reports a moderated model blocked by policy.
func ErrModeratedProhibited(model string) *APIError {
	return NewAPIError(ErrorTypePermission, fmt.Sprintf("model %s is moderated and moderated models are disabled", model)).
		WithCode(ErrorCodeModeratedProhibited).
		WithParam(model)
}

// ErrFamilyProhibited reports a model whose family is blocked by policy.
func ErrFamilyProhibited(model, family string) *APIError {
	return NewAPIError(ErrorTypePermission, fmt.Sprintf("model %s belongs to blocked family %s", model, family)).
		WithCode(ErrorCodeFamilyProhibited).
		WithParam(model)
}

// ErrNoCredential reports pool exhaustion for the requested spend class.
func ErrNoCredential(paid bool) *APIError {
	if paid {
		return NewAPIError(ErrorTypePayment, "no credential with remaining balance for paid model").
			WithCode(ErrorCodeNoCredentialPaid)
	}
	return NewAPIError(ErrorTypePayment, "no usable credential for free model").
		WithCode(ErrorCodeNoCredentialFree)
}

// ErrContextLength reports a prompt that exceeds the resolved model's window.
func ErrContextLength(window, promptTokens int) *APIError {
	return NewAPIError(ErrorTypeContextLength,
		fmt.Sprintf("prompt is %d tokens but model context window is %d", promptTokens, window)).
		WithCode(ErrorCodeContextExceeded)
}

// ErrSchemaValidation reports an inbound body that does not conform to the
// expected vendor schema, listing the offending fields.
func ErrSchemaValidation(fields ...string) *APIError {
	msg := "request body failed validation"
	if len(fields) > 0 {
		msg = fmt.Sprintf("request body failed validation: %v", fields)
	}
	e := NewAPIError(ErrorTypeInvalidRequest, msg).WithCode(ErrorCodeSchemaValidation)
	if len(fields) > 0 {
		e.Param = fields[0]
	}
	return e
}
