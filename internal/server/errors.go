package server

import (
	"encoding/json"
	"net/http"

	"github.com/aggrelay/aggrelay/internal/domain"
)

// openaiErrorBody is the error envelope for the chat-completions frontdoor.
type openaiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
		Param   string `json:"param,omitempty"`
	} `json:"error"`
}

// geminiErrorBody is the error envelope for the generateContent frontdoor.
type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// claudeErrorBody is the error envelope for the messages frontdoor.
type claudeErrorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError renders err in the vendor error shape the frontdoor speaks.
func writeError(w http.ResponseWriter, frontdoor string, err error) {
	apiErr := domain.AsAPIError(err)
	status := apiErr.HTTPStatusCode()

	var body any
	switch frontdoor {
	case "gemini":
		var e geminiErrorBody
		e.Error.Code = status
		e.Error.Message = apiErr.Message
		e.Error.Status = geminiStatus(status)
		body = e
	case "claude":
		var e claudeErrorBody
		e.Type = "error"
		e.Error.Type = claudeErrorType(apiErr.Type)
		e.Error.Message = apiErr.Message
		body = e
	default:
		var e openaiErrorBody
		e.Error.Message = apiErr.Message
		e.Error.Type = string(apiErr.Type)
		e.Error.Code = string(apiErr.Code)
		e.Error.Param = apiErr.Param
		body = e
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func geminiStatus(httpStatus int) string {
	switch httpStatus {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusForbidden, http.StatusPaymentRequired:
		return "PERMISSION_DENIED"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	default:
		return "INTERNAL"
	}
}

func claudeErrorType(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypeInvalidRequest, domain.ErrorTypeContextLength:
		return "invalid_request_error"
	case domain.ErrorTypeNotFound:
		return "not_found_error"
	case domain.ErrorTypePermission, domain.ErrorTypePayment:
		return "permission_error"
	case domain.ErrorTypeRateLimit:
		return "rate_limit_error"
	default:
		return "api_error"
	}
}
