package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse is the JSON error envelope returned by the ops gateway.
type HTTPErrorResponse struct {
	Error HTTPErrorBody `json:"error"`
}

// HTTPErrorBody carries the machine-readable code and human message.
type HTTPErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Stable HTTP error codes.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

// RespondWithError writes a JSON error envelope with the given status.
func RespondWithError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorBody{Code: code, Message: message, Details: details},
	})
}
