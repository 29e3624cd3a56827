package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

var statusByCode = map[string]int{
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeValidationFailed:   http.StatusBadRequest,
	ErrCodeMissingField:       http.StatusBadRequest,
	ErrCodeInvalidScope:       http.StatusBadRequest,
	ErrCodeInvalidPayload:     http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeNoSession:          http.StatusNotFound,
	ErrCodeAlreadyExists:      http.StatusConflict,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeSessionExists:      http.StatusConflict,
	ErrCodeMutationInFlight:   http.StatusConflict,
	ErrCodeInvalidState:       http.StatusConflict,
	ErrCodeFinalizeNotAllowed: http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeUpstreamError:      http.StatusBadGateway,
}

// StatusFor returns the HTTP status paired with code, 500 for unknown codes.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Respond writes the envelope for code using its paired status.
func Respond(w http.ResponseWriter, code, message string) {
	RespondError(w, StatusFor(code), code, message)
}

// RespondError writes the envelope with an explicit status.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	write(w, status, ErrorResponse{Error: code, Message: message})
}

// RespondValidationError writes a 400 naming the offending field.
func RespondValidationError(w http.ResponseWriter, code, message, field string) {
	write(w, http.StatusBadRequest, ErrorResponse{Error: code, Message: message, Field: field})
}

// RespondErrorWithDetails writes the envelope with extra context, e.g. the
// remote status that caused a failure.
func RespondErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	write(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// RespondBadRequest writes a bad request error response
func RespondBadRequest(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusBadRequest, code, message)
}

func write(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
