package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Resource errors
	ErrCodeNotFound      = "not_found"
	ErrCodeAlreadyExists = "already_exists"
	ErrCodeConflict      = "conflict"

	// Session errors
	ErrCodeNoSession          = "no_session"
	ErrCodeSessionExists      = "session_exists"
	ErrCodeMutationInFlight   = "mutation_in_flight"
	ErrCodeInvalidState       = "invalid_state"
	ErrCodeFinalizeNotAllowed = "finalized_not_reverted"
	ErrCodeInvalidScope       = "invalid_scope"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeConnectionError    = "connection_error"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
