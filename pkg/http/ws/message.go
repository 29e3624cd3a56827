package ws

import "encoding/json"

// MessageType constants for the display WebSocket protocol.
const (
	// Client -> Server
	TypePing = "ping"

	// Server -> Client
	TypeAlert         = "alert"
	TypeSessionUpdate = "session_update"
	TypeError         = "error"
	TypePong          = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(msgType string, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: raw}, nil
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
