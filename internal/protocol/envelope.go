package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope type constants. This is the closed set of frame types exchanged
// between client and relay; anything else is dropped by the receiver.
const (
	// Client -> server
	TypeChatMessage = "chat_message"
	TypeChat        = "chat"
	TypePing        = "ping"

	// Server -> client
	TypeConnectionEstablished = "connection_established"
	TypeMessageReceived       = "message_received"
	TypeToken                 = "token"
	TypeCompletion            = "completion"
	TypeError                 = "error"
	TypePong                  = "pong"
	TypeSystem                = "system"
)

// Envelope is a single JSON frame on the wire, tagged by Type. Payload fields
// are a union; only the ones relevant to a given type are populated.
// Content is a pointer so a token frame with no content (or an explicit
// null) is distinguishable from one carrying an empty string.
type Envelope struct {
	Type      string  `json:"type"`
	Message   string  `json:"message,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	Content   *string `json:"content,omitempty"`
	Sender    string  `json:"sender,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// Encode serializes the envelope for transmission.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses a raw frame. Frames without a type tag are rejected so the
// caller can treat them the same as malformed JSON.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope has no type")
	}
	return env, nil
}

// ChatMessage builds the client frame carrying a user prompt.
func ChatMessage(message, sessionID string) Envelope {
	return Envelope{Type: TypeChatMessage, Message: message, SessionID: sessionID}
}

// Ping builds a client keepalive probe.
func Ping() Envelope {
	return Envelope{Type: TypePing}
}

// Token builds a server frame carrying one streamed chunk.
func Token(content string) Envelope {
	return Envelope{Type: TypeToken, Content: &content}
}

// Error builds a server error frame.
func Error(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}
