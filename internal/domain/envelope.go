package domain

import "encoding/json"

// Envelope types carried over the persistent connection.
const (
	EnvelopeMessage      = "MESSAGE"
	EnvelopeError        = "ERROR"
	EnvelopeInitiateCall = "INITIATE_CALL"
	EnvelopeAnswerCall   = "ANSWER_CALL"
	EnvelopeCallEnded    = "CALL_ENDED"
)

// Error codes sent in ERROR envelopes. They mirror HTTP status codes.
const (
	ErrCodeForbidden     = 403
	ErrCodeRateLimited   = 429
	ErrCodeInternalError = 500
)

// Envelope is the wire unit in both directions. Payload is kept raw so
// unrecognized types can be forwarded unchanged.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessagePayload is the outbound MESSAGE payload.
type MessagePayload struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Name      string `json:"name"`
	Src       string `json:"src"`
}

// ErrorPayload is the outbound ERROR payload.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// DirectPayload is the part of a non-MESSAGE payload the relay inspects
// to route it; the rest of the payload is opaque.
type DirectPayload struct {
	TargetUserID string `json:"targetUserId"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: typ, Payload: raw}, nil
}

// NewErrorEnvelope builds an ERROR envelope. A zero code is omitted.
func NewErrorEnvelope(code int, message string) *Envelope {
	raw, _ := json.Marshal(ErrorPayload{Message: message, Code: code})
	return &Envelope{Type: EnvelopeError, Payload: raw}
}

