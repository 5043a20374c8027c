package validator

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AetherKnowledge/capstone/internal/domain"
)

var validate = validator.New()

// messageFrame is the schema of an inbound MESSAGE payload.
type messageFrame struct {
	ChatID  *string `json:"chatId" validate:"required"`
	Content string  `json:"content" validate:"required"`
}

// ParseMessage decodes and validates an inbound MESSAGE payload. Every
// failure wraps domain.ErrInvalidMessage.
func ParseMessage(raw json.RawMessage) (*domain.InboundMessage, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload: %w", domain.ErrInvalidMessage)
	}

	var frame messageFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode payload: %v: %w", err, domain.ErrInvalidMessage)
	}
	if err := validate.Struct(frame); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidMessage)
	}

	return &domain.InboundMessage{
		ChatID:  *frame.ChatID,
		Content: frame.Content,
	}, nil
}

// ParseEnvelope decodes a raw frame into an envelope with a non-empty type.
func ParseEnvelope(data []byte) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %v: %w", err, domain.ErrInvalidMessage)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("missing type: %w", domain.ErrInvalidMessage)
	}
	return &env, nil
}

// ParseDirect extracts the routing target of a non-MESSAGE payload.
func ParseDirect(raw json.RawMessage) (string, error) {
	var p domain.DirectPayload
	if len(raw) == 0 {
		return "", fmt.Errorf("empty payload: %w", domain.ErrInvalidMessage)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("decode payload: %v: %w", err, domain.ErrInvalidMessage)
	}
	if p.TargetUserID == "" {
		return "", fmt.Errorf("missing targetUserId: %w", domain.ErrInvalidMessage)
	}
	return p.TargetUserID, nil
}
