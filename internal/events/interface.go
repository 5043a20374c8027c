package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AetherKnowledge/capstone/internal/domain"
)

const TypeMessageCreated = "message.created"

// MessageEvent is published for every persisted message.
type MessageEvent struct {
	Type        string                `json:"type"`
	Message     domain.MessagePayload `json:"message"`
	PublishedAt time.Time             `json:"publishedAt"`
}

// Publisher emits message events to downstream consumers.
type Publisher interface {
	PublishMessage(ctx context.Context, msg *domain.Message, sender domain.Identity) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishMessage(context.Context, *domain.Message, domain.Identity) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

func encodeMessageEvent(msg *domain.Message, sender domain.Identity, now time.Time) ([]byte, error) {
	return json.Marshal(MessageEvent{
		Type:        TypeMessageCreated,
		Message:     msg.ToPayload(sender.Name, sender.Avatar),
		PublishedAt: now.UTC(),
	})
}
