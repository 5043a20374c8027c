package service

import (
	"context"

	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/hub"
)

// Authorizer re-derives chat membership.
type Authorizer interface {
	Authorize(ctx context.Context, chatID, userID string) (*domain.Chat, error)
}

// ChatService persists chat messages and delivers envelopes to connections.
type ChatService interface {
	HandleChatMessage(ctx context.Context, c *hub.Client, msg *domain.InboundMessage) error
	HandleDirectEvent(ctx context.Context, c *hub.Client, env *domain.Envelope) error
	SendMessageToClient(ctx context.Context, sender *hub.Client, targetUserID string, env *domain.Envelope) (int, error)
	HandleDisconnect(ctx context.Context, c *hub.Client)
}

// HistoryService serves the message history read path.
type HistoryService interface {
	GetHistory(ctx context.Context, chatID, userID string, limit int) ([]domain.HistoryMessage, error)
}
