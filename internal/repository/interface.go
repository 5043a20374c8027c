package repository

import (
	"context"
	"time"

	"github.com/AetherKnowledge/capstone/internal/domain"
)

var (
	ErrChatNotFound = domain.ErrChatNotFound
)

// UnknownSenderName is reported for messages whose sender has no profile.
const UnknownSenderName = "Unknown"

// ChatRepository is the persistence adapter for chats and messages.
type ChatRepository interface {
	CreateMessage(ctx context.Context, chatID, userID, content string) (*domain.Message, error)
	TouchChatActivity(ctx context.Context, chatID string, at time.Time) error
	GetChatWithMembers(ctx context.Context, chatID string) (*domain.Chat, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]domain.HistoryMessage, error)
	CreateChat(ctx context.Context, name string, members ...string) (*domain.Chat, error)
	AddMember(ctx context.Context, chatID, userID string) error
}
