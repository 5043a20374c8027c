package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/AetherKnowledge/capstone/internal/audit"
	"github.com/AetherKnowledge/capstone/internal/cache"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/events"
	"github.com/AetherKnowledge/capstone/internal/hub"
	"github.com/AetherKnowledge/capstone/internal/repository"
	"github.com/AetherKnowledge/capstone/internal/validator"
	"github.com/AetherKnowledge/capstone/pkg/log"
)

// Error messages sent to the originating connection.
const (
	MsgSendFailed        = "Failed to send message"
	MsgInvalidFormat     = "Invalid message format"
	MsgChatMismatch      = "Message chat does not match this connection"
	MsgRecipientNotFound = "Recipient is not a member of this chat"
)

type chatService struct {
	hub       *hub.Hub
	auth      Authorizer
	repo      repository.ChatRepository
	publisher events.Publisher
	cache     cache.HistoryCache
}

func NewChatService(
	h *hub.Hub,
	auth Authorizer,
	repo repository.ChatRepository,
	publisher events.Publisher,
	historyCache cache.HistoryCache,
) ChatService {
	return &chatService{
		hub:       h,
		auth:      auth,
		repo:      repo,
		publisher: publisher,
		cache:     historyCache,
	}
}

// HandleChatMessage persists msg and fans it out to every open connection
// of the chat's members, the sender included.
func (s *chatService) HandleChatMessage(ctx context.Context, c *hub.Client, msg *domain.InboundMessage) error {
	l := log.Ctx(ctx)
	chatID := c.Session.ChatID
	sender := c.Session.Identity

	if msg.ChatID != chatID {
		sendError(ctx, c, domain.ErrCodeForbidden, MsgChatMismatch)
		return fmt.Errorf("chat %s on connection bound to %s: %w", msg.ChatID, chatID, domain.ErrChatMismatch)
	}

	chat, err := s.authorize(ctx, c)
	if err != nil {
		return err
	}

	message, err := s.repo.CreateMessage(ctx, chatID, sender.UserID, msg.Content)
	if err != nil {
		sendError(ctx, c, domain.ErrCodeInternalError, MsgSendFailed)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if err := s.repo.TouchChatActivity(ctx, chatID, message.CreatedAt); err != nil {
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("failed to update chat activity")
	}
	if err := s.publisher.PublishMessage(ctx, message, sender); err != nil {
		l.Warn().Err(err).Str(log.FieldMessageID, message.ID).Msg("failed to publish message event")
	}
	if err := s.cache.Invalidate(ctx, chatID); err != nil {
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("failed to invalidate history cache")
	}

	env, err := domain.NewEnvelope(domain.EnvelopeMessage, message.ToPayload(sender.Name, sender.Avatar))
	if err != nil {
		return fmt.Errorf("failed to build message envelope: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message envelope: %w", err)
	}

	delivered := s.broadcast(ctx, s.hub.ConnectionsFor(chat.Members), data)

	audit.LogWithDetail(ctx, audit.ActionSendMessage, sender.UserID, message.ID, "message sent")
	l.Debug().
		Str(log.FieldMessageID, message.ID).
		Int("delivered", delivered).
		Msg("message broadcast")
	return nil
}

// broadcast writes data to every peer. A failing peer is dropped from the
// hub and does not affect the others.
func (s *chatService) broadcast(ctx context.Context, peers []*hub.Client, data []byte) int {
	l := log.Ctx(ctx)

	delivered := 0
	for _, peer := range peers {
		err := peer.SendRaw(data)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, hub.ErrClientClosed):
			// closed after the snapshot was taken
		default:
			l.Warn().Err(err).Str(log.FieldConnectionID, peer.ID).Msg("dropping unresponsive peer")
			peer.Close(websocket.CloseTryAgainLater, hub.CloseReasonSendBufferFull)
		}
	}
	return delivered
}

// HandleDirectEvent forwards a non-MESSAGE envelope unchanged to the
// member named by its targetUserId.
func (s *chatService) HandleDirectEvent(ctx context.Context, c *hub.Client, env *domain.Envelope) error {
	target, err := validator.ParseDirect(env.Payload)
	if err != nil {
		sendError(ctx, c, 0, MsgInvalidFormat)
		return err
	}

	chat, err := s.authorize(ctx, c)
	if err != nil {
		return err
	}
	if !chat.HasMember(target) {
		sendError(ctx, c, domain.ErrCodeForbidden, MsgRecipientNotFound)
		return fmt.Errorf("target %s: %w", target, domain.ErrForbidden)
	}

	delivered, err := s.SendMessageToClient(ctx, c, target, env)
	if err != nil {
		return err
	}

	audit.LogTarget(ctx, audit.ActionDirectEvent, c.UserID(), target, env.Type)
	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldEnvelopeType, env.Type).
		Int("delivered", delivered).
		Msg("direct event forwarded")
	return nil
}

// SendMessageToClient delivers env to targetUserID without persisting it.
// A sender addressing itself is answered on its own connection; any other
// target receives env on each of its open connections.
func (s *chatService) SendMessageToClient(ctx context.Context, sender *hub.Client, targetUserID string, env *domain.Envelope) (int, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if targetUserID == sender.UserID() {
		if err := sender.SendRaw(data); err != nil {
			return 0, err
		}
		return 1, nil
	}

	return s.broadcast(ctx, s.hub.ConnectionsForUser(targetUserID), data), nil
}

// HandleDisconnect records the end of a connection.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	audit.LogWithDetail(ctx, audit.ActionDisconnect, c.UserID(), c.Session.ChatID, "client disconnected")
}

// authorize re-checks the sender's membership. Losing membership or the
// chat closes the connection; a store failure is reported to the sender.
func (s *chatService) authorize(ctx context.Context, c *hub.Client) (*domain.Chat, error) {
	chat, err := s.auth.Authorize(ctx, c.Session.ChatID, c.UserID())
	if err == nil {
		return chat, nil
	}

	if domain.IsConnectionFatal(err) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("membership revoked, closing connection")
		c.Close(websocket.ClosePolicyViolation, domain.CloseReason(err))
		return nil, err
	}

	sendError(ctx, c, domain.ErrCodeInternalError, MsgSendFailed)
	return nil, err
}

func sendError(ctx context.Context, c *hub.Client, code int, message string) {
	if err := c.SendMessage(domain.NewErrorEnvelope(code, message)); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldConnectionID, c.ID).Msg("failed to send error envelope")
	}
}
