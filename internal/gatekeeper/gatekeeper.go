// Package gatekeeper admits websocket connections to a chat.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/hub"
	"github.com/AetherKnowledge/capstone/internal/ratelimit"
	"github.com/AetherKnowledge/capstone/internal/repository"
	"github.com/AetherKnowledge/capstone/pkg/jwt"
	"github.com/AetherKnowledge/capstone/pkg/log"
)

// TokenVerifier validates identity tokens.
type TokenVerifier interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// ChatLoader loads a chat with its current members.
type ChatLoader interface {
	GetChatWithMembers(ctx context.Context, chatID string) (*domain.Chat, error)
}

type Gatekeeper struct {
	tokens    TokenVerifier
	chats     ChatLoader
	hub       *hub.Hub
	rateLimit config.RateLimitConfig
}

func New(tokens TokenVerifier, chats ChatLoader, h *hub.Hub, rateLimit config.RateLimitConfig) *Gatekeeper {
	return &Gatekeeper{
		tokens:    tokens,
		chats:     chats,
		hub:       h,
		rateLimit: rateLimit,
	}
}

// Authenticate verifies token and returns the identity it carries.
func (g *Gatekeeper) Authenticate(token string) (domain.Identity, error) {
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	name := claims.Name
	if name == "" {
		name = domain.DefaultDisplayName
	}
	return domain.Identity{
		UserID: claims.UserID(),
		Name:   name,
		Avatar: claims.Picture,
	}, nil
}

// Authorize loads chatID and checks that userID is a member. Membership
// is read from the store on every call.
func (g *Gatekeeper) Authorize(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := g.chats.GetChatWithMembers(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, domain.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if !chat.HasMember(userID) {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrForbidden)
	}
	return chat, nil
}

// Admit authenticates token and authorizes its user for chatID.
func (g *Gatekeeper) Admit(ctx context.Context, chatID, token string) (domain.Identity, error) {
	identity, err := g.Authenticate(token)
	if err != nil {
		return domain.Identity{}, err
	}
	if _, err := g.Authorize(ctx, chatID, identity.UserID); err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}

// Connect admits the connection and registers it with the hub. Nothing
// is registered when admission fails.
func (g *Gatekeeper) Connect(ctx context.Context, id string, conn *websocket.Conn, chatID, token string) (*hub.Client, error) {
	l := log.Ctx(ctx)

	identity, err := g.Admit(ctx, chatID, token)
	if err != nil {
		return nil, err
	}

	session := domain.NewSession(id, chatID, identity)
	limiter := ratelimit.New(g.rateLimit.MaxMessages, g.rateLimit.Window)
	client := hub.NewClient(id, g.hub, conn, session, limiter)
	if err := g.hub.Register(client); err != nil {
		return nil, err
	}

	l.Info().
		Str(log.FieldConnectionID, id).
		Str(log.FieldUserID, identity.UserID).
		Str(log.FieldChatID, chatID).
		Msg("connection admitted")
	return client, nil
}

// Reject closes a connection that failed admission. Connection-fatal
// errors use policy-violation status; anything else is an internal error.
func Reject(conn *websocket.Conn, err error, writeWait time.Duration) {
	code := websocket.CloseInternalServerErr
	reason := "Internal server error"
	if domain.IsConnectionFatal(err) {
		code = websocket.ClosePolicyViolation
		reason = domain.CloseReason(err)
	}

	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	conn.Close()
}
