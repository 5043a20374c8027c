package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AetherKnowledge/capstone/internal/audit"
	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/gatekeeper"
	"github.com/AetherKnowledge/capstone/internal/hub"
	"github.com/AetherKnowledge/capstone/internal/service"
	"github.com/AetherKnowledge/capstone/internal/validator"
	"github.com/AetherKnowledge/capstone/pkg/log"
	"github.com/AetherKnowledge/capstone/pkg/middleware"
)

const MsgRateLimited = "Rate limit exceeded. Please slow down."

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	gate    *gatekeeper.Gatekeeper
	service service.ChatService
	wsCfg   config.WebSocketConfig
	sources middleware.TokenSources
}

func NewWSHandler(gate *gatekeeper.Gatekeeper, svc service.ChatService, wsCfg config.WebSocketConfig, sources middleware.TokenSources) *WSHandler {
	return &WSHandler{
		gate:    gate,
		service: svc,
		wsCfg:   wsCfg,
		sources: sources,
	}
}

// HandleWebSocket upgrades the request, then admits it to the chat in the
// path. Rejected connections are closed with policy-violation status.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	chatID := c.Param("chat_id")
	token := middleware.ExtractToken(c.Request, h.sources)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.New().String()
	// The connection outlives the request; keep its logger, not its cancellation.
	ctx := log.WithLogger(context.Background(), log.Ctx(c.Request.Context()))
	ctx = log.WithFields(ctx, log.FieldConnectionID, id, log.FieldChatID, chatID)

	client, err := h.gate.Connect(ctx, id, conn, chatID, token)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("connection rejected")
		audit.LogWithDetail(ctx, audit.ActionConnectRejected, "", chatID, err.Error())
		gatekeeper.Reject(conn, err, h.wsCfg.WriteWait)
		return
	}

	ctx = log.WithFields(ctx, log.FieldUserID, client.UserID())
	audit.LogWithDetail(ctx, audit.ActionConnect, client.UserID(), chatID, "client connected")

	go client.WritePump()
	go func() {
		client.ReadPump(func(cl *hub.Client, data []byte) {
			h.handleMessage(ctx, cl, data)
		})
		h.service.HandleDisconnect(ctx, client)
	}()
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, data []byte) {
	l := log.Ctx(ctx)

	if !client.Limiter.Allow() {
		l.Warn().Err(domain.ErrRateLimited).Msg("frame dropped")
		audit.Log(ctx, audit.ActionRateLimited, client.UserID(), "frame dropped by rate limiter")
		sendError(ctx, client, domain.ErrCodeRateLimited, MsgRateLimited)
		return
	}

	env, err := validator.ParseEnvelope(data)
	if err != nil {
		sendError(ctx, client, 0, service.MsgInvalidFormat)
		return
	}

	switch env.Type {
	case domain.EnvelopeMessage:
		msg, err := validator.ParseMessage(env.Payload)
		if err != nil {
			l.Debug().Err(err).Msg("invalid message frame")
			sendError(ctx, client, 0, service.MsgInvalidFormat)
			return
		}
		if err := h.service.HandleChatMessage(ctx, client, msg); err != nil {
			logFrameError(ctx, env.Type, err)
		}

	default:
		if err := h.service.HandleDirectEvent(ctx, client, env); err != nil {
			logFrameError(ctx, env.Type, err)
		}
	}
}

func logFrameError(ctx context.Context, envelopeType string, err error) {
	l := log.Ctx(ctx)
	evt := l.Warn()
	if errors.Is(err, domain.ErrInvalidMessage) || errors.Is(err, domain.ErrChatMismatch) {
		evt = l.Debug()
	}
	evt.Err(err).Str(log.FieldEnvelopeType, envelopeType).Msg("frame not handled")
}

func sendError(ctx context.Context, client *hub.Client, code int, message string) {
	if err := client.SendMessage(domain.NewErrorEnvelope(code, message)); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("failed to send error envelope")
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/chats/:chat_id", h.HandleWebSocket)
}
