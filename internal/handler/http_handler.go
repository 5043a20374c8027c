package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/hub"
	"github.com/AetherKnowledge/capstone/internal/service"
	"github.com/AetherKnowledge/capstone/pkg/log"
	"github.com/AetherKnowledge/capstone/pkg/middleware"
	"github.com/AetherKnowledge/capstone/pkg/response"
)

type HTTPHandler struct {
	history        service.HistoryService
	authMiddleware *middleware.AuthMiddleware
	hub            *hub.Hub
	cfg            config.HistoryConfig
}

func NewHTTPHandler(history service.HistoryService, authMiddleware *middleware.AuthMiddleware, h *hub.Hub, cfg config.HistoryConfig) *HTTPHandler {
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &HTTPHandler{
		history:        history,
		authMiddleware: authMiddleware,
		hub:            h,
		cfg:            cfg,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/chats/:chat_id/messages", h.authMiddleware.RequireAuth(), h.GetMessages)
	}

	r.GET("/health", h.HealthCheck)
}

// GetMessages returns the latest messages of a chat, oldest first.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	chatID := c.Param("chat_id")

	limit := h.cfg.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > h.cfg.MaxLimit {
			limit = h.cfg.MaxLimit
		}
	}

	messages, err := h.history.GetHistory(ctx, chatID, userID, limit)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrChatNotFound):
			response.NotFound(c, domain.CloseReasonChatNotFound)
		case errors.Is(err, domain.ErrForbidden):
			response.Forbidden(c, domain.CloseReasonForbidden)
		default:
			l.Error().Err(err).Msg("failed to get chat history")
			response.InternalError(c, "failed to get chat history")
		}
		return
	}

	payloads := make([]domain.MessagePayload, len(messages))
	for i := range messages {
		payloads[i] = messages[i].ToPayload()
	}
	response.Success(c, payloads)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":      "ok",
		"connections": h.hub.Count(),
	})
}
