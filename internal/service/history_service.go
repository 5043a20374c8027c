package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AetherKnowledge/capstone/internal/cache"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/repository"
	"github.com/AetherKnowledge/capstone/pkg/log"
)

type historyService struct {
	auth     Authorizer
	repo     repository.ChatRepository
	cache    cache.HistoryCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewHistoryService(
	auth Authorizer,
	repo repository.ChatRepository,
	historyCache cache.HistoryCache,
	cacheTTL time.Duration,
) HistoryService {
	return &historyService{
		auth:     auth,
		repo:     repo,
		cache:    historyCache,
		cacheTTL: cacheTTL,
	}
}

// GetHistory returns the latest limit messages of chatID for a member.
func (s *historyService) GetHistory(ctx context.Context, chatID, userID string, limit int) ([]domain.HistoryMessage, error) {
	if _, err := s.auth.Authorize(ctx, chatID, userID); err != nil {
		return nil, err
	}

	// Use singleflight to prevent duplicate requests for the same page
	key := fmt.Sprintf("%s:%d", chatID, limit)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, chatID, limit)
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]domain.HistoryMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return messages, nil
}

func (s *historyService) fetchWithCache(ctx context.Context, chatID string, limit int) ([]domain.HistoryMessage, error) {
	cached, err := s.cache.Get(ctx, chatID, limit)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	messages, err := s.repo.ListMessages(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	// Store in cache (async to avoid blocking response)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, chatID, limit, messages, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("cache set error")
		}
	}()

	return messages, nil
}
