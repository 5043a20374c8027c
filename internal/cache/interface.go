package cache

import (
	"context"
	"errors"
	"time"

	"github.com/AetherKnowledge/capstone/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache caches chat history pages. All pages of one chat share a
// key so a new message invalidates them together.
type HistoryCache interface {
	Get(ctx context.Context, chatID string, limit int) ([]domain.HistoryMessage, error)
	Set(ctx context.Context, chatID string, limit int, messages []domain.HistoryMessage, ttl time.Duration) error
	Invalidate(ctx context.Context, chatID string) error
	Close() error
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, int) ([]domain.HistoryMessage, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) Set(context.Context, string, int, []domain.HistoryMessage, time.Duration) error {
	return nil
}

func (NoopCache) Invalidate(context.Context, string) error { return nil }

func (NoopCache) Close() error { return nil }
