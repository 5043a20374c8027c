package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AetherKnowledge/capstone/internal/cache"
	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/hub"
	"github.com/AetherKnowledge/capstone/internal/repository"
)

type fakeRepo struct {
	mu        sync.Mutex
	chats     map[string]*domain.Chat
	messages  []*domain.Message
	history   []domain.HistoryMessage
	listCalls int
	touched   []string
	createErr error
	touchErr  error
	chatErr   error
	nextID    int

	// onCreate runs at the start of CreateMessage, outside the lock.
	onCreate func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{chats: map[string]*domain.Chat{
		"c1": {ID: "c1", Members: []string{"u1", "u2", "u3"}},
	}}
}

func (r *fakeRepo) CreateMessage(_ context.Context, chatID, userID, content string) (*domain.Message, error) {
	if r.onCreate != nil {
		r.onCreate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	now := time.Date(2024, 1, 1, 0, 0, r.nextID, 0, time.UTC)
	m := &domain.Message{ID: fmt.Sprintf("m%d", r.nextID), ChatID: chatID, UserID: userID, Content: content, CreatedAt: now, UpdatedAt: now}
	r.messages = append(r.messages, m)
	return m, nil
}

func (r *fakeRepo) TouchChatActivity(_ context.Context, chatID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, chatID)
	return r.touchErr
}

func (r *fakeRepo) GetChatWithMembers(_ context.Context, chatID string) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chatErr != nil {
		return nil, r.chatErr
	}
	c, ok := r.chats[chatID]
	if !ok {
		return nil, repository.ErrChatNotFound
	}
	cp := *c
	cp.Members = append([]string(nil), c.Members...)
	return &cp, nil
}

func (r *fakeRepo) ListMessages(_ context.Context, _ string, _ int) ([]domain.HistoryMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	return r.history, nil
}

func (r *fakeRepo) CreateChat(context.Context, string, ...string) (*domain.Chat, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRepo) AddMember(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (r *fakeRepo) setMembers(chatID string, members ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[chatID].Members = members
}

func (r *fakeRepo) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// fakeAuth mirrors the gatekeeper's membership check over fakeRepo.
type fakeAuth struct {
	repo *fakeRepo
}

func (a fakeAuth) Authorize(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := a.repo.GetChatWithMembers(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, domain.ErrChatNotFound
		}
		return nil, err
	}
	if !chat.HasMember(userID) {
		return nil, domain.ErrForbidden
	}
	return chat, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*domain.Message
	err       error
}

func (p *fakePublisher) PublishMessage(_ context.Context, msg *domain.Message, _ domain.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string][]domain.HistoryMessage
	invalidated []string
	sets        int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]domain.HistoryMessage{}}
}

func (c *fakeCache) Get(_ context.Context, chatID string, limit int) ([]domain.HistoryMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.entries[fmt.Sprintf("%s:%d", chatID, limit)]; ok {
		return m, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *fakeCache) Set(_ context.Context, chatID string, limit int, messages []domain.HistoryMessage, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[fmt.Sprintf("%s:%d", chatID, limit)] = messages
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, chatID)
	return nil
}

func (c *fakeCache) Close() error { return nil }

func (c *fakeCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func newTestHub() *hub.Hub {
	return hub.NewHub(config.WebSocketConfig{SendBuffer: 8})
}

func connect(t *testing.T, h *hub.Hub, id, userID, name string) *hub.Client {
	t.Helper()
	s := domain.NewSession(id, "c1", domain.Identity{UserID: userID, Name: name, Avatar: name + ".png"})
	c := hub.NewClient(id, h, nil, s, nil)
	require.NoError(t, h.Register(c))
	return c
}

// drain returns every envelope queued for c.
func drain(t *testing.T, c *hub.Client) []domain.Envelope {
	t.Helper()
	var out []domain.Envelope
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var env domain.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func decodeError(t *testing.T, env domain.Envelope) domain.ErrorPayload {
	t.Helper()
	require.Equal(t, domain.EnvelopeError, env.Type)
	var p domain.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}
