package gatekeeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/hub"
	"github.com/AetherKnowledge/capstone/internal/repository"
	"github.com/AetherKnowledge/capstone/pkg/jwt"
)

type fakeChats struct {
	chats map[string]*domain.Chat
	err   error
}

func (f *fakeChats) GetChatWithMembers(_ context.Context, chatID string) (*domain.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.chats[chatID]
	if !ok {
		return nil, repository.ErrChatNotFound
	}
	return c, nil
}

func setup(t *testing.T) (*Gatekeeper, *jwt.Manager, *hub.Hub, *fakeChats) {
	t.Helper()
	tokens, err := jwt.NewManager("secret")
	require.NoError(t, err)
	chats := &fakeChats{chats: map[string]*domain.Chat{
		"c1": {ID: "c1", Members: []string{"u1", "u3"}},
	}}
	h := hub.NewHub(config.WebSocketConfig{})
	g := New(tokens, chats, h, config.RateLimitConfig{MaxMessages: 5, Window: 10 * time.Second})
	return g, tokens, h, chats
}

func token(t *testing.T, m *jwt.Manager, userID, name string) string {
	t.Helper()
	tok, _, err := m.GenerateToken(userID, name, "", "avatar.png")
	require.NoError(t, err)
	return tok
}

func TestAdmit(t *testing.T) {
	g, tokens, _, _ := setup(t)

	expiredMgr, err := jwt.NewManager("secret", jwt.WithClock(func() time.Time {
		return time.Now().Add(-48 * time.Hour)
	}))
	require.NoError(t, err)
	expired := token(t, expiredMgr, "u1", "Ana")

	tests := []struct {
		name    string
		chatID  string
		token   string
		wantErr error
	}{
		{"member", "c1", token(t, tokens, "u1", "Ana"), nil},
		{"missing token", "c1", "", domain.ErrUnauthorized},
		{"malformed token", "c1", "not-a-jwt", domain.ErrUnauthorized},
		{"expired token", "c1", expired, domain.ErrUnauthorized},
		{"unknown chat", "c9", token(t, tokens, "u1", "Ana"), domain.ErrChatNotFound},
		{"not a member", "c1", token(t, tokens, "u2", "Bo"), domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := g.Admit(context.Background(), tt.chatID, tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, domain.IsConnectionFatal(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", identity.UserID)
			assert.Equal(t, "Ana", identity.Name)
			assert.Equal(t, "avatar.png", identity.Avatar)
		})
	}
}

func TestAuthenticateDefaultsName(t *testing.T) {
	g, tokens, _, _ := setup(t)

	identity, err := g.Authenticate(token(t, tokens, "u1", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDisplayName, identity.Name)
}

func TestAuthorizeStoreFailureIsNotFatal(t *testing.T) {
	g, _, _, chats := setup(t)
	chats.err = errors.New("db down")

	_, err := g.Authorize(context.Background(), "c1", "u1")
	require.Error(t, err)
	assert.False(t, domain.IsConnectionFatal(err))
}

func TestConnectRegistersOnlyAdmitted(t *testing.T) {
	g, tokens, h, _ := setup(t)
	ctx := context.Background()

	_, err := g.Connect(ctx, "conn-bad", nil, "c1", token(t, tokens, "u2", "Bo"))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 0, h.Count())

	client, err := g.Connect(ctx, "conn-1", nil, "c1", token(t, tokens, "u1", "Ana"))
	require.NoError(t, err)
	assert.Equal(t, 1, h.Count())
	assert.Equal(t, "c1", client.Session.ChatID)
	assert.Equal(t, "u1", client.UserID())
	require.NotNil(t, client.Limiter)
	assert.Equal(t, 5, client.Limiter.Remaining())
}
