package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/pkg/database"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: "file::memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))
	return db
}

func newTestRepo(t *testing.T) (*GormChatRepository, *gorm.DB) {
	db := newTestDB(t)
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewGormChatRepository(db, WithClock(clock.Now)), db
}

func TestGetChatWithMembers(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.CreateChat(ctx, "general", "u2", "u1")
	require.NoError(t, err)

	got, err := repo.GetChatWithMembers(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", got.Name)
	assert.Equal(t, []string{"u1", "u2"}, got.Members)

	_, err = repo.GetChatWithMembers(ctx, "missing")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestAddMember(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.CreateChat(ctx, "", "u1")
	require.NoError(t, err)

	require.NoError(t, repo.AddMember(ctx, chat.ID, "u2"))
	require.NoError(t, repo.AddMember(ctx, chat.ID, "u2"))
	assert.ErrorIs(t, repo.AddMember(ctx, "missing", "u2"), ErrChatNotFound)

	got, err := repo.GetChatWithMembers(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.Members)
}

func TestCreateMessageAndTouch(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.CreateChat(ctx, "", "u1")
	require.NoError(t, err)

	msg, err := repo.CreateMessage(ctx, chat.ID, "u1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, msg.CreatedAt, msg.UpdatedAt)

	require.NoError(t, repo.TouchChatActivity(ctx, chat.ID, msg.CreatedAt))
	got, err := repo.GetChatWithMembers(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(msg.CreatedAt))

	assert.ErrorIs(t, repo.TouchChatActivity(ctx, "missing", time.Now()), ErrChatNotFound)
}

func TestListMessagesReturnsMostRecentOldestFirst(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&domain.UserModel{ID: "u1", Name: "Ana", Image: "ana.png"}).Error)

	chat, err := repo.CreateChat(ctx, "", "u1", "u2")
	require.NoError(t, err)
	other, err := repo.CreateChat(ctx, "", "u1")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := repo.CreateMessage(ctx, chat.ID, "u1", content)
		require.NoError(t, err)
	}
	_, err = repo.CreateMessage(ctx, chat.ID, "u2", "four")
	require.NoError(t, err)
	_, err = repo.CreateMessage(ctx, other.ID, "u1", "elsewhere")
	require.NoError(t, err)

	msgs, err := repo.ListMessages(ctx, chat.ID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
	assert.Equal(t, "four", msgs[2].Content)
	assert.Equal(t, "Ana", msgs[0].Name)
	assert.Equal(t, "ana.png", msgs[0].Src)
	assert.Equal(t, UnknownSenderName, msgs[2].Name)
	assert.Empty(t, msgs[2].Src)

	all, err := repo.ListMessages(ctx, chat.ID, 100)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
