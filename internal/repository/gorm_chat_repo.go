package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/pkg/log"
)

// GormChatRepository implements ChatRepository using GORM.
type GormChatRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a GormChatRepository.
type Option func(*GormChatRepository)

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *GormChatRepository) {
		r.now = now
	}
}

// NewGormChatRepository creates a new GORM-based chat repository.
func NewGormChatRepository(db *gorm.DB, opts ...Option) *GormChatRepository {
	r := &GormChatRepository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateMessage appends a message to a chat.
func (r *GormChatRepository) CreateMessage(ctx context.Context, chatID, userID, content string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	now := r.now().UTC()
	model := &domain.ChatMessageModel{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		UserID:    userID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to create message in db")
		return nil, err
	}

	l.Debug().Str(log.FieldMessageID, model.ID).Msg("message created in db")
	return model.ToDomain(), nil
}

// TouchChatActivity sets the chat's last message time.
func (r *GormChatRepository) TouchChatActivity(ctx context.Context, chatID string, at time.Time) error {
	l := log.Ctx(ctx)

	at = at.UTC()
	result := r.db.WithContext(ctx).Model(&domain.ChatModel{}).
		Where("id = ?", chatID).
		Update("last_message_at", &at)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldChatID, chatID).Msg("failed to touch chat activity")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// GetChatWithMembers loads a chat and its current member ids.
func (r *GormChatRepository) GetChatWithMembers(ctx context.Context, chatID string) (*domain.Chat, error) {
	l := log.Ctx(ctx)

	var chat domain.ChatModel
	if err := r.db.WithContext(ctx).First(&chat, "id = ?", chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to get chat by id")
		return nil, err
	}

	var members []string
	if err := r.db.WithContext(ctx).Model(&domain.ChatMemberModel{}).
		Where("chat_id = ?", chatID).
		Order("user_id").
		Pluck("user_id", &members).Error; err != nil {
		l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to get chat members")
		return nil, err
	}

	return &domain.Chat{
		ID:            chat.ID,
		Name:          chat.Name,
		LastMessageAt: chat.LastMessageAt,
		Members:       members,
	}, nil
}

type historyRow struct {
	ID        string
	ChatID    string
	UserID    string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      sql.NullString
	Image     sql.NullString
}

// ListMessages returns the most recent limit messages of a chat, oldest
// first, with each sender's profile.
func (r *GormChatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]domain.HistoryMessage, error) {
	l := log.Ctx(ctx)

	if limit < 1 {
		limit = 50
	}

	var rows []historyRow
	err := r.db.WithContext(ctx).
		Table("chat_messages AS m").
		Select("m.id, m.chat_id, m.user_id, m.content, m.created_at, m.updated_at, u.name AS name, u.image AS image").
		Joins("LEFT JOIN users u ON u.id = m.user_id").
		Where("m.chat_id = ?", chatID).
		Order("m.created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to list messages from db")
		return nil, err
	}

	messages := make([]domain.HistoryMessage, len(rows))
	for i, row := range rows {
		name := UnknownSenderName
		if row.Name.Valid && row.Name.String != "" {
			name = row.Name.String
		}
		// rows are newest first
		messages[len(rows)-1-i] = domain.HistoryMessage{
			Message: domain.Message{
				ID:        row.ID,
				ChatID:    row.ChatID,
				UserID:    row.UserID,
				Content:   row.Content,
				CreatedAt: row.CreatedAt,
				UpdatedAt: row.UpdatedAt,
			},
			Name: name,
			Src:  row.Image.String,
		}
	}
	return messages, nil
}

// CreateChat creates a chat with the given members.
func (r *GormChatRepository) CreateChat(ctx context.Context, name string, members ...string) (*domain.Chat, error) {
	l := log.Ctx(ctx)

	chat := &domain.ChatModel{
		ID:   uuid.New().String(),
		Name: name,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		for _, userID := range members {
			if err := addMember(tx, chat.ID, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to create chat in db")
		return nil, err
	}

	l.Debug().Str(log.FieldChatID, chat.ID).Int("members", len(members)).Msg("chat created in db")
	return &domain.Chat{ID: chat.ID, Name: chat.Name, Members: members}, nil
}

// AddMember adds userID to a chat. Adding an existing member is a no-op.
func (r *GormChatRepository) AddMember(ctx context.Context, chatID, userID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ChatModel{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return addMember(r.db.WithContext(ctx), chatID, userID)
}

func addMember(db *gorm.DB, chatID, userID string) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.ChatMemberModel{ChatID: chatID, UserID: userID}).Error
}
