package domain

import (
	"time"
)

// ChatModel is the GORM model for chats table.
type ChatModel struct {
	ID            string     `gorm:"type:varchar(36);primaryKey"`
	Name          string     `gorm:"type:varchar(200)"`
	LastMessageAt *time.Time `gorm:"index"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ChatModel.
func (ChatModel) TableName() string {
	return "chats"
}

// ChatMemberModel is the GORM model for chat_members table.
type ChatMemberModel struct {
	ChatID    string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(36);primaryKey;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ChatMemberModel) TableName() string {
	return "chat_members"
}

// ChatMessageModel is the GORM model for chat_messages table.
type ChatMessageModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	ChatID    string    `gorm:"type:varchar(36);not null;index:idx_chat_messages_chat_created,priority:1"`
	UserID    string    `gorm:"type:varchar(36);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_chat_messages_chat_created,priority:2"`
	UpdatedAt time.Time
}

func (ChatMessageModel) TableName() string {
	return "chat_messages"
}

// ToDomain converts ChatMessageModel to domain Message.
func (m *ChatMessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// UserModel is the read-only profile table owned by the identity system.
type UserModel struct {
	ID    string `gorm:"type:varchar(36);primaryKey"`
	Name  string `gorm:"type:varchar(100)"`
	Image string `gorm:"type:text"`
}

func (UserModel) TableName() string {
	return "users"
}

// Models lists every model the relay migrates.
func Models() []interface{} {
	return []interface{}{&ChatModel{}, &ChatMemberModel{}, &ChatMessageModel{}, &UserModel{}}
}
