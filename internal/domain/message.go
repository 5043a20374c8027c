package domain

import "time"

// Message is a persisted chat message. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Chat is a conversation with its current member user ids.
type Chat struct {
	ID            string
	Name          string
	LastMessageAt *time.Time
	Members       []string
}

// HasMember reports whether userID is a member of the chat.
func (c *Chat) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// HistoryMessage is a message joined with its sender's profile, as
// returned by the history read path.
type HistoryMessage struct {
	Message
	Name string `json:"name"`
	Src  string `json:"src"`
}

// InboundMessage is a validated client MESSAGE frame payload.
type InboundMessage struct {
	ChatID  string
	Content string
}

// ToPayload builds the outbound MESSAGE payload with sender display data.
func (m *Message) ToPayload(name, src string) MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		ChatID:    m.ChatID,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: m.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Name:      name,
		Src:       src,
	}
}

// ToPayload builds the outbound MESSAGE payload for a history entry.
func (h *HistoryMessage) ToPayload() MessagePayload {
	return h.Message.ToPayload(h.Name, h.Src)
}
