package domain

import (
	"sync"
	"time"
)

// DefaultDisplayName is used when an identity carries no name.
const DefaultDisplayName = "Anonymous"

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID string
	Name   string
	Avatar string
}

// Session is the metadata of one admitted connection.
type Session struct {
	ID           string
	Identity     Identity
	ChatID       string
	OpenedAt     time.Time
	lastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id, chatID string, identity Identity) *Session {
	if identity.Name == "" {
		identity.Name = DefaultDisplayName
	}
	now := time.Now()
	return &Session{
		ID:           id,
		Identity:     identity,
		ChatID:       chatID,
		OpenedAt:     now,
		lastActiveAt: now,
	}
}

func (s *Session) UserID() string {
	return s.Identity.UserID
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}
