package memory

import (
	"context"
	"sync"
	"time"

	"edugame-service/internal/domain"
)

// MessageStore is an in-memory chat log.
type MessageStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextID   int64
	messages []domain.ChatMessage
}

func NewMessageStore() *MessageStore {
	return NewMessageStoreWithClock(time.Now)
}

// NewMessageStoreWithClock is test-only for deterministic timestamps.
func NewMessageStoreWithClock(now func() time.Time) *MessageStore {
	return &MessageStore{now: now}
}

func (s *MessageStore) Append(_ context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = s.nextID
	msg.CreatedAt = s.now().UTC()
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *MessageStore) History(_ context.Context, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.messages) > limit {
		start = len(s.messages) - limit
	}
	out := make([]domain.ChatMessage, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out, nil
}
