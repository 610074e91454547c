package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/plan-chat/internal/domain"

	"github.com/google/uuid"
)

const DefaultMaxMessageLength = 4000

type ChatService struct {
	store  MessageStore
	maxLen int
	now    func() time.Time
}

func NewChatService(store MessageStore, maxLen int) *ChatService {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &ChatService{store: store, maxLen: maxLen, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *ChatService) WithClock(now func() time.Time) *ChatService {
	s.now = now
	return s
}

// Normalize trims the body and enforces the length limit in runes.
func (s *ChatService) Normalize(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > s.maxLen {
		return "", fmt.Errorf("%w: limit is %d characters", domain.ErrMessageTooLong, s.maxLen)
	}
	return body, nil
}

// Post validates and persists a message. CreatedAt is never earlier than
// notBefore, which keeps a room log monotonic when the wall clock steps back.
func (s *ChatService) Post(ctx context.Context, planID string, sender domain.Identity, body string, notBefore time.Time) (domain.Message, error) {
	body, err := s.Normalize(body)
	if err != nil {
		return domain.Message{}, err
	}

	at := s.now().UTC().Truncate(time.Microsecond)
	if at.Before(notBefore) {
		at = notBefore
	}
	m := domain.Message{
		ID:        uuid.NewString(),
		PlanID:    planID,
		Sender:    domain.Sender{ID: sender.UserID, Username: sender.Username},
		Body:      body,
		CreatedAt: at,
	}
	if err := s.store.Append(ctx, &m); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return m, nil
}
