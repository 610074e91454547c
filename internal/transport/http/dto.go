package http

import (
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"
)

type SenderItem struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type MessageItem struct {
	ID        string     `json:"id"`
	PlanID    string     `json:"planId"`
	Sender    SenderItem `json:"sender"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
}

type HistoryResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type PresenceItem struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type PresenceResponse struct {
	Items []PresenceItem `json:"items"`
}

func toMessageItem(m domain.Message, _ int) MessageItem {
	return MessageItem{
		ID:        m.ID,
		PlanID:    m.PlanID,
		Sender:    SenderItem{ID: m.Sender.ID, Username: m.Sender.Username},
		Content:   m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func toPresenceItem(id domain.Identity, _ int) PresenceItem {
	return PresenceItem{ID: id.UserID, Username: id.Username}
}
