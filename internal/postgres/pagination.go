package postgres

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the opaque position handed to history clients. It points at the
// last message they already hold.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	Seq       int64     `json:"seq"`
}

func CursorOf(m domain.Message) Cursor {
	return Cursor{CreatedAt: m.CreatedAt, Seq: m.Seq}
}

func (c Cursor) Position() *domain.Position {
	return &domain.Position{CreatedAt: c.CreatedAt, Seq: c.Seq}
}

func EncodeCursor(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor returns nil for the empty string.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidCursor, err)
	}
	if c.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing created_at", ErrInvalidCursor)
	}
	return &c, nil
}

// NextCursor encodes the position of the last message, or "" for an empty page.
func NextCursor(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	s, err := EncodeCursor(CursorOf(msgs[len(msgs)-1]))
	if err != nil {
		return ""
	}
	return s
}
