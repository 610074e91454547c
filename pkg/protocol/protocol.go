// Package protocol is the websocket event vocabulary shared by the gateway
// and its Go clients. Every frame is a JSON envelope {"type", "payload"}.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// client -> server
const (
	TypeJoinRoom    = "join-room"
	TypeLeaveRoom   = "leave-room"
	TypeSendMessage = "send-message"
	TypePing        = "ping"
)

// server -> client
const (
	TypeHistory          = "history"
	TypeMessageDelivered = "message-delivered"
	TypeUserJoined       = "user-joined"
	TypeUserLeft         = "user-left"
	TypeError            = "error"
	TypePong             = "pong"
)

// Error codes carried by error events.
const (
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotInRoom         = "NOT_IN_ROOM"
	CodeBadRequest        = "BAD_REQUEST"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeInternal          = "INTERNAL"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoom struct {
	PlanID string `json:"planId" validate:"required,max=128"`
}

type LeaveRoom struct {
	PlanID string `json:"planId" validate:"required,max=128"`
}

type SendMessage struct {
	PlanID  string `json:"planId" validate:"required,max=128"`
	Content string `json:"content" validate:"required"`
}

type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type MessageDelivered struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"planId"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type History struct {
	PlanID   string             `json:"planId"`
	Messages []MessageDelivered `json:"messages"`
}

// Presence is the payload of user-joined and user-left.
type Presence struct {
	PlanID   string `json:"planId"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode builds a frame. payload may be nil.
func Encode(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// DecodePayload unmarshals the payload into dst and validates struct tags.
func DecodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}
