package ws

import (
	"errors"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/pkg/protocol"

	"github.com/samber/lo"
)

func deliveredPayload(m domain.Message) protocol.MessageDelivered {
	return protocol.MessageDelivered{
		ID:        m.ID,
		PlanID:    m.PlanID,
		Sender:    protocol.Sender{ID: m.Sender.ID, Username: m.Sender.Username},
		Content:   m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func historyPayload(planID string, msgs []domain.Message) protocol.History {
	return protocol.History{
		PlanID:   planID,
		Messages: lo.Map(msgs, func(m domain.Message, _ int) protocol.MessageDelivered { return deliveredPayload(m) }),
	}
}

func presencePayload(planID string, id domain.Identity) protocol.Presence {
	return protocol.Presence{PlanID: planID, ID: id.UserID, Username: id.Username}
}

// mustEncode is used for payload types that always marshal.
func mustEncode(typ string, payload any) []byte {
	frame, err := protocol.Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// errorEvent maps a hub error to the code and text sent to the client.
func errorEvent(err error) protocol.Error {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return protocol.Error{Code: protocol.CodeUnauthorized, Message: "authentication required"}
	case errors.Is(err, domain.ErrForbidden):
		return protocol.Error{Code: protocol.CodeForbidden, Message: "not a member of this plan"}
	case errors.Is(err, domain.ErrNotInRoom):
		return protocol.Error{Code: protocol.CodeNotInRoom, Message: "join the plan room first"}
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrMessageTooLong), errors.Is(err, errBadFrame):
		return protocol.Error{Code: protocol.CodeBadRequest, Message: err.Error()}
	case errors.Is(err, domain.ErrPersistence):
		return protocol.Error{Code: protocol.CodePersistenceFailed, Message: "message was not saved, try again"}
	default:
		return protocol.Error{Code: protocol.CodeInternal, Message: "internal error"}
	}
}
