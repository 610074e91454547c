package service

import (
	"context"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/security"
)

type MessageStore interface {
	// Append persists m and assigns m.Seq.
	Append(ctx context.Context, m *domain.Message) error
	Query(ctx context.Context, planID string, opts domain.QueryOpts) ([]domain.Message, error)
}

// MembershipOracle is the read side of the plan aggregate.
type MembershipOracle interface {
	Role(ctx context.Context, planID, userID string) (domain.Role, error)
}

type UserDirectory interface {
	User(ctx context.Context, userID string) (domain.Identity, error)
}

type TokenVerifier interface {
	ParseAndValidate(token string) (*security.AccessClaims, error)
}
