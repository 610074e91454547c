package service

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/plan-chat/internal/domain"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

type HistoryService struct {
	store      MessageStore
	membership *MembershipService
}

func NewHistoryService(store MessageStore, membership *MembershipService) *HistoryService {
	return &HistoryService{store: store, membership: membership}
}

// GetHistory returns every message the user may read, oldest first.
func (s *HistoryService) GetHistory(ctx context.Context, planID string, id domain.Identity) ([]domain.Message, error) {
	role, err := s.membership.Authorize(ctx, planID, id.UserID)
	if err != nil {
		return nil, err
	}
	return s.Backlog(ctx, planID, role)
}

// GetHistoryAfter returns up to limit readable messages strictly after the
// given position. A nil position starts at the participant cutoff.
func (s *HistoryService) GetHistoryAfter(ctx context.Context, planID string, id domain.Identity, after *domain.Position, limit int) ([]domain.Message, error) {
	role, err := s.membership.Authorize(ctx, planID, id.UserID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)

	msgs, err := s.store.Query(ctx, planID, domain.QueryOpts{Since: role.Cutoff(), After: after, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return msgs, nil
}

// Backlog is the join-time replay for an already authorized role.
func (s *HistoryService) Backlog(ctx context.Context, planID string, role domain.Role) ([]domain.Message, error) {
	msgs, err := s.store.Query(ctx, planID, domain.QueryOpts{Since: role.Cutoff()})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return msgs, nil
}
