package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/plan-chat/internal/domain"

	"golang.org/x/sync/singleflight"
)

type MembershipService struct {
	oracle MembershipOracle
	group  singleflight.Group
}

func NewMembershipService(oracle MembershipOracle) *MembershipService {
	return &MembershipService{oracle: oracle}
}

// Role asks the oracle, collapsing concurrent lookups for the same pair.
func (s *MembershipService) Role(ctx context.Context, planID, userID string) (domain.Role, error) {
	ch := s.group.DoChan(planID+"\x00"+userID, func() (any, error) {
		return s.oracle.Role(context.WithoutCancel(ctx), planID, userID)
	})

	select {
	case <-ctx.Done():
		return domain.Role{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Role{}, res.Err
		}
		return res.Val.(domain.Role), nil
	}
}

// Authorize returns the role of a user allowed into the plan room. A missing
// plan is reported as forbidden so callers cannot probe plan ids.
func (s *MembershipService) Authorize(ctx context.Context, planID, userID string) (domain.Role, error) {
	role, err := s.Role(ctx, planID, userID)
	if errors.Is(err, domain.ErrPlanNotFound) {
		return domain.Role{}, fmt.Errorf("%w: %w", domain.ErrForbidden, err)
	}
	if err != nil {
		return domain.Role{}, fmt.Errorf("membership lookup: %w", err)
	}
	if !role.IsMember() {
		return domain.Role{}, domain.ErrForbidden
	}
	return role, nil
}
