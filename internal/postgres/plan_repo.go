package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlanRepository reads the plan aggregate tables owned by the plans service.
// It serves as both the membership oracle and the user directory.
type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) Role(ctx context.Context, planID, userID string) (domain.Role, error) {
	const q = `
		SELECT p.creator_id = $2,
		       COALESCE(pp.is_admin, false),
		       pp.user_id IS NOT NULL,
		       pp.joined_at
		FROM plans AS p
		LEFT JOIN plan_participants AS pp
		       ON pp.plan_id = p.id AND pp.user_id = $2
		WHERE p.id = $1
	`

	var (
		role     domain.Role
		joinedAt *time.Time
	)
	err := r.db.QueryRow(ctx, q, planID, userID).Scan(&role.IsCreator, &role.IsAdmin, &role.IsParticipant, &joinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Role{}, domain.ErrPlanNotFound
	}
	if err != nil {
		return domain.Role{}, err
	}
	if joinedAt != nil {
		t := joinedAt.UTC()
		role.JoinedAt = &t
	}
	return role, nil
}

func (r *PlanRepository) User(ctx context.Context, userID string) (domain.Identity, error) {
	id := domain.Identity{UserID: userID}
	err := r.db.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, userID).Scan(&id.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}
