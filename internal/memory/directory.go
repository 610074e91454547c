package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"
)

type plan struct {
	creatorID    string
	participants map[string]participant
}

type participant struct {
	joinedAt time.Time
	isAdmin  bool
}

// Directory is an in-memory plan aggregate: plans, their participants and
// the users table. It implements both the membership oracle and the user
// directory.
type Directory struct {
	mu    sync.RWMutex
	plans map[string]*plan
	users map[string]string
}

func NewDirectory() *Directory {
	return &Directory{plans: make(map[string]*plan), users: make(map[string]string)}
}

func (d *Directory) AddUser(id, username string) {
	d.mu.Lock()
	d.users[id] = username
	d.mu.Unlock()
}

func (d *Directory) AddPlan(planID, creatorID string) {
	d.mu.Lock()
	d.plans[planID] = &plan{creatorID: creatorID, participants: make(map[string]participant)}
	d.mu.Unlock()
}

func (d *Directory) AddParticipant(planID, userID string, joinedAt time.Time, isAdmin bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.plans[planID]; ok {
		p.participants[userID] = participant{joinedAt: joinedAt, isAdmin: isAdmin}
	}
}

func (d *Directory) Role(ctx context.Context, planID, userID string) (domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return domain.Role{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.plans[planID]
	if !ok {
		return domain.Role{}, domain.ErrPlanNotFound
	}
	role := domain.Role{IsCreator: p.creatorID == userID}
	if pp, ok := p.participants[userID]; ok {
		at := pp.joinedAt
		role.IsParticipant = true
		role.IsAdmin = pp.isAdmin
		role.JoinedAt = &at
	}
	return role, nil
}

func (d *Directory) User(ctx context.Context, userID string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	name, ok := d.users[userID]
	if !ok {
		return domain.Identity{}, domain.ErrUserNotFound
	}
	return domain.Identity{UserID: userID, Username: name}, nil
}
