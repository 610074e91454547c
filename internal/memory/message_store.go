// Package memory holds in-process implementations of the store and the plan
// directory for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cwrk-planet/plan-chat/internal/domain"
)

type MessageStore struct {
	mu       sync.RWMutex
	seq      int64
	plans    map[string][]domain.Message
	failWith error
}

func NewMessageStore() *MessageStore {
	return &MessageStore{plans: make(map[string][]domain.Message)}
}

// FailAppends makes every subsequent Append return err; nil restores normal
// behaviour.
func (s *MessageStore) FailAppends(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

func (s *MessageStore) Append(ctx context.Context, m *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	s.seq++
	m.Seq = s.seq
	log := append(s.plans[m.PlanID], *m)
	// keep (CreatedAt, Seq) order even if a caller appends out of time order
	if n := len(log); n > 1 && log[n-1].Before(log[n-2]) {
		sort.SliceStable(log, func(i, j int) bool { return log[i].Before(log[j]) })
	}
	s.plans[m.PlanID] = log
	return nil
}

func (s *MessageStore) Query(ctx context.Context, planID string, opts domain.QueryOpts) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0, len(s.plans[planID]))
	for _, m := range s.plans[planID] {
		if !opts.Keep(m) {
			continue
		}
		out = append(out, m)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
