// Package chatclient is a Go client for the plan chat websocket. Timeline
// merges backlog and live events into one ordered, duplicate-free list and
// Session keeps it fed across reconnects.
package chatclient

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/plan-chat/pkg/protocol"
)

var ErrMissingTimestamp = errors.New("message has no timestamp")

// Timeline is safe for concurrent use.
type Timeline struct {
	mu      sync.RWMutex
	entries []protocol.MessageDelivered
	keys    map[string]struct{}
	now     func() time.Time
}

func NewTimeline() *Timeline {
	return &Timeline{keys: make(map[string]struct{}), now: time.Now}
}

// Key identifies a message in the timeline. Messages without an id get a
// content hash so the same event replayed twice maps to the same key.
func Key(m protocol.MessageDelivered) string {
	if m.ID != "" {
		return m.ID
	}
	sum := sha256.Sum256([]byte(m.Sender.ID + "|" + m.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + m.Content))
	return "h:" + hex.EncodeToString(sum[:])
}

// Add inserts m unless its key is already present. Entries with equal
// timestamps keep arrival order and existing entries never move.
func (t *Timeline) Add(m protocol.MessageDelivered) (bool, error) {
	// keyed as received so a replayed notice maps to the same entry
	key := Key(m)
	if m.CreatedAt.IsZero() {
		// system notices carry no sender
		if m.Sender.ID != "" {
			return false, ErrMissingTimestamp
		}
		m.CreatedAt = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.keys[key]; ok {
		return false, nil
	}
	t.keys[key] = struct{}{}

	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].CreatedAt.After(m.CreatedAt)
	})
	t.entries = slices.Insert(t.entries, i, m)
	return true, nil
}

// Merge adds every message and reports how many were new. Invalid
// messages are skipped.
func (t *Timeline) Merge(msgs []protocol.MessageDelivered) int {
	added := 0
	for _, m := range msgs {
		if ok, err := t.Add(m); err == nil && ok {
			added++
		}
	}
	return added
}

func (t *Timeline) Messages() []protocol.MessageDelivered {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.entries)
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
