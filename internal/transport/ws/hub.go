package ws

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/observability"
	"github.com/cwrk-planet/plan-chat/pkg/logger"
	"github.com/cwrk-planet/plan-chat/pkg/protocol"

	"github.com/samber/lo"
)

// Conn is a live client connection as seen by the Hub.
type Conn interface {
	Identity() domain.Identity
	// Enqueue hands a frame to the connection writer without blocking.
	// It reports false when the queue is full or the connection is closed.
	Enqueue(frame []byte) bool
	Close() error
	Closed() bool
}

type Membership interface {
	Authorize(ctx context.Context, planID, userID string) (domain.Role, error)
}

type History interface {
	Backlog(ctx context.Context, planID string, role domain.Role) ([]domain.Message, error)
}

type Chat interface {
	Post(ctx context.Context, planID string, sender domain.Identity, body string, notBefore time.Time) (domain.Message, error)
}

type Publisher interface {
	Messages(ctx context.Context, planID string, frame []byte)
	Presence(ctx context.Context, planID string, frame []byte)
}

type HubDeps struct {
	Membership Membership
	History    History
	Chat       Chat
	// optional
	Publisher Publisher
	Metrics   *observability.Metrics
}

type room struct {
	mu     sync.Mutex
	planID string
	conns  map[Conn]struct{}
	lastAt time.Time
	gone   bool
}

// Hub tracks plan rooms and the connections inside them. h.mu guards only
// the maps; everything that must be ordered inside a room (admission with
// backlog, persist plus broadcast, leave) runs under that room's mutex.
// Lock order is room.mu then h.mu.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
	conns map[Conn]string // conn -> plan id, "" when in no room

	membership Membership
	history    History
	chat       Chat
	publisher  Publisher
	metrics    *observability.Metrics
}

func NewHub(d HubDeps) *Hub {
	return &Hub{
		rooms:      make(map[string]*room),
		conns:      make(map[Conn]string),
		membership: d.Membership,
		history:    d.History,
		chat:       d.Chat,
		publisher:  d.Publisher,
		metrics:    d.Metrics,
	}
}

// Register starts tracking a connection that is not yet in any room.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c] = ""
	h.mu.Unlock()
}

// Unregister removes c from its room and forgets it. Safe to call twice.
func (h *Hub) Unregister(ctx context.Context, c Conn) {
	h.Leave(ctx, c)
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Join admits c into the plan room. The membership check runs before any
// room state is touched. Joining a second plan leaves the first one.
// Calls for one connection must not run concurrently.
func (h *Hub) Join(ctx context.Context, c Conn, planID string) error {
	id := c.Identity()
	role, err := h.membership.Authorize(ctx, planID, id.UserID)
	if err != nil {
		return err
	}

	if cur := h.planOf(c); cur != "" && cur != planID {
		h.Leave(ctx, c)
	}

	r := h.lockRoom(planID)
	backlog, err := h.history.Backlog(ctx, planID, role)
	if err != nil {
		h.discardIfEmpty(r)
		r.mu.Unlock()
		return err
	}

	_, rejoin := r.conns[c]
	r.conns[c] = struct{}{}
	h.mu.Lock()
	h.conns[c] = planID
	h.mu.Unlock()

	h.deliver(ctx, c, mustEncode(protocol.TypeHistory, historyPayload(planID, backlog)))

	var joined []byte
	if !rejoin {
		joined = mustEncode(protocol.TypeUserJoined, presencePayload(planID, id))
		for o := range r.conns {
			if o != c {
				h.deliver(ctx, o, joined)
			}
		}
	}
	r.mu.Unlock()

	if !rejoin {
		h.metrics.Joined(ctx)
		h.publishPresence(ctx, planID, joined)
		logger.FromContext(ctx).Debug("ws.join", logger.PlanID(planID), slog.Int("backlog", len(backlog)))
	}
	return nil
}

// Leave removes c from its room and tells the remaining occupants. It
// reports whether c was in a room.
func (h *Hub) Leave(ctx context.Context, c Conn) bool {
	h.mu.Lock()
	planID := h.conns[c]
	r := h.rooms[planID]
	if planID != "" {
		if _, tracked := h.conns[c]; tracked {
			h.conns[c] = ""
		}
	}
	h.mu.Unlock()
	if planID == "" || r == nil {
		return false
	}

	r.mu.Lock()
	if _, ok := r.conns[c]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, c)
	left := mustEncode(protocol.TypeUserLeft, presencePayload(planID, c.Identity()))
	for o := range r.conns {
		h.deliver(ctx, o, left)
	}
	h.discardIfEmpty(r)
	r.mu.Unlock()

	h.metrics.Left(ctx)
	h.publishPresence(ctx, planID, left)
	logger.FromContext(ctx).Debug("ws.leave", logger.PlanID(planID))
	return true
}

// Send persists body as a message from c and broadcasts it to every
// occupant, c included. Nothing is broadcast when persistence fails.
func (h *Hub) Send(ctx context.Context, c Conn, planID, body string) (domain.Message, error) {
	h.mu.Lock()
	cur := h.conns[c]
	r := h.rooms[planID]
	h.mu.Unlock()
	if cur != planID || r == nil {
		return domain.Message{}, domain.ErrNotInRoom
	}

	r.mu.Lock()
	if _, ok := r.conns[c]; !ok || r.gone {
		r.mu.Unlock()
		return domain.Message{}, domain.ErrNotInRoom
	}
	msg, err := h.chat.Post(ctx, planID, c.Identity(), body, r.lastAt)
	if err != nil {
		r.mu.Unlock()
		return domain.Message{}, err
	}
	r.lastAt = msg.CreatedAt

	frame := mustEncode(protocol.TypeMessageDelivered, deliveredPayload(msg))
	recipients := len(r.conns)
	for o := range r.conns {
		h.deliver(ctx, o, frame)
	}
	r.mu.Unlock()

	h.metrics.Delivered(ctx, recipients)
	if h.publisher != nil {
		h.publisher.Messages(ctx, planID, frame)
	}
	return msg, nil
}

// Occupants lists the distinct identities connected to a plan room.
func (h *Hub) Occupants(planID string) []domain.Identity {
	h.mu.Lock()
	r := h.rooms[planID]
	h.mu.Unlock()
	if r == nil {
		return []domain.Identity{}
	}

	r.mu.Lock()
	ids := lo.UniqBy(lo.MapToSlice(r.conns, func(c Conn, _ struct{}) domain.Identity {
		return c.Identity()
	}), func(id domain.Identity) string { return id.UserID })
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].UserID < ids[j].UserID })
	return ids
}

// RoomCount is the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close closes every tracked connection. Their readers run the usual
// teardown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := lo.Keys(h.conns)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (h *Hub) planOf(c Conn) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[c]
}

// lockRoom returns the plan room locked, creating it when absent. A room
// discarded between lookup and lock is skipped.
func (h *Hub) lockRoom(planID string) *room {
	for {
		h.mu.Lock()
		r, ok := h.rooms[planID]
		if !ok {
			r = &room{planID: planID, conns: make(map[Conn]struct{})}
			h.rooms[planID] = r
		}
		h.mu.Unlock()

		r.mu.Lock()
		if !r.gone {
			return r
		}
		r.mu.Unlock()
	}
}

// discardIfEmpty drops an empty room. r.mu must be held.
func (h *Hub) discardIfEmpty(r *room) {
	if len(r.conns) > 0 {
		return
	}
	h.mu.Lock()
	if h.rooms[r.planID] == r {
		delete(h.rooms, r.planID)
	}
	h.mu.Unlock()
	r.gone = true
}

// deliver enqueues a frame and drops a connection that cannot keep up.
func (h *Hub) deliver(ctx context.Context, c Conn, frame []byte) {
	if c.Enqueue(frame) || c.Closed() {
		return
	}
	h.metrics.SlowConsumer(ctx)
	logger.FromContext(ctx).Warn("ws.slow_consumer", logger.UserID(c.Identity().UserID))
	_ = c.Close()
}

func (h *Hub) publishPresence(ctx context.Context, planID string, frame []byte) {
	if h.publisher != nil && frame != nil {
		h.publisher.Presence(ctx, planID, frame)
	}
}
