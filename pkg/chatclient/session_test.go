package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/memory"
	"github.com/cwrk-planet/plan-chat/internal/security"
	"github.com/cwrk-planet/plan-chat/internal/service"
	"github.com/cwrk-planet/plan-chat/internal/transport/ws"
	"github.com/cwrk-planet/plan-chat/pkg/protocol"

	"github.com/stretchr/testify/require"
)

var secret = []byte("client-test-secret-client-test-s")

type server struct {
	hub   *ws.Hub
	store *memory.MessageStore
	url   string
}

func newServer(t *testing.T) *server {
	t.Helper()
	dir := memory.NewDirectory()
	dir.AddUser("carol", "carol")
	dir.AddUser("alice", "alice")
	dir.AddUser("eve", "eve")
	dir.AddPlan("plan", "carol")
	dir.AddParticipant("plan", "alice", base, false)

	store := memory.NewMessageStore()
	old := domain.Message{ID: "old", PlanID: "plan", Sender: domain.Sender{ID: "carol", Username: "carol"}, Body: "welcome", CreatedAt: base.Add(time.Second)}
	require.NoError(t, store.Append(context.Background(), &old))

	membership := service.NewMembershipService(dir)
	hub := ws.NewHub(ws.HubDeps{
		Membership: membership,
		History:    service.NewHistoryService(store, membership),
		Chat:       service.NewChatService(store, 0),
	})
	v, err := security.NewJWTVerifier(security.VerifierConfig{Secret: secret})
	require.NoError(t, err)
	s := ws.NewServer(hub, service.NewAuthService(v, dir), ws.Config{PongWait: 5 * time.Second}, nil, nil)

	srv := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &server{hub: hub, store: store, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func tokens(userID string, calls *atomic.Int32) TokenSource {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return security.NewHS256Signer(secret, "", "", time.Minute).SignAccessToken(userID, "", time.Now())
	}
}

func start(t *testing.T, s *Session) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		done <- s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	return done
}

func TestSession_BacklogLiveAndReconnect(t *testing.T) {
	srv := newServer(t)
	var calls atomic.Int32
	var connects atomic.Int32

	sess, err := NewSession(Config{
		URL:        srv.url,
		PlanID:     "plan",
		Tokens:     tokens("alice", &calls),
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
		OnConnect:  func() { connects.Add(1) },
	})
	require.NoError(t, err)
	start(t, sess)

	require.Eventually(t, func() bool { return connects.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"welcome"}, contents(sess.Timeline().Messages()))

	require.NoError(t, sess.Send(context.Background(), "hello"))
	require.Eventually(t, func() bool { return sess.Timeline().Len() == 2 }, 3*time.Second, 10*time.Millisecond)

	// drop every server-side connection; the session rejoins with a new token
	srv.hub.Close()
	require.Eventually(t, func() bool { return connects.Load() == 2 }, 3*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, calls.Load(), int32(2))
	require.Equal(t, []string{"welcome", "hello"}, contents(sess.Timeline().Messages()))

	require.NoError(t, sess.Send(context.Background(), "again"))
	require.Eventually(t, func() bool { return sess.Timeline().Len() == 3 }, 3*time.Second, 10*time.Millisecond)
}

func TestSession_PresenceCallbacks(t *testing.T) {
	srv := newServer(t)
	var calls atomic.Int32

	var mu sync.Mutex
	var seen []string
	var ready atomic.Bool
	watcher, err := NewSession(Config{
		URL:       srv.url,
		PlanID:    "plan",
		Tokens:    tokens("carol", &calls),
		OnConnect: func() { ready.Store(true) },
		OnPresence: func(typ string, p protocol.Presence) {
			mu.Lock()
			seen = append(seen, typ+":"+p.Username)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	start(t, watcher)
	require.Eventually(t, ready.Load, 3*time.Second, 10*time.Millisecond)

	other, err := NewSession(Config{URL: srv.url, PlanID: "plan", Tokens: tokens("alice", &calls)})
	require.NoError(t, err)
	start(t, other)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[0] == protocol.TypeUserJoined+":alice"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSession_StopsOnForbidden(t *testing.T) {
	srv := newServer(t)
	var calls atomic.Int32
	var codes []string
	var mu sync.Mutex

	sess, err := NewSession(Config{
		URL:    srv.url,
		PlanID: "plan",
		Tokens: tokens("eve", &calls),
		OnError: func(e protocol.Error) {
			mu.Lock()
			codes = append(codes, e.Code)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	select {
	case err := <-start(t, sess):
		require.ErrorIs(t, err, ErrForbidden)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}
	mu.Lock()
	require.Equal(t, []string{protocol.CodeForbidden}, codes)
	mu.Unlock()
	require.Zero(t, srv.hub.RoomCount())
}

func TestSession_StopsOnUnauthorized(t *testing.T) {
	srv := newServer(t)
	sess, err := NewSession(Config{
		URL:    srv.url,
		PlanID: "plan",
		Tokens: func(context.Context) (string, error) { return "garbage", nil },
	})
	require.NoError(t, err)

	select {
	case err := <-start(t, sess):
		require.ErrorIs(t, err, ErrUnauthorized)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSession_SendWithoutConnection(t *testing.T) {
	sess, err := NewSession(Config{URL: "ws://127.0.0.1:1", PlanID: "plan", Tokens: func(context.Context) (string, error) { return "t", nil }})
	require.NoError(t, err)
	require.ErrorIs(t, sess.Send(context.Background(), "x"), ErrNotConnected)
}

func TestSession_Backoff(t *testing.T) {
	sess, err := NewSession(Config{
		URL: "ws://x", PlanID: "p",
		Tokens:     func(context.Context) (string, error) { return "", nil },
		MinBackoff: 100 * time.Millisecond,
		MaxBackoff: time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, 100*time.Millisecond, sess.backoff(0))
	require.Equal(t, 400*time.Millisecond, sess.backoff(2))
	require.Equal(t, time.Second, sess.backoff(10))
}
