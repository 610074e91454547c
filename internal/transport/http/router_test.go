package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/memory"
	"github.com/cwrk-planet/plan-chat/internal/security"
	"github.com/cwrk-planet/plan-chat/internal/service"
	"github.com/cwrk-planet/plan-chat/internal/transport/ws"
	"github.com/cwrk-planet/plan-chat/pkg/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var (
	secret = []byte("router-test-secret-router-test-s")
	t0     = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
)

type fixture struct {
	srv   *httptest.Server
	store *memory.MessageStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := memory.NewDirectory()
	dir.AddUser("carol", "carol")
	dir.AddUser("alice", "alice")
	dir.AddUser("eve", "eve")
	dir.AddPlan("plan", "carol")
	dir.AddParticipant("plan", "alice", t0, false)

	store := memory.NewMessageStore()
	for i, at := range []time.Time{t0.Add(-time.Minute), t0.Add(time.Second), t0.Add(2 * time.Second)} {
		m := domain.Message{ID: []string{"m0", "m1", "m2"}[i], PlanID: "plan", Sender: domain.Sender{ID: "carol", Username: "carol"}, Body: "b", CreatedAt: at}
		require.NoError(t, store.Append(context.Background(), &m))
	}

	v, err := security.NewJWTVerifier(security.VerifierConfig{Secret: secret})
	require.NoError(t, err)
	auth := service.NewAuthService(v, dir)
	membership := service.NewMembershipService(dir)
	history := service.NewHistoryService(store, membership)
	hub := ws.NewHub(ws.HubDeps{Membership: membership, History: history, Chat: service.NewChatService(store, 0)})
	wsServer := ws.NewServer(hub, auth, ws.Config{}, nil, nil)

	srv := httptest.NewServer(NewRouter(Deps{
		Handler: NewHandler(history, membership, hub),
		Auth:    auth,
		WS:      wsServer.HandleWS,
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &fixture{srv: srv, store: store}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := security.NewHS256Signer(secret, "", "", time.Minute).SignAccessToken(userID, "", time.Now())
	require.NoError(t, err)
	return tok
}

func (f *fixture) get(t *testing.T, path, userID string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func itemIDs(h HistoryResponse) []string {
	out := make([]string, len(h.Items))
	for i, it := range h.Items {
		out[i] = it.ID
	}
	return out
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.get(t, "/healthz", "", nil))
}

func TestRouter_HistoryAuthorization(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusUnauthorized, f.get(t, "/plans/plan/messages", "", nil))
	require.Equal(t, http.StatusUnauthorized, f.get(t, "/plans/plan/messages", "ghost", nil))
	require.Equal(t, http.StatusForbidden, f.get(t, "/plans/plan/messages", "eve", nil))
	require.Equal(t, http.StatusForbidden, f.get(t, "/plans/missing/messages", "carol", nil))

	var h HistoryResponse
	require.Equal(t, http.StatusOK, f.get(t, "/plans/plan/messages", "alice", &h))
	require.Equal(t, []string{"m1", "m2"}, itemIDs(h))

	require.Equal(t, http.StatusOK, f.get(t, "/plans/plan/messages", "carol", &h))
	require.Equal(t, []string{"m0", "m1", "m2"}, itemIDs(h))
}

func TestRouter_HistoryCursor(t *testing.T) {
	f := newFixture(t)

	var page HistoryResponse
	require.Equal(t, http.StatusOK, f.get(t, "/plans/plan/messages?limit=1", "alice", &page))
	require.Equal(t, []string{"m1"}, itemIDs(page))
	require.NotEmpty(t, page.NextCursor)

	var next HistoryResponse
	require.Equal(t, http.StatusOK, f.get(t, "/plans/plan/messages?after="+url.QueryEscape(page.NextCursor), "alice", &next))
	require.Equal(t, []string{"m2"}, itemIDs(next))

	var empty HistoryResponse
	require.Equal(t, http.StatusOK, f.get(t, "/plans/plan/messages?after="+url.QueryEscape(next.NextCursor), "alice", &empty))
	require.Empty(t, empty.Items)
	require.Equal(t, next.NextCursor, empty.NextCursor)

	require.Equal(t, http.StatusBadRequest, f.get(t, "/plans/plan/messages?after=%25%25", "alice", nil))
}

func TestRouter_HistoryRejectsBadLimit(t *testing.T) {
	f := newFixture(t)

	for _, limit := range []string{"abc", "-1", "1.5"} {
		require.Equal(t, http.StatusBadRequest, f.get(t, "/plans/plan/messages?limit="+limit, "alice", nil), limit)
	}

	var h HistoryResponse
	require.Equal(t, http.StatusOK, f.get(t, "/plans/plan/messages?limit=0", "alice", &h))
	require.Equal(t, []string{"m1", "m2"}, itemIDs(h))
}

func TestRouter_PresenceAndWebsocket(t *testing.T) {
	f := newFixture(t)

	var p PresenceResponse
	require.Equal(t, http.StatusOK, f.get(t, "/plans/plan/presence", "alice", &p))
	require.Empty(t, p.Items)
	require.Equal(t, http.StatusForbidden, f.get(t, "/plans/plan/presence", "eve", nil))

	// the websocket route goes through the same middleware chain
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?access_token=" + token(t, "carol")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	frame, err := protocol.Encode(protocol.TypeJoinRoom, protocol.JoinRoom{PlanID: "plan"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.DecodeEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeHistory, env.Type)

	require.Equal(t, http.StatusOK, f.get(t, "/plans/plan/presence", "alice", &p))
	require.Equal(t, []PresenceItem{{ID: "carol", Username: "carol"}}, p.Items)
}

func TestToHTTP(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrPlanNotFound, http.StatusForbidden},
		{domain.ErrPersistence, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: limit", domain.ErrInvalidArgument), http.StatusBadRequest},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, c := range cases {
		status, _ := ToHTTP(c.err)
		require.Equal(t, c.status, status, c.err.Error())
	}
}
