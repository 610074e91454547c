package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwrk-planet/plan-chat/pkg/logger"
	"github.com/cwrk-planet/plan-chat/pkg/protocol"

	"github.com/gorilla/websocket"
)

var (
	ErrUnauthorized = errors.New("chatclient: unauthorized")
	ErrForbidden    = errors.New("chatclient: forbidden")
	ErrNotConnected = errors.New("chatclient: not connected")
)

// TokenSource returns a fresh access token. It is called before every dial.
type TokenSource func(ctx context.Context) (string, error)

type Config struct {
	URL    string
	PlanID string
	Tokens TokenSource

	MinBackoff time.Duration
	MaxBackoff time.Duration
	WriteWait  time.Duration
	Dialer     *websocket.Dialer

	OnMessage  func(protocol.MessageDelivered)
	OnPresence func(typ string, p protocol.Presence)
	OnError    func(protocol.Error)
	// OnConnect fires after the backlog of each connection is applied.
	OnConnect func()
}

// Session owns one logical chat subscription. Run keeps a connection open,
// rejoining and merging the backlog again after every drop.
type Session struct {
	cfg      Config
	timeline *Timeline

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.URL == "" || cfg.PlanID == "" {
		return nil, errors.New("chatclient: url and plan id are required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("chatclient: token source is required")
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 5 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Session{cfg: cfg, timeline: NewTimeline()}, nil
}

func (s *Session) Timeline() *Timeline { return s.timeline }

// Run blocks until ctx is done or the server refuses the session for good
// (ErrUnauthorized, ErrForbidden).
func (s *Session) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).With(logger.PlanID(s.cfg.PlanID))
	attempt := 0
	for {
		connected, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
			return err
		}
		if connected {
			attempt = 0
		}

		wait := s.backoff(attempt)
		attempt++
		log.Warn("chatclient.reconnect", logger.Err(err), slog.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Session) backoff(attempt int) time.Duration {
	d := s.cfg.MinBackoff
	for i := 0; i < attempt && d < s.cfg.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, s.cfg.MaxBackoff)
}

// runOnce dials, joins and consumes events until the connection drops.
// connected reports whether the backlog was received.
func (s *Session) runOnce(ctx context.Context) (connected bool, err error) {
	token, err := s.cfg.Tokens(ctx)
	if err != nil {
		return false, fmt.Errorf("token: %w", err)
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrUnauthorized
		}
		return false, fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	stop := make(chan struct{})
	defer func() {
		close(stop)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if err := s.write(protocol.TypeJoinRoom, protocol.JoinRoom{PlanID: s.cfg.PlanID}); err != nil {
		return false, err
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				return connected, ErrForbidden
			}
			return connected, err
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		if err := s.handle(env, &connected); err != nil {
			return connected, err
		}
	}
}

func (s *Session) handle(env protocol.Envelope, connected *bool) error {
	switch env.Type {
	case protocol.TypeHistory:
		var h protocol.History
		if err := json.Unmarshal(env.Payload, &h); err != nil {
			return nil
		}
		s.timeline.Merge(h.Messages)
		*connected = true
		if s.cfg.OnConnect != nil {
			s.cfg.OnConnect()
		}
	case protocol.TypeMessageDelivered:
		var m protocol.MessageDelivered
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil
		}
		if added, _ := s.timeline.Add(m); added && s.cfg.OnMessage != nil {
			s.cfg.OnMessage(m)
		}
	case protocol.TypeUserJoined, protocol.TypeUserLeft:
		var p protocol.Presence
		if err := json.Unmarshal(env.Payload, &p); err == nil && s.cfg.OnPresence != nil {
			s.cfg.OnPresence(env.Type, p)
		}
	case protocol.TypeError:
		var e protocol.Error
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil
		}
		if s.cfg.OnError != nil {
			s.cfg.OnError(e)
		}
		switch e.Code {
		case protocol.CodeForbidden:
			return ErrForbidden
		case protocol.CodeUnauthorized:
			return ErrUnauthorized
		}
	}
	return nil
}

// Send posts content to the plan. The message shows up in the timeline
// once the server broadcasts it back.
func (s *Session) Send(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(protocol.TypeSendMessage, protocol.SendMessage{PlanID: s.cfg.PlanID, Content: content})
}

func (s *Session) write(typ string, payload any) error {
	frame, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}
