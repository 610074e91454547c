package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/observability"
	"github.com/cwrk-planet/plan-chat/internal/security"
	"github.com/cwrk-planet/plan-chat/pkg/httputil"
	"github.com/cwrk-planet/plan-chat/pkg/logger"
	"github.com/cwrk-planet/plan-chat/pkg/protocol"

	"github.com/gorilla/websocket"
)

var errBadFrame = errors.New("malformed frame")

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

type Server struct {
	hub      *Hub
	auth     Authenticator
	cfg      Config
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
}

// NewServer builds the websocket endpoint. An empty allowedOrigins list
// accepts any origin.
func NewServer(hub *Hub, auth Authenticator, cfg Config, allowedOrigins []string, metrics *observability.Metrics) *Server {
	return &Server{
		hub:     hub,
		auth:    auth,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// HandleWS serves GET /ws. The token is checked before the upgrade so an
// unauthenticated client never gets a socket.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.Authenticate(r.Context(), security.TokenFromRequest(r))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			httputil.Error(r.Context(), w, http.StatusUnauthorized, protocol.CodeUnauthorized, "invalid or missing access token")
			return
		}
		httputil.Error(r.Context(), w, http.StatusInternalServerError, protocol.CodeInternal, "internal error")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.FromContext(r.Context()).Warn("ws.upgrade", logger.Err(err))
		return
	}

	log := logger.FromContext(r.Context()).With(logger.UserID(id.UserID))
	ctx := logger.WithContext(context.WithoutCancel(r.Context()), log)

	c := newClient(conn, id, s.cfg)
	s.hub.Register(c)
	s.metrics.ConnectionOpened(ctx)
	log.Info("ws.connected")

	go c.writePump()
	s.readPump(ctx, c)

	s.hub.Unregister(ctx, c)
	c.finish()
	s.metrics.ConnectionClosed(ctx)
	log.Info("ws.disconnected")
}

func (s *Server) readPump(ctx context.Context, c *Client) {
	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.FromContext(ctx).Debug("ws.read", logger.Err(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		if stop := s.handleFrame(ctx, c, data); stop {
			return
		}
	}
}

// handleFrame dispatches one inbound frame. It reports whether the
// connection must be closed.
func (s *Server) handleFrame(ctx context.Context, c *Client, data []byte) (stop bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.FromContext(ctx).Error("ws.panic", slog.Any("panic", rec))
			s.reject(ctx, c, fmt.Errorf("panic: %v", rec))
		}
	}()

	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.reject(ctx, c, fmt.Errorf("%w: %v", errBadFrame, err))
		return false
	}

	switch env.Type {
	case protocol.TypePing:
		c.Enqueue(mustEncode(protocol.TypePong, nil))

	case protocol.TypeJoinRoom:
		var p protocol.JoinRoom
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.reject(ctx, c, fmt.Errorf("%w: %v", errBadFrame, err))
			return false
		}
		if err := s.hub.Join(ctx, c, p.PlanID); err != nil {
			s.reject(ctx, c, err)
			if errors.Is(err, domain.ErrForbidden) {
				c.closeAfterFlush(websocket.ClosePolicyViolation, "forbidden")
				return true
			}
		}

	case protocol.TypeLeaveRoom:
		var p protocol.LeaveRoom
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.reject(ctx, c, fmt.Errorf("%w: %v", errBadFrame, err))
			return false
		}
		if s.hub.planOf(c) == p.PlanID {
			s.hub.Leave(ctx, c)
		}

	case protocol.TypeSendMessage:
		var p protocol.SendMessage
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.reject(ctx, c, fmt.Errorf("%w: %v", errBadFrame, err))
			return false
		}
		if _, err := s.hub.Send(ctx, c, p.PlanID, p.Content); err != nil {
			s.reject(ctx, c, err)
		}

	default:
		s.reject(ctx, c, fmt.Errorf("%w: unknown type %q", errBadFrame, env.Type))
	}
	return false
}

// reject sends an error event to c only.
func (s *Server) reject(ctx context.Context, c *Client, err error) {
	ev := errorEvent(err)
	s.metrics.Rejected(ctx, ev.Code)
	log := logger.FromContext(ctx)
	if ev.Code == protocol.CodeInternal || ev.Code == protocol.CodePersistenceFailed {
		log.Error("ws.error", slog.String("code", ev.Code), logger.Err(err))
	} else {
		log.Debug("ws.error", slog.String("code", ev.Code), logger.Err(err))
	}
	c.Enqueue(mustEncode(protocol.TypeError, ev))
}
