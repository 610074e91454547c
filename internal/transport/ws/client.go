package ws

import (
	"sync"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"

	"github.com/gorilla/websocket"
)

type Config struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (c Config) withDefaults() Config {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	return c
}

type outbound struct {
	data      []byte
	closeCode int
	reason    string
}

// Client is one websocket connection. Only writePump writes to the socket.
type Client struct {
	conn *websocket.Conn
	id   domain.Identity
	cfg  Config

	send       chan outbound
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newClient(conn *websocket.Conn, id domain.Identity, cfg Config) *Client {
	return &Client{
		conn:       conn,
		id:         id,
		cfg:        cfg,
		send:       make(chan outbound, cfg.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (c *Client) Identity() domain.Identity { return c.id }

func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- outbound{data: frame}:
		return true
	default:
		return false
	}
}

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// closeAfterFlush queues a close frame behind the frames already queued.
func (c *Client) closeAfterFlush(code int, reason string) {
	select {
	case c.send <- outbound{closeCode: code, reason: reason}:
	default:
		_ = c.Close()
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// finish waits briefly for the writer to flush, then closes the socket.
func (c *Client) finish() {
	select {
	case <-c.writerDone:
	case <-time.After(c.cfg.WriteWait):
	}
	_ = c.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case out := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if out.closeCode != 0 {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(out.closeCode, out.reason))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, out.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
