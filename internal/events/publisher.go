// Package events mirrors delivered messages and presence changes to NATS
// for downstream consumers such as push notifications.
package events

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/observability"

	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "plan"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Connect dials NATS with unlimited reconnects.
func Connect(url, name string, log *slog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats.disconnected", slog.Any("err", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats.reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
}

// Publisher is best effort: failures are logged and counted, never returned.
type Publisher struct {
	conn    Conn
	prefix  string
	metrics *observability.Metrics
	log     *slog.Logger
}

func NewPublisher(conn Conn, prefix string, metrics *observability.Metrics, log *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{conn: conn, prefix: prefix, metrics: metrics, log: log}
}

var subjectToken = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

func (p *Publisher) subject(planID, kind string) string {
	return p.prefix + "." + subjectToken.Replace(planID) + "." + kind
}

// Messages publishes an encoded message-delivered frame to plan.<id>.messages.
func (p *Publisher) Messages(ctx context.Context, planID string, frame []byte) {
	p.publish(ctx, "messages", planID, frame)
}

// Presence publishes an encoded user-joined/user-left frame to plan.<id>.presence.
func (p *Publisher) Presence(ctx context.Context, planID string, frame []byte) {
	p.publish(ctx, "presence", planID, frame)
}

func (p *Publisher) publish(ctx context.Context, kind, planID string, frame []byte) {
	if p == nil || p.conn == nil {
		return
	}
	subj := p.subject(planID, kind)
	if err := p.conn.Publish(subj, frame); err != nil {
		p.log.Warn("events.publish", slog.String("subject", subj), slog.Any("err", err))
		p.metrics.Published(ctx, kind, false)
		return
	}
	p.metrics.Published(ctx, kind, true)
}
