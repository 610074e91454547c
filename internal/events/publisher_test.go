package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    string
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subj, string(data)})
	return nil
}

func TestPublisher_Subjects(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "", nil, nil)
	ctx := context.Background()

	p.Messages(ctx, "p1", []byte(`{"type":"message-delivered"}`))
	p.Presence(ctx, "team.alpha", []byte(`{"type":"user-joined"}`))

	require.Equal(t, []published{
		{"plan.p1.messages", `{"type":"message-delivered"}`},
		{"plan.team_alpha.presence", `{"type":"user-joined"}`},
	}, conn.msgs)
}

func TestPublisher_BestEffort(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := NewPublisher(conn, "chat", nil, nil)
	p.Messages(context.Background(), "p1", []byte(`{}`))
	require.Empty(t, conn.msgs)

	var nilPub *Publisher
	nilPub.Messages(context.Background(), "p1", []byte(`{}`))
}
