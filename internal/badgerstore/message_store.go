// Package badgerstore keeps the plan message log in an embedded BadgerDB for
// single-node deployments.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

const (
	seqKey       = "seq:plan_messages"
	seqBandwidth = 128
)

type diskMessage struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	At         int64  `json:"at"`
	Seq        int64  `json:"seq"`
}

type MessageStore struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

// Open opens (or creates) the store under path.
func Open(path string, log *slog.Logger) (*MessageStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s, err := New(db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *badger.DB, log *slog.Logger) (*MessageStore, error) {
	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &MessageStore{db: db, seq: seq, log: log}, nil
}

func (s *MessageStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.log.Warn("badger.seq_release", slog.Any("err", err))
	}
	return s.db.Close()
}

// The key is "msg:{plan}:{unixnano 19 digits}:{seq 20 digits}" so a prefix
// scan walks a plan log in (CreatedAt, Seq) order. The plan id is escaped so
// one plan's prefix never covers another's.
func planPrefix(planID string) string {
	return "msg:" + url.QueryEscape(planID) + ":"
}

func nanos(t time.Time) int64 {
	if n := t.UnixNano(); n > 0 {
		return n
	}
	return 0
}

func messageKey(planID string, at time.Time, seq int64) []byte {
	return fmt.Appendf(nil, "%s%019d:%020d", planPrefix(planID), nanos(at), seq)
}

func (s *MessageStore) Append(ctx context.Context, m *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	seq := int64(n) + 1

	data, err := json.Marshal(diskMessage{
		ID:         m.ID,
		PlanID:     m.PlanID,
		SenderID:   m.Sender.ID,
		SenderName: m.Sender.Username,
		Body:       m.Body,
		At:         m.CreatedAt.UnixNano(),
		Seq:        seq,
	})
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(m.PlanID, m.CreatedAt, seq), data)
	})
	if err != nil {
		return err
	}
	m.Seq = seq
	return nil
}

func (s *MessageStore) Query(ctx context.Context, planID string, opts domain.QueryOpts) ([]domain.Message, error) {
	prefix := []byte(planPrefix(planID))
	seek := prefix
	if !opts.Since.IsZero() {
		seek = fmt.Appendf(nil, "%s%019d", prefix, nanos(opts.Since))
	}
	if opts.After != nil {
		if k := messageKey(planID, opts.After.CreatedAt, opts.After.Seq); string(k) > string(seek) {
			seek = k
		}
	}

	out := make([]domain.Message, 0, 32)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var dm diskMessage
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &dm)
			}); err != nil {
				return err
			}
			m := toDomain(dm)
			if !opts.Keep(m) {
				continue
			}
			out = append(out, m)
			if opts.Limit > 0 && len(out) == opts.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toDomain(dm diskMessage) domain.Message {
	return domain.Message{
		ID:        dm.ID,
		PlanID:    dm.PlanID,
		Sender:    domain.Sender{ID: dm.SenderID, Username: dm.SenderName},
		Body:      dm.Body,
		CreatedAt: time.Unix(0, dm.At).UTC(),
		Seq:       dm.Seq,
	}
}
