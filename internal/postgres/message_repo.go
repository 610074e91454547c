package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts m and fills m.Seq from the bigserial column.
func (r *MessageRepository) Append(ctx context.Context, m *domain.Message) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO plan_messages (id, plan_id, sender_id, sender_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, m.ID, m.PlanID, m.Sender.ID, m.Sender.Username, m.Body, m.CreatedAt).Scan(&m.Seq)
}

// Query returns the plan log ascending by (created_at, seq).
func (r *MessageRepository) Query(ctx context.Context, planID string, opts domain.QueryOpts) ([]domain.Message, error) {
	const q = `
		SELECT id, plan_id, sender_id, sender_name, body, created_at, seq
		FROM plan_messages
		WHERE plan_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND (
		    $3::timestamptz IS NULL
		    OR created_at > $3
		    OR (created_at = $3 AND seq > $4)
		  )
		ORDER BY created_at ASC, seq ASC
		LIMIT $5
	`

	var since, afterAt, afterSeq, limit any
	if !opts.Since.IsZero() {
		since = opts.Since
	}
	if opts.After != nil {
		afterAt = opts.After.CreatedAt
		afterSeq = opts.After.Seq
	}
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	rows, err := r.db.Query(ctx, q, planID, since, afterAt, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, 32)
	for rows.Next() {
		var (
			m  domain.Message
			at time.Time
		)
		if err := rows.Scan(&m.ID, &m.PlanID, &m.Sender.ID, &m.Sender.Username, &m.Body, &at, &m.Seq); err != nil {
			return nil, err
		}
		m.CreatedAt = at.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
