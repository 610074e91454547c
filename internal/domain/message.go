package domain

import "time"

type Sender struct {
	ID       string
	Username string
}

// Message is a persisted chat message. Messages of a plan are ordered by
// (CreatedAt, Seq) and never change after Append.
type Message struct {
	ID        string
	PlanID    string
	Sender    Sender
	Body      string
	CreatedAt time.Time
	Seq       int64
}

// Before reports whether m sorts before o in the plan log.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Seq < o.Seq
}

// QueryOpts narrows a log query. Zero value returns the whole log.
type QueryOpts struct {
	// Since keeps messages with CreatedAt >= Since.
	Since time.Time
	// After keeps messages strictly after the given position.
	After *Position
	// Limit caps the result; 0 means unlimited.
	Limit int
}

// Position identifies a place in a plan log.
type Position struct {
	CreatedAt time.Time
	Seq       int64
}

// Keep reports whether m passes the Since and After filters.
func (o QueryOpts) Keep(m Message) bool {
	if !o.Since.IsZero() && m.CreatedAt.Before(o.Since) {
		return false
	}
	if o.After != nil {
		return (Message{CreatedAt: o.After.CreatedAt, Seq: o.After.Seq}).Before(m)
	}
	return true
}
