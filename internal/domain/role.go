package domain

import "time"

// Role is what the plan aggregate reports about a user in a plan.
type Role struct {
	IsCreator     bool
	IsAdmin       bool
	IsParticipant bool
	// JoinedAt is set for participants only.
	JoinedAt *time.Time
}

// noCutoff hides every message.
var noCutoff = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// IsMember reports whether the user may enter the plan's room. A
// participant without a join time is refused.
func (r Role) IsMember() bool {
	return r.IsCreator || (r.IsParticipant && r.JoinedAt != nil)
}

// Cutoff returns the earliest creation time the user may read.
// The zero time means the whole log; non-members read nothing.
func (r Role) Cutoff() time.Time {
	switch {
	case r.IsCreator:
		return time.Time{}
	case r.JoinedAt == nil:
		return noCutoff
	default:
		return *r.JoinedAt
	}
}
