package domain

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("not a member of the plan")
	ErrPlanNotFound    = errors.New("plan not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotInRoom       = errors.New("connection is not in the room")
	ErrEmptyMessage    = errors.New("empty message")
	ErrMessageTooLong  = errors.New("message too long")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrPersistence     = errors.New("message store unavailable")
)
