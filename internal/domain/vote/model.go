package vote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyVoted means the session already holds an active vote for
	// this exact option.
	ErrAlreadyVoted = errors.New("session already voted for this option")

	// ErrConflict is returned by the record store when a concurrent
	// insert won the (session_id, poll_id) uniqueness race.
	ErrConflict = errors.New("concurrent vote for the same session and poll")

	// ErrUnknownOption means the referenced poll or option does not exist.
	ErrUnknownOption = errors.New("poll option does not exist")

	ErrInvalidInput = errors.New("invalid vote input")
)

// Record is one session's current choice on one poll. At most one record
// exists per (session, poll) pair; a changed vote replaces the record
// rather than mutating it.
type Record struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	PollID    uuid.UUID `json:"poll_id"`
	OptionID  uuid.UUID `json:"option_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository is the narrow record-store surface the state machine needs.
// The backing store must enforce uniqueness on (session_id, poll_id) and
// report violations as ErrConflict.
type Repository interface {
	FindActive(ctx context.Context, sessionID, pollID uuid.UUID) (*Record, error)
	Create(ctx context.Context, r *Record) error

	// Replace atomically deletes the record identified by oldID and
	// creates r. Either both happen or neither does, so a changed vote
	// never leaves the pair without an active record.
	Replace(ctx context.Context, oldID uuid.UUID, r *Record) error
}
