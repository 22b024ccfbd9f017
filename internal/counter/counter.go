// Package counter defines the authoritative per-option tally store.
//
// The store is the single mutation point for vote counts: callers adjust
// a tally only through Apply, never by reading and writing it back. The
// backing implementation must make the increment atomic at the single-key
// level so concurrent applies to the same (poll, option) pair serialize
// without lost updates.
package counter

import (
	"context"

	"github.com/google/uuid"
)

// Delta is a signed adjustment to one option's tally.
type Delta struct {
	PollID   uuid.UUID
	OptionID uuid.UUID
	Amount   int64
}

type Store interface {
	// Apply adjusts the tally for the delta's (poll, option) key and
	// returns the absolute count after the adjustment. The returned
	// value reflects exactly the deltas applied up to and including
	// this call.
	Apply(ctx context.Context, d Delta) (int64, error)

	// Totals returns the current tally for every option of the poll
	// that has received at least one delta.
	Totals(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int64, error)
}
