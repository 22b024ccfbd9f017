package counter

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type key struct {
	pollID   uuid.UUID
	optionID uuid.UUID
}

// Memory is an in-process Store. It backs tests and single-node dev mode;
// production uses the Postgres adapter.
type Memory struct {
	mu      sync.Mutex
	tallies map[key]int64
}

func NewMemory() *Memory {
	return &Memory{tallies: make(map[key]int64)}
}

func (m *Memory) Apply(ctx context.Context, d Delta) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{pollID: d.PollID, optionID: d.OptionID}
	m.tallies[k] += d.Amount
	return m.tallies[k], nil
}

func (m *Memory) Totals(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make(map[uuid.UUID]int64)
	for k, v := range m.tallies {
		if k.pollID == pollID {
			res[k.optionID] = v
		}
	}
	return res, nil
}
