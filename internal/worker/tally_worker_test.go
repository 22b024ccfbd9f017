package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"pollstream/internal/broadcast"
	"pollstream/internal/counter"
)

type flakyStore struct {
	mu       sync.Mutex
	inner    *counter.Memory
	failures int
}

func (s *flakyStore) Apply(ctx context.Context, d counter.Delta) (int64, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return 0, errors.New("counter unavailable")
	}
	s.mu.Unlock()
	return s.inner.Apply(ctx, d)
}

func (s *flakyStore) Totals(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int64, error) {
	return s.inner.Totals(ctx, pollID)
}

type collectingSubscriber struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (c *collectingSubscriber) Deliver(ev broadcast.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collectingSubscriber) Close() {}

func (c *collectingSubscriber) received() []broadcast.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]broadcast.Event, len(c.events))
	copy(out, c.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWorkerAppliesAndPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := counter.NewMemory()
	hub := broadcast.NewHub(nil)
	deltas := make(chan []counter.Delta, 8)

	pollID, optionID := uuid.New(), uuid.New()
	sub := &collectingSubscriber{}
	hub.Subscribe(pollID, sub)

	w := NewTallyWorker(deltas, store, hub, time.Millisecond, 10*time.Millisecond, nil)
	go w.Run(ctx)

	deltas <- []counter.Delta{{PollID: pollID, OptionID: optionID, Amount: 1}}

	waitFor(t, func() bool { return len(sub.received()) == 1 })
	ev := sub.received()[0]
	if ev.OptionID != optionID || ev.Votes != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWorkerAppliesBatchInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := counter.NewMemory()
	hub := broadcast.NewHub(nil)
	deltas := make(chan []counter.Delta, 8)

	pollID := uuid.New()
	optionA, optionB := uuid.New(), uuid.New()
	if _, err := store.Apply(ctx, counter.Delta{PollID: pollID, OptionID: optionA, Amount: 1}); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	sub := &collectingSubscriber{}
	hub.Subscribe(pollID, sub)

	w := NewTallyWorker(deltas, store, hub, time.Millisecond, 10*time.Millisecond, nil)
	go w.Run(ctx)

	// A changed vote travels as one two-delta batch.
	deltas <- []counter.Delta{
		{PollID: pollID, OptionID: optionA, Amount: -1},
		{PollID: pollID, OptionID: optionB, Amount: 1},
	}

	waitFor(t, func() bool { return len(sub.received()) == 2 })
	events := sub.received()
	if events[0].OptionID != optionA || events[0].Votes != 0 {
		t.Fatalf("unexpected decrement event %+v", events[0])
	}
	if events[1].OptionID != optionB || events[1].Votes != 1 {
		t.Fatalf("unexpected increment event %+v", events[1])
	}
}

func TestWorkerRetriesUntilCounterRecovers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &flakyStore{inner: counter.NewMemory(), failures: 3}
	hub := broadcast.NewHub(nil)
	deltas := make(chan []counter.Delta, 8)

	pollID, optionID := uuid.New(), uuid.New()
	sub := &collectingSubscriber{}
	hub.Subscribe(pollID, sub)

	w := NewTallyWorker(deltas, store, hub, time.Millisecond, 5*time.Millisecond, nil)
	go w.Run(ctx)

	deltas <- []counter.Delta{{PollID: pollID, OptionID: optionID, Amount: 1}}

	waitFor(t, func() bool { return len(sub.received()) == 1 })
	totals, err := store.Totals(ctx, pollID)
	if err != nil {
		t.Fatalf("totals error: %v", err)
	}
	if totals[optionID] != 1 {
		t.Fatalf("increment was dropped, totals %+v", totals)
	}
}
