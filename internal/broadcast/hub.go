// Package broadcast fans vote-count events out to the live subscribers of
// a poll. A Hub is an explicit instance owned by the server, not a
// package-level singleton, so tests can run several independent hubs.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pollstream/internal/metrics"
)

// Event is the unit delivered to subscribers. The JSON field names are
// part of the public wire format.
type Event struct {
	OptionID uuid.UUID `json:"pollOptionId"`
	Votes    int64     `json:"votes"`
}

// Subscriber receives the events for one poll. Deliver reporting an error
// marks the connection dead: the hub drops the subscription and invokes
// Close. Deliver must be safe for concurrent use with itself only within
// one subscription (the hub never delivers the same event twice).
type Subscriber interface {
	Deliver(ev Event) error
	Close()
}

// Subscription is the handle returned by Subscribe. It is opaque to
// callers; pass it back to Unsubscribe.
type Subscription struct {
	pollID uuid.UUID
	sub    Subscriber
}

const defaultFanoutLimit = 64

type Hub struct {
	mu    sync.RWMutex
	polls map[uuid.UUID]map[*Subscription]struct{}

	fanoutLimit int
	log         *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		polls:       make(map[uuid.UUID]map[*Subscription]struct{}),
		fanoutLimit: defaultFanoutLimit,
		log:         log,
	}
}

// Subscribe registers sub for every event published to pollID. The
// registry is keyed by poll so publishing is proportional to the poll's
// own audience, not to every subscriber in the process.
func (h *Hub) Subscribe(pollID uuid.UUID, sub Subscriber) *Subscription {
	s := &Subscription{pollID: pollID, sub: sub}

	h.mu.Lock()
	if h.polls[pollID] == nil {
		h.polls[pollID] = make(map[*Subscription]struct{})
	}
	h.polls[pollID][s] = struct{}{}
	h.mu.Unlock()

	metrics.SubscriberAdded()
	return s
}

// Unsubscribe removes the registration. It is idempotent: unsubscribing
// an already-removed handle is a no-op.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}

	h.mu.Lock()
	subs, ok := h.polls[s.pollID]
	if ok {
		if _, present := subs[s]; present {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.polls, s.pollID)
			}
			h.mu.Unlock()
			metrics.SubscriberRemoved()
			return
		}
	}
	h.mu.Unlock()
}

// Publish delivers ev to every current subscriber of pollID. Deliveries
// run concurrently with a bounded degree; a failure on one connection
// never blocks or aborts delivery to the others. A subscriber whose
// Deliver fails is unsubscribed and closed, never retried.
func (h *Hub) Publish(pollID uuid.UUID, ev Event) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.polls[pollID]))
	for s := range h.polls[pollID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(h.fanoutLimit)
	for _, s := range targets {
		s := s
		g.Go(func() error {
			if err := s.sub.Deliver(ev); err != nil {
				h.log.Warn("dropping dead subscriber",
					"poll_id", s.pollID,
					"error", err,
				)
				h.Unsubscribe(s)
				s.sub.Close()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Subscribers reports the current audience size of one poll.
func (h *Hub) Subscribers(pollID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.polls[pollID])
}
