package worker

import (
	"context"
	"log/slog"
	"time"

	"pollstream/internal/broadcast"
	"pollstream/internal/counter"
	"pollstream/internal/metrics"
	"pollstream/internal/retry"
)

// TallyWorker drains the delta queue filled by the vote state machine,
// applies each delta to the counter store, and publishes the resulting
// absolute count to the poll's subscribers.
//
// The voter's HTTP response does not wait for this path: the vote record
// is the source of truth for whether the vote succeeded, and the tally
// converges shortly after. When the counter store is unreachable the
// worker keeps retrying with capped backoff — a delta is only abandoned
// on shutdown.
type TallyWorker struct {
	deltas <-chan []counter.Delta
	store  counter.Store
	hub    *broadcast.Hub

	retryBase time.Duration
	retryMax  time.Duration
	log       *slog.Logger
}

func NewTallyWorker(deltas <-chan []counter.Delta, store counter.Store, hub *broadcast.Hub, retryBase, retryMax time.Duration, log *slog.Logger) *TallyWorker {
	if log == nil {
		log = slog.Default()
	}
	return &TallyWorker{
		deltas:    deltas,
		store:     store,
		hub:       hub,
		retryBase: retryBase,
		retryMax:  retryMax,
		log:       log,
	}
}

func (w *TallyWorker) Run(ctx context.Context) {
	w.log.Info("tally worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("tally worker stopped")
			return
		case batch := <-w.deltas:
			for _, d := range batch {
				w.applyAndPublish(ctx, d)
			}
		}
	}
}

func (w *TallyWorker) applyAndPublish(ctx context.Context, d counter.Delta) {
	var votes int64
	err := retry.DoWithBackoff(ctx, w.retryBase, w.retryMax, func() error {
		n, applyErr := w.store.Apply(ctx, d)
		if applyErr != nil {
			metrics.IncTallyApply("error")
			w.log.Warn("counter apply failed, backing off",
				"poll_id", d.PollID,
				"option_id", d.OptionID,
				"error", applyErr,
			)
			return applyErr
		}
		votes = n
		return nil
	})
	if err != nil {
		// Only possible on shutdown; the delta is lost with the process.
		w.log.Error("abandoning delta",
			"poll_id", d.PollID,
			"option_id", d.OptionID,
			"amount", d.Amount,
			"error", err,
		)
		metrics.IncTallyApply("abandoned")
		return
	}

	metrics.IncTallyApply("ok")
	w.hub.Publish(d.PollID, broadcast.Event{OptionID: d.OptionID, Votes: votes})
}
