package vote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pollstream/internal/counter"
	"pollstream/internal/retry"
)

// Status is the outcome of a successful cast.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusUpdated    Status = "updated"
)

const (
	storeAttempts   = 3
	storeRetryDelay = 50 * time.Millisecond
)

// ErrUnavailable wraps a record-store failure that persisted through the
// bounded retries.
var ErrUnavailable = errors.New("vote store unavailable")

// Service is the per-session voting state machine. For each
// (session, poll) pair it decides whether a cast is a first vote, a
// changed vote, or a rejected duplicate, and emits the matching counter
// deltas onto the tally queue.
//
// Serialization of concurrent casts for the same pair is not done with a
// per-key lock; the record store's uniqueness constraint acts as the
// conflict detector and the read-decide-write sequence is retried once
// on conflict.
type Service struct {
	repo   Repository
	deltas chan<- []counter.Delta
}

// NewService wires the state machine to its record store and to the
// buffered delta queue drained by the tally worker. Sends on the queue
// block rather than drop: a committed vote's deltas must always reach
// the counter store.
func NewService(repo Repository, deltas chan<- []counter.Delta) *Service {
	return &Service{repo: repo, deltas: deltas}
}

// CastVote runs one transition of the state machine. The caller supplies
// the session identity; the state machine never invents one. The record
// mutation is the source of truth for whether the vote succeeded —
// counter application and broadcast complete asynchronously.
//
// Transient record-store errors are retried a bounded number of times
// before surfacing ErrUnavailable.
func (s *Service) CastVote(ctx context.Context, pollID, optionID, sessionID uuid.UUID) (Status, error) {
	if pollID == uuid.Nil || optionID == uuid.Nil || sessionID == uuid.Nil {
		return "", ErrInvalidInput
	}

	var status Status
	var castErr error
	retryErr := retry.DoWithRetry(ctx, storeAttempts, storeRetryDelay, func() error {
		st, err := s.castOnce(ctx, pollID, optionID, sessionID)
		if err != nil && !isPermanent(err) {
			return err
		}
		status, castErr = st, err
		return nil
	})
	if retryErr != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, retryErr)
	}
	return status, castErr
}

func (s *Service) castOnce(ctx context.Context, pollID, optionID, sessionID uuid.UUID) (Status, error) {
	for attempt := 0; ; attempt++ {
		existing, err := s.repo.FindActive(ctx, sessionID, pollID)
		if err != nil {
			return "", err
		}

		if existing != nil {
			if existing.OptionID == optionID {
				return "", ErrAlreadyVoted
			}
			return s.changeVote(ctx, existing, optionID)
		}

		rec := &Record{
			ID:        uuid.New(),
			SessionID: sessionID,
			PollID:    pollID,
			OptionID:  optionID,
		}
		err = s.repo.Create(ctx, rec)
		if err == nil {
			s.enqueue([]counter.Delta{
				{PollID: pollID, OptionID: optionID, Amount: 1},
			})
			return StatusRegistered, nil
		}
		if errors.Is(err, ErrConflict) && attempt == 0 {
			// A concurrent cast from the same session created the
			// record first. Re-read and decide against what won.
			continue
		}
		if errors.Is(err, ErrConflict) {
			return "", ErrAlreadyVoted
		}
		return "", err
	}
}

func (s *Service) changeVote(ctx context.Context, old *Record, optionID uuid.UUID) (Status, error) {
	rec := &Record{
		ID:        uuid.New(),
		SessionID: old.SessionID,
		PollID:    old.PollID,
		OptionID:  optionID,
	}
	if err := s.repo.Replace(ctx, old.ID, rec); err != nil {
		return "", err
	}

	// Both deltas of a change travel as one message so the worker
	// applies them back to back.
	s.enqueue([]counter.Delta{
		{PollID: old.PollID, OptionID: old.OptionID, Amount: -1},
		{PollID: old.PollID, OptionID: optionID, Amount: 1},
	})
	return StatusUpdated, nil
}

// isPermanent reports whether err is a decided outcome rather than a
// transient store failure worth retrying.
func isPermanent(err error) bool {
	return errors.Is(err, ErrAlreadyVoted) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnknownOption)
}

func (s *Service) enqueue(ds []counter.Delta) {
	s.deltas <- ds
}
