package poll

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPollNotFound  = errors.New("poll not found")
	ErrTitleRequired = errors.New("poll title is required")
	ErrTooFewOptions = errors.New("poll must have at least 2 options")
	ErrEmptyOption   = errors.New("poll option title is required")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, title string, optionTitles []string) (*Poll, []Option, error) {
	if title == "" {
		return nil, nil, ErrTitleRequired
	}
	if len(optionTitles) < 2 {
		return nil, nil, ErrTooFewOptions
	}

	p := &Poll{ID: uuid.New(), Title: title}
	opts := make([]Option, 0, len(optionTitles))
	for _, t := range optionTitles {
		if t == "" {
			return nil, nil, ErrEmptyOption
		}
		opts = append(opts, Option{ID: uuid.New(), PollID: p.ID, Title: t})
	}

	if err := s.repo.Create(ctx, p, opts); err != nil {
		return nil, nil, err
	}
	return p, opts, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Poll, []Option, error) {
	return s.repo.GetByID(ctx, id)
}
