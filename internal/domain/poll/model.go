package poll

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Poll struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Option struct {
	ID     uuid.UUID `json:"id"`
	PollID uuid.UUID `json:"poll_id"`
	Title  string    `json:"title"`
}

type Repository interface {
	Create(ctx context.Context, p *Poll, options []Option) error
	GetByID(ctx context.Context, id uuid.UUID) (*Poll, []Option, error)
}
