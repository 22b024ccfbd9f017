package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"pollstream/internal/domain/poll"
)

type PollRepo struct {
	db *sql.DB
}

func NewPollRepo(db *sql.DB) *PollRepo {
	return &PollRepo{db: db}
}

func (r *PollRepo) Create(ctx context.Context, p *poll.Poll, options []poll.Option) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	queryPoll := `
        INSERT INTO polls (id, title)
        VALUES ($1, $2)
        RETURNING created_at
    `
	if err := tx.QueryRowContext(ctx, queryPoll, p.ID, p.Title).Scan(&p.CreatedAt); err != nil {
		return err
	}

	queryOpt := `
        INSERT INTO poll_options (id, poll_id, title)
        VALUES ($1, $2, $3)
    `
	for _, o := range options {
		if _, err := tx.ExecContext(ctx, queryOpt, o.ID, o.PollID, o.Title); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PollRepo) GetByID(ctx context.Context, id uuid.UUID) (*poll.Poll, []poll.Option, error) {
	p := &poll.Poll{}
	err := r.db.QueryRowContext(ctx, `
        SELECT id, title, created_at
        FROM polls WHERE id = $1
    `, id).Scan(&p.ID, &p.Title, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, poll.ErrPollNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT id, poll_id, title
        FROM poll_options WHERE poll_id = $1
        ORDER BY id
    `, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var opts []poll.Option
	for rows.Next() {
		var o poll.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Title); err != nil {
			return nil, nil, err
		}
		opts = append(opts, o)
	}

	return p, opts, rows.Err()
}
