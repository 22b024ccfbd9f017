package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"pollstream/internal/counter"
)

// TallyRepo implements counter.Store on Postgres. The upsert adjusts the
// row in a single statement, so concurrent applies to the same
// (poll, option) key serialize on the row and the returned count is
// exact.
type TallyRepo struct {
	db *sql.DB
}

func NewTallyRepo(db *sql.DB) *TallyRepo {
	return &TallyRepo{db: db}
}

func (r *TallyRepo) Apply(ctx context.Context, d counter.Delta) (int64, error) {
	var votes int64
	err := r.db.QueryRowContext(ctx, `
        INSERT INTO poll_tallies (poll_id, option_id, votes)
        VALUES ($1, $2, $3)
        ON CONFLICT (poll_id, option_id) DO UPDATE
        SET votes = poll_tallies.votes + EXCLUDED.votes,
            updated_at = now()
        RETURNING votes
    `, d.PollID, d.OptionID, d.Amount).Scan(&votes)
	if err != nil {
		return 0, err
	}
	return votes, nil
}

func (r *TallyRepo) Totals(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT option_id, votes
        FROM poll_tallies
        WHERE poll_id = $1
    `, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[uuid.UUID]int64)
	for rows.Next() {
		var optionID uuid.UUID
		var votes int64
		if err := rows.Scan(&optionID, &votes); err != nil {
			return nil, err
		}
		res[optionID] = votes
	}
	return res, rows.Err()
}
