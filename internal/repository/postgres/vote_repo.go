package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"pollstream/internal/domain/vote"
)

// VoteRepo persists the active vote record per (session, poll) pair. The
// votes table carries a unique constraint on (session_id, poll_id); the
// state machine relies on it as its conflict detector.
type VoteRepo struct {
	db *sql.DB
}

func NewVoteRepo(db *sql.DB) *VoteRepo {
	return &VoteRepo{db: db}
}

func (r *VoteRepo) FindActive(ctx context.Context, sessionID, pollID uuid.UUID) (*vote.Record, error) {
	rec := &vote.Record{}
	err := r.db.QueryRowContext(ctx, `
        SELECT id, session_id, poll_id, option_id, created_at
        FROM votes
        WHERE session_id = $1 AND poll_id = $2
    `, sessionID, pollID).Scan(&rec.ID, &rec.SessionID, &rec.PollID, &rec.OptionID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *VoteRepo) Create(ctx context.Context, rec *vote.Record) error {
	query := `
        INSERT INTO votes (id, session_id, poll_id, option_id)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at
    `
	err := r.db.QueryRowContext(ctx, query, rec.ID, rec.SessionID, rec.PollID, rec.OptionID).
		Scan(&rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return vote.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return vote.ErrUnknownOption
		}
		return err
	}
	return nil
}

func (r *VoteRepo) Replace(ctx context.Context, oldID uuid.UUID, rec *vote.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE id = $1`, oldID); err != nil {
		return err
	}

	query := `
        INSERT INTO votes (id, session_id, poll_id, option_id)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at
    `
	err = tx.QueryRowContext(ctx, query, rec.ID, rec.SessionID, rec.PollID, rec.OptionID).
		Scan(&rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return vote.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return vote.ErrUnknownOption
		}
		return err
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
