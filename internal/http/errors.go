package api

import (
	"database/sql"
	"errors"
	"net/http"

	"pollstream/internal/domain/poll"
	"pollstream/internal/domain/vote"
	"pollstream/internal/platform/apperr"
)

func errorResponse(w http.ResponseWriter, err error) {
	appErr := mapError(err)
	writeJSON(w, appErr.StatusCode(), map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

func mapError(err error) *apperr.AppError {
	if err == nil {
		return apperr.Internal("internal_error", "internal server error", nil)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound("not_found", "resource not found", err)
	case errors.Is(err, poll.ErrPollNotFound):
		return apperr.NotFound("poll_not_found", "poll not found", err)
	case errors.Is(err, poll.ErrTitleRequired):
		return apperr.BadRequest("invalid_input", "title is required", err)
	case errors.Is(err, poll.ErrTooFewOptions):
		return apperr.BadRequest("invalid_input", "poll must have at least 2 options", err)
	case errors.Is(err, poll.ErrEmptyOption):
		return apperr.BadRequest("invalid_input", "option titles must not be empty", err)
	case errors.Is(err, vote.ErrInvalidInput):
		return apperr.BadRequest("validation_error", "malformed vote input", err)
	case errors.Is(err, vote.ErrAlreadyVoted):
		return apperr.BadRequest("already_voted", "You can only vote once", err)
	case errors.Is(err, vote.ErrUnknownOption):
		return apperr.BadRequest("invalid_option", "option does not belong to poll", err)
	case errors.Is(err, vote.ErrConflict):
		return apperr.Unavailable("vote_conflict", "please retry your vote", err)
	case errors.Is(err, vote.ErrUnavailable):
		return apperr.Unavailable("store_unavailable", "please retry your vote", err)
	default:
		return apperr.Internal("internal_error", http.StatusText(http.StatusInternalServerError), err)
	}
}
