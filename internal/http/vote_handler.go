package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"pollstream/internal/domain/vote"
	"pollstream/internal/metrics"
	"pollstream/internal/platform/apperr"
)

const sessionCookieName = "sessionId"

type voteRequest struct {
	PollOptionID string `json:"pollOptionId"`
}

type voteResponse struct {
	Message string `json:"message"`
}

// @Summary     Cast or change a vote
// @Tags        votes
// @Accept      json
// @Produce     json
// @Param       pollId   path      string       true  "Poll ID"
// @Param       request  body      voteRequest  true  "Vote payload"
// @Success     201      {object}  voteResponse
// @Failure     400      {object}  map[string]string  "malformed input or duplicate vote"
// @Failure     429      {object}  map[string]string  "rate limited"
// @Failure     500      {object}  map[string]string  "server error"
// @Router      /polls/{pollId}/votes [post]
func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	pollID, err := parseUUIDParam(r, "pollId")
	if err != nil {
		errorResponse(w, err)
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("validation_error", "invalid body", err))
		return
	}
	optionID, err := uuid.Parse(req.PollOptionID)
	if err != nil {
		errorResponse(w, apperr.BadRequest("validation_error", "invalid pollOptionId", err))
		return
	}

	sessionID, freshToken, err := h.sessionFromRequest(r)
	if err != nil {
		errorResponse(w, err)
		return
	}

	status, err := h.voteSvc.CastVote(r.Context(), pollID, optionID, sessionID)
	if err != nil {
		if errors.Is(err, vote.ErrAlreadyVoted) {
			// Body preserved verbatim for existing clients.
			metrics.IncVote("duplicate")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "You can only vote once"})
			return
		}
		errorResponse(w, err)
		return
	}

	if freshToken != "" {
		h.setSessionCookie(w, freshToken)
	}

	metrics.IncVote(string(status))

	msg := "Vote registered"
	if status == vote.StatusUpdated {
		msg = "Vote updated"
	}
	writeJSON(w, http.StatusCreated, voteResponse{Message: msg})
}

// sessionFromRequest reads the signed session cookie, or allocates a new
// identity when the cookie is absent or fails verification. The second
// return value is the signed token to set, empty when the existing
// cookie is still valid.
func (h *Handler) sessionFromRequest(r *http.Request) (uuid.UUID, string, error) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if id, parseErr := h.sessions.Parse(c.Value); parseErr == nil {
			return id, "", nil
		}
		// A tampered or expired cookie is treated as no identity.
	}

	id, token, err := h.sessions.Issue()
	if err != nil {
		return uuid.Nil, "", apperr.Internal("session_error", "could not issue session", err)
	}
	return id, token, nil
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
