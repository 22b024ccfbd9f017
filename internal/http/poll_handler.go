package api

import (
	"encoding/json"
	"net/http"

	"pollstream/internal/platform/apperr"
)

type createPollRequest struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

type pollOptionResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Score int64  `json:"score"`
}

type pollResponse struct {
	ID      string               `json:"id"`
	Title   string               `json:"title"`
	Options []pollOptionResponse `json:"options"`
}

// @Summary     Create a poll
// @Tags        polls
// @Accept      json
// @Produce     json
// @Param       request  body      createPollRequest  true  "Poll payload"
// @Success     201      {object}  map[string]string
// @Failure     400      {object}  map[string]string  "invalid body"
// @Failure     500      {object}  map[string]string  "server error"
// @Router      /polls [post]
func (h *Handler) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("validation_error", "invalid body", err))
		return
	}

	p, _, err := h.pollSvc.Create(r.Context(), req.Title, req.Options)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"pollId": p.ID.String()})
}

// @Summary     Poll with options and current tallies
// @Tags        polls
// @Produce     json
// @Param       pollId  path      string  true  "Poll ID"
// @Success     200     {object}  map[string]pollResponse
// @Failure     400     {object}  map[string]string  "invalid poll id"
// @Failure     404     {object}  map[string]string  "not found"
// @Failure     500     {object}  map[string]string  "server error"
// @Router      /polls/{pollId} [get]
func (h *Handler) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	pollID, err := parseUUIDParam(r, "pollId")
	if err != nil {
		errorResponse(w, err)
		return
	}

	p, opts, err := h.pollSvc.Get(r.Context(), pollID)
	if err != nil {
		errorResponse(w, err)
		return
	}

	totals, err := h.tallies.Totals(r.Context(), pollID)
	if err != nil {
		errorResponse(w, err)
		return
	}

	resp := pollResponse{
		ID:      p.ID.String(),
		Title:   p.Title,
		Options: make([]pollOptionResponse, 0, len(opts)),
	}
	for _, o := range opts {
		resp.Options = append(resp.Options, pollOptionResponse{
			ID:    o.ID.String(),
			Title: o.Title,
			Score: totals[o.ID],
		})
	}

	writeJSON(w, http.StatusOK, map[string]pollResponse{"poll": resp})
}
