package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pollstream/internal/broadcast"
	"pollstream/internal/counter"
	"pollstream/internal/domain/poll"
	"pollstream/internal/domain/vote"
	"pollstream/internal/platform/apperr"
	"pollstream/internal/platform/session"
)

type Handler struct {
	pollSvc  *poll.Service
	voteSvc  *vote.Service
	tallies  counter.Store
	hub      *broadcast.Hub
	sessions *session.Manager
	db       *sql.DB

	wsWriteTimeout time.Duration
}

func NewRouter(
	pollSvc *poll.Service,
	voteSvc *vote.Service,
	tallies counter.Store,
	hub *broadcast.Hub,
	sessions *session.Manager,
	db *sql.DB,
	wsWriteTimeout time.Duration,
) http.Handler {
	h := &Handler{
		pollSvc:        pollSvc,
		voteSvc:        voteSvc,
		tallies:        tallies,
		hub:            hub,
		sessions:       sessions,
		db:             db,
		wsWriteTimeout: wsWriteTimeout,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger)
	r.Use(CORSMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", h.handleReady)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Post("/polls", h.handleCreatePoll)
	r.Get("/polls/{pollId}", h.handleGetPoll)
	r.With(RateLimitVotes(rate.Every(time.Minute/30), 5)).Post("/polls/{pollId}/votes", h.handleVote)
	r.Get("/polls/{pollId}/results", h.handlePollResults)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("validation_error", "invalid "+name, err)
	}
	return id, nil
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "db_unavailable",
			"message": "database not ready",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
