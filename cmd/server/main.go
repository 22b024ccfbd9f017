package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "pollstream/docs"
	"pollstream/internal/broadcast"
	"pollstream/internal/config"
	"pollstream/internal/counter"
	"pollstream/internal/domain/poll"
	"pollstream/internal/domain/vote"
	api "pollstream/internal/http"
	"pollstream/internal/metrics"
	"pollstream/internal/platform/database"
	"pollstream/internal/platform/session"
	"pollstream/internal/repository/postgres"
	"pollstream/internal/worker"
)

// @title           Pollstream API
// @version         1.0
// @description     Real-time poll voting with live result streaming
// @BasePath        /
func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	metrics.Register()

	db, err := database.NewPostgres(cfg.DB_DSN)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	pollRepo := postgres.NewPollRepo(db)
	voteRepo := postgres.NewVoteRepo(db)
	tallies := postgres.NewTallyRepo(db)

	hub := broadcast.NewHub(logger)
	deltas := make(chan []counter.Delta, cfg.TallyQueueSize)

	pollSvc := poll.NewService(pollRepo)
	voteSvc := vote.NewService(voteRepo, deltas)
	sessions := session.NewManager(cfg.SessionSecret, cfg.SessionTTL)

	tallyWorker := worker.NewTallyWorker(deltas, tallies, hub, cfg.TallyRetryBase, cfg.TallyRetryMax, logger)

	router := api.NewRouter(pollSvc, voteSvc, tallies, hub, sessions, db, cfg.WSWriteTimeout)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tallyWorker.Run(ctx)

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}

	// Stop the worker only after in-flight requests have drained so
	// their deltas still get applied.
	cancel()

	logger.Info("server stopped")
}
