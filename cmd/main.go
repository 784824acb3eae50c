// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/doorlist/checkin-engine/internal/cache"
	"github.com/doorlist/checkin-engine/internal/config"
	"github.com/doorlist/checkin-engine/internal/database"
	"github.com/doorlist/checkin-engine/internal/handler"
	"github.com/doorlist/checkin-engine/internal/logging"
	"github.com/doorlist/checkin-engine/internal/repository"
	"github.com/doorlist/checkin-engine/internal/service"
)

func main() {
	ctx := context.Background()

	// ── 1. Configuration and logging ──────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// ── 2. Connect to PostgreSQL and migrate ──────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool, log); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	checkInRepo := repository.NewCheckInRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	syncRepo := repository.NewSyncRepository(pool)

	snapshots := cache.New(cfg.Cache.TTL)
	defer snapshots.Close()

	checkInSvc := service.NewCheckInService(eventRepo, checkInRepo, auditRepo, syncRepo, snapshots, log)
	syncSvc := service.NewSyncService(checkInSvc, syncRepo, log)
	h := handler.New(checkInSvc, syncSvc)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.AccessLog(log))  // structured access log
	r.Use(handler.CORS)            // permissive CORS for staff clients

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/check-in", h.CheckIn)
		r.Delete("/check-in/{attendeeID}", h.UndoCheckIn)

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.Get("/attendees", h.Attendees)
			r.Get("/audit", h.AuditLog)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/batch", h.SyncBatch)
			r.Get("/pending", h.PendingSyncCount)
			r.Post("/conflicts/{conflictID}/resolve", h.ResolveConflict)
		})
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
