package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"econ-empire/internal/config"
	"econ-empire/internal/db"
	"econ-empire/internal/game"
	"econ-empire/internal/server"
	"econ-empire/internal/store"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	repo, err := openRepository(cfg)
	if err != nil {
		log.Fatal(err)
	}

	hub := server.NewHub()
	sessions := game.NewSessions(repo, game.Options{
		Broadcaster:         hub,
		Rand:                game.NewRand(cfg.RNGSeed),
		TickInterval:        cfg.TickInterval(),
		AutoCloseAttempts:   cfg.AutoCloseMaxAttempts,
		DefaultTotalRounds:  cfg.DefaultTotalRounds,
		DefaultRoundSeconds: cfg.DefaultRoundSeconds,
	})
	srv := server.New(sessions, hub, cfg)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		log.Printf("econ-empire server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	sessions.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown failed: %v", err)
	}
}

// openRepository uses Postgres when DATABASE_URL is set and the in-memory
// store otherwise.
func openRepository(cfg config.Config) (game.Repository, error) {
	reference := db.DefaultReferenceData()
	if cfg.ReferenceDataPath != "" {
		data, err := db.ReadReferenceCSV(cfg.ReferenceDataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read reference data: %w", err)
		}
		reference = data
	}

	if cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL is not set; using in-memory store countries=%d products=%d", len(reference.Countries), len(reference.Products))
		return store.NewWithReference(reference.Countries, reference.Products), nil
	}

	conn, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.Migrate(conn); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	loaded, err := db.LoadReferenceData(conn, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	log.Printf("reference data ready rows=%d", loaded)
	return db.NewRepository(conn), nil
}
