package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tycoon/internal/api"
	"tycoon/internal/auth"
	"tycoon/internal/config"
	"tycoon/internal/db"
	"tycoon/internal/game"
	"tycoon/internal/store/memory"
	"tycoon/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var store game.Store
	if cfg.InMemory {
		logger.Warn("running with in-memory store, state is lost on exit")
		store = memory.New()
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := postgres.New(pool, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("ensure schema failed", "err", err)
			os.Exit(1)
		}
		store = pg
	}

	g, err := game.Open(ctx, store, logger, game.Options{
		TurnDuration: cfg.TurnEvery,
		NPCVoteMin:   cfg.NPCVoteMin,
		NPCVoteMax:   cfg.NPCVoteMax,
		Seed:         cfg.Seed,
	})
	if err != nil {
		logger.Error("open game state failed", "err", err)
		os.Exit(1)
	}
	if cfg.StartupSeedWorld {
		if err := g.SeedDefaults(ctx); err != nil {
			logger.Error("seed defaults failed", "err", err)
			os.Exit(1)
		}
	}

	scheduler := game.NewTurnScheduler(g, logger)
	go scheduler.Run(ctx)

	authClient := auth.NewSessionClient(cfg.SessionServiceURL, cfg.SessionServiceKey)
	server := api.New(cfg, logger, authClient, g)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("tycoon api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
