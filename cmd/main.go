package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agonlabs/arena-system/brackets"
	"github.com/agonlabs/arena-system/config"
	"github.com/agonlabs/arena-system/db"
	"github.com/agonlabs/arena-system/events"
	"github.com/agonlabs/arena-system/handlers"
	"github.com/agonlabs/arena-system/matchmaking"
	"github.com/agonlabs/arena-system/repositories"
	api "github.com/agonlabs/arena-system/routes"
	"github.com/agonlabs/arena-system/services"
	"github.com/agonlabs/arena-system/storage"
)

const syncInterval = 30 * time.Second // how often live tournaments are swept

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	var uploader storage.FileUploader
	if cfg.R2Configured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("R2 uploader initialized")
	} else {
		logger.Warn("R2 storage not configured, logo uploads disabled")
	}

	// Process-wide live state: websocket hub, event bus, spectator tracker and
	// matchmaking queue are constructed once and passed by reference.
	hub := brackets.NewHub(logger)
	go hub.Run()

	bus := events.NewBus(logger)
	tracker := events.NewTracker()
	queue := matchmaking.NewQueueStore()

	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	entryRepo := repositories.NewPostgresEntryRepository(dbConn)
	logger.Info("repositories initialized")

	matchmakingService := services.NewMatchmakingService(queue, matchRepo, bus, logger)
	tournamentService := services.NewTournamentService(
		tournamentRepo,
		entryRepo,
		matchRepo,
		hub,
		bus,
		uploader,
		logger,
	)
	logger.Info("services initialized")

	// Poll-driven round sync: completed-match callbacks can call sync directly,
	// this sweep guarantees progress even when they are lost.
	go func() {
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()
		logger.Info("round sync scheduler started", slog.Duration("interval", syncInterval))

		if err := tournamentService.SyncAllLive(context.Background()); err != nil {
			logger.Error("scheduler: initial sweep failed", slog.Any("error", err))
		}
		for range ticker.C {
			if err := tournamentService.SyncAllLive(context.Background()); err != nil {
				logger.Error("scheduler: periodic sweep failed", slog.Any("error", err))
			}
		}
	}()

	queueHandler := handlers.NewQueueHandler(matchmakingService)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	streamHandler := handlers.NewStreamHandler(bus, tracker, matchRepo, logger)
	webSocketHandler := handlers.NewWebSocketHandler(hub, tournamentService, logger)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		[]byte(cfg.JWTSecretKey),
		queueHandler,
		tournamentHandler,
		streamHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: the match event stream is a long-lived response.
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
