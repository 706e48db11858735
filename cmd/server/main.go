package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/huddle/internal/api"
	"github.com/eldtechnologies/huddle/internal/config"
	"github.com/eldtechnologies/huddle/internal/handlers"
	"github.com/eldtechnologies/huddle/internal/hub"
	"github.com/eldtechnologies/huddle/internal/protocol"
	"github.com/eldtechnologies/huddle/internal/registry"
	"github.com/eldtechnologies/huddle/internal/relay"
	"github.com/eldtechnologies/huddle/internal/room"
	"github.com/eldtechnologies/huddle/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the room directory
	var directory store.RoomDirectory
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresDirectory(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		directory = pg
		logger.Info().Msg("room directory on PostgreSQL")
	} else {
		lite, err := store.NewSQLiteDirectory(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		directory = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("room directory on SQLite")
	}
	directory = store.WithMetrics(directory)
	defer directory.Close()

	// Initialize the Redis history mirror
	var mirror *store.HistoryMirror
	if cfg.RedisURL != "" {
		var err error
		mirror, err = store.NewHistoryMirror(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer mirror.Close()
		logger.Info().Msg("history mirror on Redis")
	}

	// Wire the relay core
	rooms := room.NewStore(room.Options{
		MasterSecret: cfg.RoomKeySecret,
		HistoryLimit: cfg.HistoryLimit,
		GracePeriod:  cfg.RoomGracePeriod,
		Mirror:       mirror,
		Logger:       logger,
	})
	sessions := registry.New(rooms)
	connections := hub.New()
	messageRelay := relay.New(sessions, rooms, directory, cfg.MaxMessageBytes, logger)

	dispatcher := protocol.New(protocol.Options{
		Hub:         connections,
		Sessions:    sessions,
		Rooms:       rooms,
		Relay:       messageRelay,
		Directory:   directory,
		TypingTTL:   cfg.TypingTTL,
		ReplayLimit: cfg.ReplayLimit,
		Logger:      logger,
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	dispatcher.Typing().Start(sweepCtx)

	// Create router
	h := handlers.NewHandler(handlers.Options{
		Directory:  directory,
		Mirror:     mirror,
		Hub:        connections,
		Rooms:      rooms,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	router := api.NewRouter(api.Options{
		Logger:  logger,
		Handler: h,
		Mirror:  mirror,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting huddle relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
