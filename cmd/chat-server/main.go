package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairchat/internal/config"
	"pairchat/internal/handler"
	"pairchat/internal/messaging"
	"pairchat/internal/middleware"
	"pairchat/internal/observability"
	"pairchat/internal/repository/postgres"
	"pairchat/internal/server"
	"pairchat/internal/service"
	"pairchat/internal/websocket"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting chat server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL, cfg.DBPool)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")

	go observability.TrackDBStats(ctx, db, 15*time.Second)

	if cfg.AutoMigrate {
		if err := postgres.Migrate(connCtx, db); err != nil {
			slog.Error("failed to apply schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	publisher := service.NoopPublisher()
	var broker handler.BrokerStatus
	if cfg.EventsEnabled() {
		rmq, err := messaging.NewRabbitMQWithRetry(ctx, cfg.RabbitMQURL, 60*time.Second)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		publisher = rmq
		broker = rmq
		slog.Info("domain events enabled", slog.String("exchange", messaging.EventsExchange))
	} else {
		slog.Info("domain events disabled")
	}

	userRepo := postgres.NewUserRepository(db)
	pairingRepo := postgres.NewPairingRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	sessionRepo, err := postgres.NewSessionRepository(db)
	if err != nil {
		slog.Error("failed to prepare session lookup", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sessionRepo.Close()

	hub := websocket.NewHub()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	pairingService := service.NewPairingService(userRepo, pairingRepo, messageRepo, publisher)
	chatService := service.NewChatService(userRepo, pairingRepo, messageRepo)
	sessionService := service.NewChatSessionService(hub, messageRepo, publisher, cfg.PersistTimeout)

	var validator func(http.Handler) http.Handler
	if cfg.OpenAPIValidation {
		validator, err = middleware.NewOpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPISpecPath))
		if err != nil {
			slog.Error("OpenAPI validation disabled", slog.String("error", err.Error()))
		}
	}

	r := server.NewRouter(ctx, server.Deps{
		DB:             db,
		Broker:         broker,
		Sessions:       sessionRepo,
		Pairings:       pairingService,
		Chats:          chatService,
		Live:           sessionService,
		Hub:            hub,
		AllowedOrigins: middleware.ParseOrigins(cfg.AllowedOrigins),
		Validator:      validator,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// Stopping the hub closes every live connection
	cancel()
	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
		slog.Warn("hub did not stop in time")
	}

	slog.Info("server stopped gracefully")
}
