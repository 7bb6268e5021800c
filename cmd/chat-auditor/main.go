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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairchat/internal/config"
	"pairchat/internal/messaging"
	"pairchat/internal/observability"
)

const auditQueue = "chat.audit"

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting chat auditor")

	if !cfg.EventsEnabled() {
		slog.Error("RABBITMQ_URL must be set for the auditor")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rmq, err := messaging.NewRabbitMQWithRetry(ctx, cfg.RabbitMQURL, 60*time.Second)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()
	slog.Info("connected to rabbitmq")

	consumer := messaging.NewEventConsumer(rmq, auditQueue, auditEvent)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("failed to start event consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics listening", slog.String("port", cfg.MetricsPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down chat auditor")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", slog.String("error", err.Error()))
	}

	slog.Info("chat auditor stopped")
}

// auditEvent logs one domain event and counts it by type. Unknown types are
// rejected so they are dropped from the queue.
func auditEvent(ctx context.Context, event *messaging.ChatEvent) error {
	logger := observability.FromContext(ctx).With(
		slog.String("event_id", event.ID),
		slog.String("room_key", event.RoomKey.String()),
		slog.Int64("user_id", int64(event.UserID)),
		slog.Time("occurred_at", time.UnixMilli(event.OccurredAt)),
	)

	switch event.Type {
	case messaging.EventPairingEstablished:
		logger.Info("pairing established", slog.Int64("peer_id", int64(event.PeerID)))
	case messaging.EventMessageAppended:
		logger.Info("message appended", slog.Int64("seq", event.Seq))
	default:
		observability.EventsConsumed.WithLabelValues("unknown").Inc()
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	observability.EventsConsumed.WithLabelValues(event.Type).Inc()
	return nil
}
