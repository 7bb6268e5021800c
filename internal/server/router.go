// Package server assembles the chat HTTP surface.
package server

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairchat/internal/domain"
	"pairchat/internal/handler"
	"pairchat/internal/middleware"
	"pairchat/internal/service"
	"pairchat/internal/websocket"
)

const (
	apiRequestsPerSecond = 20
	apiBurst             = 50
)

// Deps are the collaborators the router dispatches to
type Deps struct {
	DB             *sql.DB
	Broker         handler.BrokerStatus // nil when domain events are disabled
	Sessions       domain.SessionRepository
	Pairings       *service.PairingService
	Chats          *service.ChatService
	Live           websocket.EventHandler
	Hub            *websocket.Hub
	AllowedOrigins []string
	// Validator is applied to every request when set
	Validator func(http.Handler) http.Handler
}

// NewRouter builds the routes. Background work started for the router stops
// when ctx is done.
func NewRouter(ctx context.Context, deps Deps) http.Handler {
	pairingHandler := handler.NewPairingHandler(deps.Pairings, deps.Chats)
	wsHandler := handler.NewWebSocketHandler(deps.Hub, deps.Live, deps.AllowedOrigins)
	apiLimiter := middleware.NewRateLimiter(ctx, apiRequestsPerSecond, apiBurst)

	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(deps.AllowedOrigins))
	if deps.Validator != nil {
		r.Use(deps.Validator)
	}

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(deps.DB, deps.Broker))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Not Found"}`, http.StatusNotFound)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Sessions))
		r.Use(apiLimiter.Middleware())
		r.Use(middleware.CSRF())

		r.Get("/pairings", pairingHandler.List)
		r.Post("/pairings", pairingHandler.Create)
		r.Get("/rooms/{roomKey}/messages", pairingHandler.Messages)
	})

	// Token may come from the query string for browser websocket clients
	r.With(middleware.Auth(deps.Sessions)).Get("/ws", wsHandler.HandleConnection)

	return r
}
