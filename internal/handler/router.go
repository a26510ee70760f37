package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lingobridge/backend/internal/auth"
	"github.com/lingobridge/backend/internal/config"
	relayHandler "github.com/lingobridge/backend/internal/handler/relay"
	sessionHandler "github.com/lingobridge/backend/internal/handler/session"
	middlewarePkg "github.com/lingobridge/backend/internal/middleware"
	relayService "github.com/lingobridge/backend/internal/service/relay"
	sessionService "github.com/lingobridge/backend/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, sessions *sessionService.Service, relay *relayService.Relay, credentials *auth.CredentialService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	lifecycleHandler := sessionHandler.New(sessions, cfg.Auth)
	wsHandler := relayHandler.NewWebSocketHandler(relay, sessions, credentials)

	r.Route("/api", func(api chi.Router) {
		lifecycleHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
