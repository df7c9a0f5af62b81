package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"family-session/internal/config"
	"family-session/internal/handler"
	"family-session/internal/middleware"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Associations *handler.AssociationHandler
}

func New(cfg *config.SandboxConfig, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.Post("/federated/login", h.Auth.FederatedLogin)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/revoke", h.Auth.Revoke)
		})

		api.Route("/associations", func(assoc chi.Router) {
			assoc.Use(authMiddleware.RequireAuth)
			assoc.Get("/", h.Associations.List)
			assoc.Get("/active", h.Associations.Active)
			assoc.Put("/active", h.Associations.Select)
		})
	})

	return r
}
