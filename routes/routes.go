package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/session-auth/app"
	"github.com/upb/session-auth/internal/observability"
	"github.com/upb/session-auth/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Login, callback, logout and (outside production) simulate
	r.Route(deps.Config.Auth.BasePath, deps.AuthController.Routes)

	// Demo routes exercising the request gates
	r.Get("/", deps.HelloHandler.HandlePublic)
	r.Route("/hello", func(r chi.Router) {
		r.Get("/public", deps.HelloHandler.HandlePublic)

		r.With(deps.SessionAuth.CheckAuthenticated).Get("/private", deps.HelloHandler.HandlePrivate)
		r.With(deps.SessionAuth.Authenticate).Get("/subject", deps.HelloHandler.HandleSubject)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "The requested resource was not found")
	})

	return r
}
