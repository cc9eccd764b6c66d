package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/FACorreiaa/go-identity-service/internal/api/auth"
	"github.com/FACorreiaa/go-identity-service/internal/api/deletion"
	"github.com/FACorreiaa/go-identity-service/internal/api/user"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

// Config contains dependencies needed for the router setup
type Config struct {
	AuthHandler            *auth.AuthHandler
	UserHandler            *user.HandlerImpl
	DeletionHandler        *deletion.HandlerImpl
	AuthenticateMiddleware func(http.Handler) http.Handler
	RequireRole            func(roles ...types.Role) func(http.Handler) http.Handler
	AllowedOrigins         []string
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) is applied by the caller.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// public
		r.Group(func(r chi.Router) {
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/refresh", cfg.AuthHandler.Refresh)
			r.Post("/auth/logout", cfg.AuthHandler.Logout)
		})

		// authenticated
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Post("/auth/logout-all", cfg.AuthHandler.LogoutAll)
			r.Get("/users/me", cfg.UserHandler.GetMe)

			r.With(cfg.RequireRole(types.RoleSystemAdmin, types.RoleAdmin)).
				Delete("/users/{userID}", cfg.DeletionHandler.DeleteUser)
			r.With(cfg.RequireRole(types.RoleSystemAdmin)).
				Get("/users/{userID}/refresh-tokens", cfg.AuthHandler.ListRefreshTokens)
		})
	})

	return r
}
