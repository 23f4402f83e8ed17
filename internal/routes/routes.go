package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/steeldesk/internal/auth"
	"github.com/BradenHooton/steeldesk/internal/handlers"
	"github.com/BradenHooton/steeldesk/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds what the route table needs to wire handlers and guards
type Dependencies struct {
	SignInHandler  *handlers.SignInHandler
	AccountHandler *handlers.AccountHandler
	SignInGuard    func(http.Handler) http.Handler
	TokenManager   *auth.TokenManager
	UserRepo       auth.UserRepository
	Health         http.HandlerFunc
	Metrics        http.Handler
	Logger         *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	if deps.Health != nil {
		router.Get("/health", deps.Health)
	}
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Sign-in submissions pass through the address limiter and lock re-query
	router.Group(func(r chi.Router) {
		r.Use(middleware.SameOrigin(deps.Logger))
		r.Use(deps.SignInGuard)

		r.With(middleware.RateLimitByIP(middleware.DefaultAdminRateLimit())).
			Get(handlers.DefaultSignInPath, deps.SignInHandler.SignInPage)
		r.Post(handlers.DefaultSignInPath, deps.SignInHandler.SignIn)
		r.Post("/api/auth/callback/credentials", deps.SignInHandler.SignIn)
	})

	router.With(middleware.SameOrigin(deps.Logger)).Post("/admin/sign-out", deps.SignInHandler.SignOut)

	// Signed-in console
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(deps.TokenManager))
		r.Use(auth.RequireRole(deps.UserRepo, "admin"))

		r.Get(handlers.DefaultHomePath, deps.SignInHandler.Home)

		r.Route("/admin/api/accounts/{id}", func(r chi.Router) {
			r.Use(middleware.RateLimitBySession(middleware.DefaultAdminRateLimit()))
			r.Get("/lock", deps.AccountHandler.GetLockStatus)
			r.With(middleware.SameOrigin(deps.Logger)).Post("/unlock", deps.AccountHandler.Unlock)
		})
	})
}
