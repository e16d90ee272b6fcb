// Package api is the HTTP layer: routing, authentication middleware, JSON
// serialization and error-to-status mapping over the service layer.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig holds the router's dependencies.
type RouterConfig struct {
	Verifier       IdentityVerifier
	Accounts       AccountService
	Rewards        RewardService
	Admin          AdminService
	AdminAuth      AdminAuthenticator
	Health         HealthChecker
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))

	player := NewPlayerHandler(cfg.Accounts, cfg.Rewards)
	admin := NewAdminHandler(cfg.Admin, cfg.AdminAuth)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health.HealthCheck(r.Context()); err != nil {
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(PlayerAuth(cfg.Verifier, cfg.Accounts))

			r.Get("/me", player.Me)
			r.Get("/me/transactions", player.Transactions)
			r.Get("/me/levels", player.Levels)

			r.Route("/rewards", func(r chi.Router) {
				r.Post("/daily", player.ClaimDaily)
				r.Post("/level", player.ClaimLevel)
				r.Post("/ad", player.ClaimAd)
				r.Post("/invite", player.Invite)
			})

			r.Post("/consume", player.Consume)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", admin.Login)

			r.Group(func(r chi.Router) {
				r.Use(AdminOnly(cfg.AdminAuth))

				r.Get("/stats", admin.Stats)
				r.Get("/users", admin.Users)
				r.Get("/users/{uid}", admin.User)
				r.Post("/users/{uid}/coins", admin.AdjustCoins)
				r.Delete("/users/{uid}", admin.Purge)
				r.Get("/online", admin.Online)
				r.Get("/charts", admin.Charts)
				r.Get("/top", admin.Top)
				r.Get("/earners", admin.Earners)
				r.Post("/month/close", admin.CloseMonth)
				r.Get("/payouts", admin.Payouts)
			})
		})
	})

	return r
}
