package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/threadbox/threadbox/internal/api/middleware"
	"github.com/threadbox/threadbox/internal/auth"
	"github.com/threadbox/threadbox/internal/handlers"
	"github.com/threadbox/threadbox/internal/inbox"
	"github.com/threadbox/threadbox/internal/store"
)

// NewRouter creates and configures the HTTP router.
// redisStore may be nil; rate limiting and token revocation degrade to no-ops.
func NewRouter(logger zerolog.Logger, svc *inbox.Service, db store.DataStore, redisStore *store.RedisStore, tokens *auth.TokenManager) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis counters
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(svc, db, redisStore, tokens)
	authmw := middleware.NewAuthMiddleware(tokens, db, redisStore)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/api/login", h.Login)

	// Authenticated routes (require a bearer token)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth)

		r.Get("/api/user", h.Me)
		r.Post("/api/logout", h.Logout)
		r.Post("/api/refresh", h.Refresh)

		r.Get("/api/threads", h.ListThreads)
		r.Post("/api/threads", h.CreateThread)
		r.Get("/api/threads/{id}", h.GetThread)
		r.Post("/api/threads/{id}/messages", h.PostMessage)
	})

	return r
}
