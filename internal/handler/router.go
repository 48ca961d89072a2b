package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/taskhub/internal/observability/metrics"
	"github.com/yourorg/taskhub/internal/security/guard"
	"github.com/yourorg/taskhub/internal/security/middleware"
	"github.com/yourorg/taskhub/internal/security/ratelimit"
	"github.com/yourorg/taskhub/internal/session"
)

// RouterDeps are the wired handlers and cross-cutting pieces the router
// mounts.
type RouterDeps struct {
	Auth    *AuthHandler
	Users   *UsersHandler
	Tasks   *TasksHandler
	Sweep   *SweepHandler
	Stream  *SweepStreamHandler
	Pages   *PagesHandler
	Health  *HealthHandler
	Guard   *guard.Guard
	Gateway *session.Gateway
	Audit   func(http.Handler) http.Handler
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

// NewRouter builds the HTTP surface. Page routes sit behind the redirecting
// guard; API routes return JSON errors and carry the session middleware
// instead.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.HTTPMetricsMiddleware)

	// Operational endpoints, unauthenticated
	r.Get("/healthz", deps.Health.Health)
	r.Get("/readyz", deps.Health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Pages behind the guard
	r.Group(func(r chi.Router) {
		r.Use(deps.Guard.Middleware)
		r.Get("/", deps.Pages.Home)
		r.Get("/login", deps.Pages.Login)
		r.Get("/dashboard", deps.Pages.Dashboard)
		r.Get("/users", deps.Pages.Users)
		r.Get("/users/invite", deps.Pages.Invite)
		r.Get("/tasks", deps.Pages.Tasks)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ValidateJSONContentType(deps.Logger))

		// Sign-in endpoints: no session yet, rate limited by client address
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(deps.Limiter, deps.Logger))

			r.Group(func(r chi.Router) {
				r.Use(middleware.StrictRateLimitMiddleware(deps.Limiter, 10, time.Minute, deps.Logger))
				r.Post("/login", deps.Auth.Login)
				r.Post("/otp/send", deps.Auth.SendOTP)
				r.Post("/otp/verify", deps.Auth.VerifyOTP)
			})

			r.Post("/logout", deps.Auth.Logout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.SessionMiddleware(deps.Gateway, deps.Logger))
				r.Get("/me", deps.Auth.Me)
				r.Post("/password", deps.Auth.UpdatePassword)
			})
		})

		// Authenticated API, rate limited per user
		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionMiddleware(deps.Gateway, deps.Logger))
			r.Use(middleware.RateLimitMiddleware(deps.Limiter, deps.Logger))
			r.Use(deps.Audit)

			r.Get("/business", deps.Users.CurrentBusiness)

			r.Get("/users", deps.Users.List)
			r.Post("/users/invite", deps.Users.Invite)
			r.Patch("/users/{id}/role", deps.Users.ChangeRole)

			r.Route("/tasks", func(r chi.Router) {
				r.Post("/check-overdue", deps.Sweep.Run)
				r.Get("/check-overdue/status", deps.Sweep.Status)

				r.Get("/", deps.Tasks.List)
				r.Post("/", deps.Tasks.Create)
				r.Get("/{id}", deps.Tasks.Get)
				r.Put("/{id}", deps.Tasks.Update)
				r.Delete("/{id}", deps.Tasks.Delete)
				r.Post("/{id}/instances", deps.Tasks.CreateInstance)
				r.Get("/{id}/instances", deps.Tasks.ListInstances)
			})

			r.Post("/instances/{id}/complete", deps.Tasks.Complete)
		})
	})

	// Sweep status stream
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(deps.Gateway, deps.Logger))
		r.Get("/ws/sweep", deps.Stream.ServeHTTP)
	})

	return otelhttp.NewHandler(r, "taskhub")
}
