package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/taskhub/internal/featureflags"
	"github.com/yourorg/taskhub/internal/handler"
	"github.com/yourorg/taskhub/internal/identity"
	"github.com/yourorg/taskhub/internal/infrastructure/logger"
	"github.com/yourorg/taskhub/internal/infrastructure/redis"
	"github.com/yourorg/taskhub/internal/observability/tracing"
	"github.com/yourorg/taskhub/internal/repository"
	"github.com/yourorg/taskhub/internal/security"
	"github.com/yourorg/taskhub/internal/security/audit"
	"github.com/yourorg/taskhub/internal/security/guard"
	"github.com/yourorg/taskhub/internal/security/middleware"
	"github.com/yourorg/taskhub/internal/security/ratelimit"
	"github.com/yourorg/taskhub/internal/service"
	"github.com/yourorg/taskhub/internal/session"
	"github.com/yourorg/taskhub/internal/worker"
	"github.com/yourorg/taskhub/pkg/cache"
	"github.com/yourorg/taskhub/pkg/config"
	"github.com/yourorg/taskhub/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting TaskHub server", slog.String("environment", cfg.Environment))

	// 3. Initialize tracing
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "taskhub", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// 4. Initialize Redis client (session store backend)
	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 5. Initialize PostgreSQL pool and run migrations
	pool, err := database.NewConnectionPool(ctx, database.DefaultConfig(cfg.DatabaseURL), log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	db := pool.GetDB()

	// 6. Initialize the identity provider: hosted when configured, local
	// otherwise
	var provider identity.Provider
	if cfg.IdentityURL != "" {
		provider = identity.NewHTTPProvider(cfg.IdentityURL, cfg.IdentityAPIKey, log)
		log.Info("using hosted identity provider", slog.String("url", cfg.IdentityURL))
	} else {
		provider = identity.NewLocalProvider(identity.NewTokenManager(cfg.JWTSecret, "taskhub"), log)
		log.Info("using local identity provider")
	}

	// 7. Initialize repositories
	userRepo := repository.NewPostgresUserRepository(db, log)
	businessRepo := repository.NewPostgresBusinessRepository(db, log)
	taskRepo := repository.NewPostgresTaskRepository(db, log)
	instanceRepo := repository.NewPostgresTaskInstanceRepository(db, log)

	// 8. Initialize the session gateway
	sessionStore := session.NewRedisStore(redisClient)
	gateway := session.NewGateway(sessionStore, provider, cfg.SessionTTL, cfg.TokenRefreshLeeway, cfg.Production(), log)

	// 9. Initialize security components
	authz := security.NewAuthorizationService(log)
	auditLogger := audit.NewLogger(log)
	rateLimiter := ratelimit.NewLimiter(100, time.Minute)
	profileCache := cache.New()

	// 10. Initialize services
	directoryService := service.NewDirectoryService(userRepo, businessRepo, authz, auditLogger, profileCache, log)
	inviteService := service.NewInviteService(userRepo, provider, authz, auditLogger, log)
	taskService := service.NewTaskService(taskRepo, instanceRepo, userRepo, authz, log)

	// 11. Initialize the page guard
	pathGuard := guard.New(gateway, directoryService, cfg.ProtectedPaths, cfg.LoginPath, cfg.DefaultPath, log)

	// 12. Build the HTTP surface
	router := handler.NewRouter(handler.RouterDeps{
		Auth:    handler.NewAuthHandler(gateway, provider, directoryService, log),
		Users:   handler.NewUsersHandler(directoryService, inviteService, log),
		Tasks:   handler.NewTasksHandler(taskService, log),
		Sweep:   handler.NewSweepHandler(taskService, log),
		Stream:  handler.NewSweepStreamHandler(taskService, log, cfg.CORSAllowedOrigins),
		Pages:   handler.NewPagesHandler(directoryService, log),
		Health:  handler.NewHealthHandler(db, redisClient, log),
		Guard:   pathGuard,
		Gateway: gateway,
		Audit:   middleware.AuditMiddleware(auditLogger),
		Limiter: rateLimiter,
		Logger:  log,
	})

	// 13. Start the overdue sweep worker unless disabled
	if !featureflags.Enabled(featureflags.DisableSweepWorker) {
		overdueWorker := worker.NewOverdueWorker(taskService, log, time.Duration(cfg.SweepIntervalMinutes)*time.Minute)
		go overdueWorker.Start(ctx)
	} else {
		log.Info("sweep worker disabled by flag")
	}

	// 14. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Duration("session_ttl", cfg.SessionTTL),
		slog.Duration("refresh_leeway", cfg.TokenRefreshLeeway),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop the sweep worker
	rateLimiter.Stop()
	log.Info("server stopped")
}
