// Ignacio - Venture Coaching Backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/actionlab/ignacio/internal/agent"
	"github.com/actionlab/ignacio/internal/api"
	"github.com/actionlab/ignacio/internal/config"
	"github.com/actionlab/ignacio/internal/files"
	"github.com/actionlab/ignacio/internal/identity"
	"github.com/actionlab/ignacio/internal/maintenance"
	"github.com/actionlab/ignacio/internal/middleware"
	"github.com/actionlab/ignacio/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dispatch_policy", cfg.DispatchPolicy, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	storage, err := files.NewStorage(cfg.StorageDir, cfg.JWTSecret)
	if err != nil {
		slog.Error("Failed to initialize file storage", "error", err)
		os.Exit(1)
	}

	// Model provider and dispatch policy.
	provider := agent.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxModelTokens)

	var dispatcher agent.Dispatcher
	switch cfg.DispatchPolicy {
	case config.DispatchModel:
		dispatcher = agent.NewModelDispatcher(provider)
	default:
		dispatcher = agent.NewKeywordDispatcher(provider)
	}
	slog.Info("Dispatcher initialized", "policy", dispatcher.Policy(), "model", cfg.Model)

	var auditLogger agent.AuditLogger = agent.NopAuditLogger{}
	if cfg.AuditLog.Enabled {
		fileLogger, err := agent.NewFileAuditLogger(cfg.AuditLog.Dir, cfg.AuditLog.QueueSize, logger)
		if err != nil {
			slog.Error("Failed to initialize audit logger", "error", err)
			os.Exit(1)
		}
		auditLogger = fileLogger
	}
	defer func() {
		if closeErr := auditLogger.Close(); closeErr != nil {
			slog.Error("Failed to close audit logger", "error", closeErr)
		}
	}()

	service := agent.NewService(repo, dispatcher, auditLogger)
	limiter := agent.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)

	// Initialize handlers.
	verifier := identity.NewVerifier(cfg.JWTSecret)
	chatHandler := agent.NewHandler(service, repo, storage, limiter, cfg.Upload.MaxBytes)
	wsHandler := agent.NewWebSocketHandler(service, limiter, cfg.AllowedOrigins, cfg.IsDevelopment())
	fileHandler := files.NewHandler(repo, storage, cfg.Upload.MaxBytes, cfg.Upload.SignedURLTTL)
	projectHandler := api.NewProjectHandler(repo)
	templateHandler := api.NewTemplateHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Signed downloads authenticate via HMAC query parameters, not tokens.
	fileHandler.SignedRoutes(r)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(verifier, repo))

		chatHandler.RegisterRoutes(r)
		fileHandler.Routes(r)
		projectHandler.Routes(r)
		templateHandler.Routes(r)
		r.Get("/api/me", api.Me)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // Model turns and the chat socket outlive fixed write deadlines.
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := maintenance.NewSweeper(repo, storage,
		cfg.Sweep.Interval, cfg.Sweep.EmptyConversationTTL, cfg.Sweep.DeletedFileTTL)
	sweeper.Start(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
