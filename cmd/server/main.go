// Admission chatbot backend: slot-filling dialogue over HTTP.
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

	"github.com/admitchat/backend/internal/api"
	"github.com/admitchat/backend/internal/config"
	"github.com/admitchat/backend/internal/dialogue"
	"github.com/admitchat/backend/internal/middleware"
	"github.com/admitchat/backend/internal/nlp"
	"github.com/admitchat/backend/internal/slots"
	"github.com/admitchat/backend/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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

	// Collaborator clients.
	extractor, err := nlp.NewExtractorClient(cfg.SlotAPIURL, cfg.Timeout.Collaborator)
	if err != nil {
		slog.Error("Failed to initialize extraction client", "error", err)
		os.Exit(1)
	}
	intents, err := nlp.NewIntentClient(cfg.IntentAPIURL, cfg.Timeout.Collaborator)
	if err != nil {
		slog.Error("Failed to initialize intent client", "error", err)
		os.Exit(1)
	}
	retriever, err := nlp.NewRetrievalClient(cfg.RAGAPIURL, cfg.Timeout.Collaborator)
	if err != nil {
		slog.Error("Failed to initialize retrieval client", "error", err)
		os.Exit(1)
	}
	slog.Info("Collaborator clients initialized",
		"slot_api", cfg.SlotAPIURL,
		"intent_api", cfg.IntentAPIURL,
		"rag_api", cfg.RAGAPIURL,
	)

	// Initialize services.
	schema := slots.Default()
	svc := dialogue.NewService(repo, schema, extractor, intents, retriever)
	slog.Info("Dialogue service initialized", "slots", schema.Len())

	// Initialize handlers.
	chatHandler := api.NewChatHandler(svc)
	healthHandler := api.NewHealthHandler(repo, map[string]api.CollaboratorPinger{
		"extraction": extractor,
		"intent":     intents,
		"retrieval":  retriever,
	}, cfg.Timeout.HealthCheck)
	wsHandler := api.NewChatSocketHandler(svc, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Routes.
	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
