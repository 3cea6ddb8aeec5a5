// Assist - Customer Chat Widget Backend
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/storehive/assist/internal/api"
	"github.com/storehive/assist/internal/assistant"
	"github.com/storehive/assist/internal/config"
	"github.com/storehive/assist/internal/middleware"
	"github.com/storehive/assist/internal/relay"
	"github.com/storehive/assist/internal/transport"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Realtime transport: Redis when a credential is configured, otherwise the
	// in-process hub for single-binary development runs.
	var conn transport.Connection
	if cfg.RedisCredential != "" {
		ts := &transport.StaticTokenSource{Tok: transport.Token{
			Token:    cfg.RedisCredential,
			ClientID: "server",
		}}
		conn, err = transport.ConnectRedis(ctx, transport.RedisConfig{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}, ts)
		if err != nil {
			slog.Error("Failed to connect realtime transport", "error", err)
			os.Exit(1)
		}
		slog.Info("Realtime transport connected", "addr", cfg.RedisAddr)
	} else {
		conn = transport.NewMemoryHub().Connect()
		slog.Info("Realtime transport running in-process (REDIS_CREDENTIAL not set)")
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Error("Failed to close realtime transport", "error", closeErr)
		}
	}()

	router := relay.NewRouter(conn)
	transcripts := api.NewTranscriptStore()

	// AI responder (optional).
	var genHandler *assistant.Handler
	if cfg.Upstream.APIKey != "" {
		transcriptLog, err := assistant.NewTranscriptLog(cfg.TranscriptLog, logger)
		if err != nil {
			slog.Error("Failed to initialize transcript log", "error", err)
			os.Exit(1)
		}

		upstream := assistant.NewUpstream(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Model)
		genHandler = assistant.NewHandler(upstream, transcripts, transcriptLog)
		defer genHandler.Close()
		slog.Info("AI responder enabled", "model", cfg.Upstream.Model)
	} else {
		slog.Info("AI responder disabled (GEMINI_KEY not set)")
	}

	baseHandler := api.NewHandler(transcripts, router, cfg.RedisCredential)
	consoleHandler := api.NewConsoleHandler(transcripts, router, conn, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	// The deployed frontend is the only credentialed origin; without one
	// configured the endpoints stay open for local development.
	corsOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		corsOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(corsOrigins))

	baseHandler.RegisterRoutes(r)
	if genHandler != nil {
		genHandler.RegisterRoutes(r)
	}

	r.Get("/ws/console", consoleHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-lived websocket console
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

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
