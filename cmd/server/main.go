// Account Agent - conversational account management with step-up OTP verification
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/helpdesk-labs/account-agent/internal/agent"
	"github.com/helpdesk-labs/account-agent/internal/api"
	"github.com/helpdesk-labs/account-agent/internal/chat"
	"github.com/helpdesk-labs/account-agent/internal/config"
	"github.com/helpdesk-labs/account-agent/internal/middleware"
	"github.com/helpdesk-labs/account-agent/internal/notify"
	"github.com/helpdesk-labs/account-agent/internal/session"
	"github.com/helpdesk-labs/account-agent/internal/stepup"
	"github.com/helpdesk-labs/account-agent/internal/store"
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
	db, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	if err := db.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Passcode delivery: SMTP when a relay is configured, log-only otherwise.
	var notifier notify.Notifier
	if cfg.SMTP.Server != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Server,
			Port:     strconv.Itoa(cfg.SMTP.Port),
			Sender:   cfg.SMTP.Sender,
			Password: cfg.SMTP.Password,
		})
		slog.Info("SMTP passcode delivery enabled", "server", cfg.SMTP.Server)
	} else {
		notifier = notify.LogNotifier{}
		slog.Info("SMTP not configured, passcodes will be logged only")
	}

	registry, err := agent.NewRegistry()
	if err != nil {
		slog.Error("Failed to build tool registry", "error", err)
		os.Exit(1)
	}

	// Tool selection: Gemini when an API key is configured, rules otherwise.
	var selector agent.Selector = agent.NewRuleSelector(registry)
	if cfg.LLM.APIKey != "" {
		llmSelector, err := agent.NewLLMSelector(context.Background(), cfg.LLM.APIKey, cfg.LLM.Model, registry, selector)
		if err != nil {
			slog.Warn("Failed to initialize LLM selector, falling back to rules", "error", err)
		} else {
			selector = llmSelector
			slog.Info("LLM selector enabled", "model", cfg.LLM.Model)
		}
	} else {
		slog.Info("GOOGLE_API_KEY not set, using rule-based selector")
	}

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	if conversationLogger != nil {
		defer func() {
			if closeErr := conversationLogger.Close(); closeErr != nil {
				slog.Warn("Failed to close conversation logger", "error", closeErr)
			}
		}()
	}

	dispatcher := chat.NewDispatcher(
		db,
		selector,
		registry,
		db,
		stepup.NewGate(db, notifier, cfg.OTPExpiry),
		stepup.NewVerifier(cfg.OTPExpiry),
		stepup.NewReconciler(db),
		conversationLogger,
	)

	chatHandler := chat.NewHandler(dispatcher)
	wsHandler := chat.NewWebSocketHandler(dispatcher, cfg.FrontendURL, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(db, 5*time.Second)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))

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

	// Idle conversations (and any staged step-up they hold) are swept out.
	session.StartTTLWorker(ctx, db, cfg.ConversationTTL)

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
