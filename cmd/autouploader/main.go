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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/api"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/bot"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/browser"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/config"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/events"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/guard"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/runstore"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run history is optional; without a database the service still works.
	var store *runstore.Store
	if dsn := cfg.DatabaseDSN(); dsn != "" {
		store, err = runstore.New(ctx, dsn, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// Progress streaming is optional as well.
	var publisher *events.Publisher
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		publisher = events.NewPublisher(redisClient, cfg.Redis.Stream, logger)
		defer publisher.Close()
	}

	analyzer := vision.NewAnalyzer(cfg.Vision.GeminiAPIKey, logger)
	if !analyzer.Enabled() {
		logger.Warn("GEMINI_API_KEY not set, content generation disabled")
	}

	factory := newBotFactory(cfg, analyzer, publisher, logger)
	runner := api.NewRunner(factory, store, logger)
	handlers := api.NewHandlers(runner, store, cfg.Server.APIKey, cfg.Server.RequireAPIKey, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/", handlers.Routes())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		// Ask the active run, if any, to wind down too.
		if err := runner.Stop(); err == nil {
			logger.Info("stop requested for the active run")
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"auth_mode", cfg.Dreamstime.AuthMode,
		"headless", cfg.Browser.Headless)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newBotFactory wires a full bot for each run: browser options, session
// strategy per the configured auth mode, guard, analyzer, and a recorder
// that mirrors progress onto the event stream.
func newBotFactory(cfg *config.Config, analyzer *vision.Analyzer, publisher *events.Publisher, logger *slog.Logger) api.BotFactory {
	return func(runID string, opts bot.Options) (*bot.Bot, error) {
		browserOpts := browser.DefaultOptions()
		browserOpts.Headless = cfg.Browser.Headless
		browserOpts.Timeout = cfg.Browser.Timeout
		browserOpts.ViewportWidth = cfg.Browser.ViewportWidth
		browserOpts.ViewportHeight = cfg.Browser.ViewportHeight
		browserOpts.TimezoneID = cfg.Browser.TimezoneID
		browserOpts.Locale = cfg.Browser.Locale

		g := guard.New(bot.UploadURL, logger)
		creds := bot.Credentials{
			Username: cfg.Dreamstime.Username,
			Password: cfg.Dreamstime.Password,
		}

		var session bot.SessionStrategy
		switch cfg.Dreamstime.AuthMode {
		case config.AuthCookies:
			session = bot.NewCookieSession(cfg.Dreamstime.CookieFile, creds, browserOpts, g, logger)
		case config.AuthCDP:
			session = bot.NewCDPAttach(cfg.Dreamstime.CDPEndpoint, browserOpts, g, logger)
		default:
			if !creds.Configured() {
				return nil, fmt.Errorf("DREAMSTIME_USERNAME and DREAMSTIME_PASSWORD must be set for interactive login")
			}
			session = bot.NewInteractiveLogin(creds, browserOpts, g, logger)
		}

		var sinks []bot.Sink
		if publisher != nil {
			sinks = append(sinks, publisher.ForRun(runID))
		}
		recorder := bot.NewRecorder(logger, sinks...)

		return bot.New(opts, session, g, analyzer, recorder, logger), nil
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
