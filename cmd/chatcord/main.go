// chatcord - conversational Discord assistant
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/chatcord/internal/api"
	"github.com/ashureev/chatcord/internal/bot"
	"github.com/ashureev/chatcord/internal/config"
	"github.com/ashureev/chatcord/internal/discord"
	"github.com/ashureev/chatcord/internal/domain"
	"github.com/ashureev/chatcord/internal/events"
	"github.com/ashureev/chatcord/internal/health"
	"github.com/ashureev/chatcord/internal/idle"
	"github.com/ashureev/chatcord/internal/middleware"
	"github.com/ashureev/chatcord/internal/respond"
	"github.com/ashureev/chatcord/internal/session"
	"github.com/ashureev/chatcord/internal/store"
	"github.com/ashureev/chatcord/internal/transcribe"
	"github.com/ashureev/chatcord/internal/upstream"
	"github.com/ashureev/chatcord/internal/voice"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log-level", "l", "", "Log level (overrides LOG_LEVEL)")
	logFormat := cli.String("log-format", "", "Log format: json or text (overrides LOG_FORMAT)")
	cli.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func newLogger(level, format string) *slog.Logger {
	lvl, ok := logLevelMap[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}
	if strings.EqualFold(format, "text") {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: lvl, TimeFormat: time.Kitchen}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openPreferences(cfg config.PreferencesConfig) (store.PreferenceRepository, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return store.NewSQLite(cfg.DBPath)
	default:
		return store.NewJSON(cfg.Path)
	}
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting chatcord", "port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort, "preferences", cfg.Preferences.Backend)

	prefs, err := openPreferences(cfg.Preferences)
	if err != nil {
		return fmt.Errorf("initialize preference store: %w", err)
	}
	defer func() {
		if closeErr := prefs.Close(); closeErr != nil {
			slog.Error("Failed to close preference store", "error", closeErr)
		}
	}()
	if err := prefs.Ping(context.Background()); err != nil {
		return fmt.Errorf("preference store health check: %w", err)
	}
	if all, err := prefs.All(context.Background()); err == nil {
		slog.Info("Preferences loaded", "users", len(all))
	}

	httpClient, err := upstream.NewHTTPClient(cfg.Upstream.RequestTimeout, cfg.Upstream.ProxyAddr)
	if err != nil {
		return fmt.Errorf("build upstream http client: %w", err)
	}
	client := upstream.NewOpenAI(upstream.Options{
		APIKey:     cfg.Upstream.APIKey,
		BaseURL:    cfg.Upstream.BaseURL,
		HTTPClient: httpClient,
	})

	table := session.NewTable(cfg.HistoryLimit)
	settings := domain.NewSettings(cfg.Upstream.ChatModel, cfg.Upstream.Temperature)
	hub := events.NewHub(0, 0)
	defer hub.Close()

	responder := respond.New(client, table, settings, respond.Config{
		MaxTokens: cfg.Upstream.MaxTokens,
		Timeout:   cfg.Upstream.RequestTimeout,
	}, logger)
	transcriber := transcribe.New(client, transcribe.Config{
		Model:   cfg.Upstream.STTModel,
		Timeout: cfg.Upstream.RequestTimeout,
		TempDir: cfg.TempDir,
	}, logger)
	speaker := voice.NewSerializer(voice.NewEspeak(cfg.Voice.TTSBinary, cfg.TempDir), cfg.Voice.SpeechRate, cfg.Voice.Grace, logger)

	adapter, err := discord.New(cfg.DiscordToken, cfg.Voice.FFmpegBinary, logger)
	if err != nil {
		return err
	}

	orch := bot.New(bot.Deps{
		Messenger:   adapter,
		Joiner:      adapter,
		Fetcher:     discord.NewFetcher(httpClient, cfg.Upstream.RequestTimeout),
		Responder:   responder,
		Transcriber: transcriber,
		Speaker:     speaker,
		Table:       table,
		Preferences: prefs,
		Settings:    settings,
		Hub:         hub,
		Limiter:     bot.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
	}, bot.Config{
		CommandPrefix:  cfg.CommandPrefix,
		TypingInterval: cfg.TypingInterval,
		ThinkPauseMax:  cfg.ThinkPauseMax,
		VoiceMaxChars:  cfg.Voice.MaxChars,
		Idle: idle.Config{
			Interval:    cfg.Idle.Interval,
			MinAge:      cfg.Idle.MinAge,
			MaxAge:      cfg.Idle.MaxAge,
			Probability: cfg.Idle.Probability,
		},
	}, logger)

	// Setup router.
	conns := api.NewConnRegistry()
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.Admin.AllowedOrigins))
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminToken(cfg.Admin.Token))
		api.NewHandler(table, settings, prefs, speaker, hub).RegisterRoutes(r)
		r.Get("/ws/events", api.NewEventsHandler(hub, conns, cfg.Admin.AllowedOrigins).ServeHTTP)
	})

	srv := &http.Server{
		Addr:        cfg.Admin.ListenAddr(cfg.HTTPPort),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	healthSrv := health.NewServer([]health.Probe{
		{Name: "preferences", Check: prefs.Ping},
	}, 0, logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := adapter.Open(ctx, orch.HandleMessage); err != nil {
		return err
	}
	orch.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return healthSrv.Serve(grpcLis)
	})
	g.Go(func() error {
		healthSrv.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conns.CloseAll()
		healthSrv.Stop(shutdownCtx)
		if err := adapter.Close(); err != nil {
			slog.Warn("Discord session close failed", "error", err)
		}
		orch.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
