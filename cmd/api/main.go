// Package main is the entrypoint for the Taskboard API server.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/cache"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/handler"
	"github.com/taskboard/taskboard/internal/metrics"
	"github.com/taskboard/taskboard/internal/middleware"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/repository"
	"github.com/taskboard/taskboard/internal/server"
	"github.com/taskboard/taskboard/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logFile, err := initLogger(cfg)
	if err != nil {
		slog.Error("failed to open log file", "error", err)
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	var tokens *auth.TokenIssuer
	if cfg.TokensEnabled() {
		tokens = auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	}

	keyCfg := service.KeyServiceConfig{
		Store:       repo,
		Invalidator: cacheClient,
		Generate:    auth.GenerateAPIKey,
		KeyEnv:      auth.EnvFor(cfg.AppEnv),
		Logger:      logger,
	}
	authCfg := middleware.AuthConfig{
		Logger:      logger,
		Keys:        repo,
		Cache:       cacheClient,
		Metrics:     recorder,
		MinDuration: cfg.AuthMinDuration,
	}
	// a nil *TokenIssuer must not become a non-nil interface
	if tokens != nil {
		keyCfg.Tokens = tokens
		authCfg.Tokens = tokens
	}

	taskService := service.NewTaskService(repo, recorder)
	userService := service.NewUserService(repo, cfg.UsersPageSize, recorder)
	keyService := service.NewKeyService(keyCfg)

	r := setupRouter(routes{
		fallback: handler.New(),
		health:   handler.NewHealthHandler(repo, cacheClient, logger),
		metrics:  handler.NewMetricsHandler(recorder),
		tasks:    handler.NewTaskHandler(taskService, logger),
		users:    handler.NewUserHandler(userService, cfg.BaseURL, logger),
		apiKeys:  handler.NewAPIKeyHandler(keyService, logger),
		auth:     authCfg,
		rateLimit: middleware.RateLimitConfig{
			Logger:    logger,
			Limiter:   cacheClient,
			Metrics:   recorder,
			Enabled:   cfg.RateLimitEnabled,
			AnonRPS:   cfg.RateLimitAnonRPS,
			AnonBurst: cfg.RateLimitAnonBurst,
		},
		security:      middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()},
		cors:          corsConfig(cfg),
		maxBodySize:   cfg.MaxRequestBodySize,
		tokensEnabled: cfg.TokensEnabled(),
		trustProxy:    cfg.TrustProxyHeaders,
	}, logger)

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("postgres", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return cacheClient.Close()
	})
	if logFile != nil {
		srv.OnShutdown("log file", func(ctx context.Context) error {
			return logFile.Close()
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"tokens_enabled", cfg.TokensEnabled(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger builds the slog logger. With LOG_FILE set, records also go
// to a size-rotated file, which is returned for closing.
func initLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	var (
		out     io.Writer = os.Stdout
		rotator *lumberjack.Logger
	)

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, err
		}
		rotator = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	logger := newLogger(out, cfg.LogFormat, parseLogLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	if rotator == nil {
		return logger, nil, nil
	}
	return logger, rotator, nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	c.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	return c
}

// routes collects everything the router mounts.
type routes struct {
	fallback *handler.Handler
	health   *handler.HealthHandler
	metrics  *handler.MetricsHandler
	tasks    *handler.TaskHandler
	users    *handler.UserHandler
	apiKeys  *handler.APIKeyHandler

	auth          middleware.AuthConfig
	rateLimit     middleware.RateLimitConfig
	security      middleware.SecurityConfig
	cors          middleware.CORSConfig
	maxBodySize   int64
	tokensEnabled bool
	// trustProxy rewrites RemoteAddr from forwarding headers.
	trustProxy bool
}

// setupRouter configures the chi router with all routes and middleware.
// Every path is served with or without its trailing slash.
func setupRouter(rt routes, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	if rt.trustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(rt.security))
	r.Use(middleware.CORS(rt.cors))
	r.Use(chimiddleware.StripSlashes)

	// Operational endpoints (no auth)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	r.Get("/metrics", rt.metrics.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		// Authentication is optional here; handlers and policy decide
		// what anonymous callers may do.
		r.Use(middleware.MaxBodySize(rt.maxBodySize))
		r.Use(middleware.Authenticate(rt.auth))
		r.Use(middleware.RateLimit(rt.rateLimit))

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", rt.tasks.List)
			r.Post("/", rt.tasks.Create)
			r.Get("/{id}", rt.tasks.Get)
			r.Put("/{id}", rt.tasks.Put)
			r.Delete("/{id}", rt.tasks.Delete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", rt.users.List)
			r.Post("/", rt.users.Create)
			r.Get("/{id}", rt.users.Get)
		})

		r.Route("/api-keys", func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated)
			r.Get("/", rt.apiKeys.ListAPIKeys)
			r.Post("/", rt.apiKeys.CreateAPIKey)
			r.Delete("/{key_id}", rt.apiKeys.RevokeAPIKey)
		})

		if rt.tokensEnabled {
			r.With(middleware.RequireScope(model.ScopeRead, model.ScopeWrite)).Post("/auth/token", rt.apiKeys.IssueToken)
		}
	})

	r.NotFound(rt.fallback.NotFound)
	r.MethodNotAllowed(rt.fallback.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
