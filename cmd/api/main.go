// Package main is the entrypoint for the SiteGauge API server.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sitegauge/sitegauge/internal/auditor"
	"github.com/sitegauge/sitegauge/internal/cache"
	"github.com/sitegauge/sitegauge/internal/config"
	"github.com/sitegauge/sitegauge/internal/handler"
	"github.com/sitegauge/sitegauge/internal/metrics"
	"github.com/sitegauge/sitegauge/internal/middleware"
	"github.com/sitegauge/sitegauge/internal/queue"
	"github.com/sitegauge/sitegauge/internal/quota"
	"github.com/sitegauge/sitegauge/internal/repository"
	"github.com/sitegauge/sitegauge/internal/server"
	"github.com/sitegauge/sitegauge/internal/service"
	"github.com/sitegauge/sitegauge/internal/webhook"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Second connection for the webhook subscription store
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open webhook store", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping webhook store", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
		os.Exit(1)
	}

	// Metrics registry shared by the recorder and the /metrics endpoint
	promRegistry := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheus(promRegistry)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Webhook delivery pipeline
	webhookRepo := webhook.NewRepository(db)
	dispatcher := webhook.NewDispatcher(webhookRepo, logger, recorder)
	dispatcher.SetMaxRetries(cfg.WebhookMaxRetries)
	dispatcher.SetBaseDelay(cfg.WebhookRetryBaseDelay)
	dispatcher.SetAttemptTimeout(cfg.WebhookTimeout)
	dispatcher.SetFailureCeiling(cfg.WebhookFailureCeiling)

	// Audit pipeline: executor, worker pool, terminal-event consumer
	siteAuditor := auditor.New(logger)
	jobQueue := queue.NewQueue(siteAuditor, repo, cfg.QueueConcurrency, cfg.QueueTimeout, logger, recorder)
	consumer := queue.NewConsumer(repo, dispatcher, logger)

	// Services
	gate := quota.NewGate()
	auditService := service.NewAuditService(repo, cacheClient, jobQueue, gate, recorder)

	// Handlers
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	metricsHandler := handler.NewMetricsHandler(promRegistry)
	auditHandler := handler.NewAuditHandler(auditService, logger)
	webhookHandler := handler.NewWebhookHandler(webhookRepo, logger, cfg.WebhookSecretLength)
	accountHandler := handler.NewAccountHandler(repo, cacheClient, gate, logger, cfg.APIKeyLength)

	// Setup router
	r := setupRouter(healthHandler, metricsHandler, auditHandler, webhookHandler, accountHandler, repo, cacheClient, recorder, cfg, logger)

	// Start background workers
	go func() {
		if err := jobQueue.Run(context.Background()); err != nil {
			logger.Error("queue stopped with error", "error", err)
		}
	}()
	go func() {
		if err := consumer.Run(jobQueue.Events()); err != nil {
			logger.Error("consumer stopped with error", "error", err)
		}
	}()

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Stop order (reverse of registration): the queue stops first so the
	// event channel closes, the consumer drains the remaining events,
	// then the dispatcher finishes in-flight deliveries.
	srv.OnShutdown("webhook dispatcher", dispatcher.Shutdown)
	srv.OnShutdown("event consumer", consumer.Shutdown)
	srv.OnShutdown("audit queue", jobQueue.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"queue_concurrency", cfg.QueueConcurrency,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	healthHandler *handler.HealthHandler,
	metricsHandler *handler.MetricsHandler,
	auditHandler *handler.AuditHandler,
	webhookHandler *handler.WebhookHandler,
	accountHandler *handler.AccountHandler,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	recorder metrics.Recorder,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger, recorder))
	r.Use(middleware.Recoverer(logger))

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	r.Use(middleware.Security(securityCfg))

	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = origins
		r.Use(middleware.CORS(corsCfg))
	}

	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Operational endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Auth middleware configuration
	authCfg := middleware.AuthConfig{
		Logger:  logger,
		Users:   repo,
		Cache:   cacheClient,
		Metrics: recorder,
	}

	// Rate limit middleware configuration
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:      logger,
		Limiter:     cacheClient,
		APIEnabled:  cfg.RateLimitAPIEnabled,
		AuthEnabled: cfg.RateLimitAuthEnabled,
		AuthRPS:     cfg.RateLimitAuthRPS,
		AuthBurst:   cfg.RateLimitAuthBurst,
	}

	r.Route("/v1", func(r chi.Router) {
		// Public account endpoints with IP-based rate limiting
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg))
			r.Post("/account/register", accountHandler.Register)
			r.Post("/account/login", accountHandler.Login)
		})

		// API-key endpoints with per-plan rate limiting
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))

			r.Post("/account/rotate-key", accountHandler.RotateKey)
			r.Get("/account/usage", accountHandler.Usage)

			r.Route("/audits", func(r chi.Router) {
				r.Post("/", auditHandler.Create)
				r.Get("/", auditHandler.List)
				r.Get("/{auditID}", auditHandler.Get)
				r.Delete("/{auditID}", auditHandler.Delete)
			})

			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/", webhookHandler.Create)
				r.Get("/", webhookHandler.List)
				r.Get("/{webhookID}", webhookHandler.Get)
				r.Delete("/{webhookID}", webhookHandler.Delete)
				r.Post("/{webhookID}/activate", webhookHandler.Activate)
				r.Post("/{webhookID}/deactivate", webhookHandler.Deactivate)
			})
		})
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

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
