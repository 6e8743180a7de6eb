package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/google/uuid"
	"github.com/jordanlanch/leadbridge/config"
	"github.com/jordanlanch/leadbridge/pkg/api/handlers"
	"github.com/jordanlanch/leadbridge/pkg/cache"
	"github.com/jordanlanch/leadbridge/pkg/database"
	"github.com/jordanlanch/leadbridge/pkg/forwarding"
	"github.com/jordanlanch/leadbridge/pkg/jobs"
	"github.com/jordanlanch/leadbridge/pkg/leads"
	"github.com/jordanlanch/leadbridge/pkg/logger"
	"github.com/jordanlanch/leadbridge/pkg/metrics"
	custommiddleware "github.com/jordanlanch/leadbridge/pkg/middleware"
	"github.com/jordanlanch/leadbridge/pkg/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const serviceName = "leadbridge"

func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	appLogger := logger.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// Initialize tracing
	shutdownTracing := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.APIEnvironment,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("⚠️  Failed to flush traces: %v", err)
		}
	}()

	// Initialize database
	repo, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer repo.Close()
	log.Printf("✅ Database ready (%s)", database.DetectBackend(cfg.DatabaseURL))

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// Initialize Redis cache (optional)
	var redisClient *cache.Client
	var statsCache *cache.StatsCache
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, stats caching disabled: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			statsCache = cache.NewStatsCache(redisClient, cfg.StatsCacheTTL, appLogger, prometheusMetrics)
			log.Printf("✅ Stats cache enabled (ttl: %s)", cfg.StatsCacheTTL)
		}
	} else {
		log.Printf("ℹ️  Stats cache disabled (no REDIS_URL configured)")
	}

	// Initialize forwarding
	if cfg.MarketingAPIURL == "" || cfg.WhatsAppAPIURL == "" {
		log.Printf("⚠️  Forwarding endpoint missing (marketing: %t, whatsapp: %t); affected leads will be marked failed",
			cfg.MarketingAPIURL != "", cfg.WhatsAppAPIURL != "")
	}
	dispatcher := forwarding.NewDispatcher(
		forwarding.NewRouter(cfg.WhatsAppCategories, cfg.MarketingAPIURL, cfg.WhatsAppAPIURL),
		forwarding.WithTimeout(cfg.ForwardTimeout),
		forwarding.WithLogger(appLogger.With("component", "forwarding")),
		forwarding.WithObserver(prometheusMetrics),
	)

	// Initialize services
	serviceOpts := []leads.Option{
		leads.WithLogger(appLogger.With("component", "leads")),
		leads.WithRecorder(prometheusMetrics),
		leads.WithBulkConcurrency(cfg.BulkForwardConcurrency),
	}
	if statsCache != nil {
		serviceOpts = append(serviceOpts, leads.WithStatsCache(statsCache))
	}
	leadService := leads.NewService(repo, dispatcher, serviceOpts...)

	// Initialize cron jobs
	cronManager := jobs.NewCronManager(leadService, leadService, jobs.Config{
		SweepSchedule: cfg.StaleSweepSchedule,
		StaleAfter:    cfg.StalePendingAfter,
	}, nil)
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to set up cron jobs: %v", err)
	}
	cronManager.Start()
	defer cronManager.Stop()

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	go globalRateLimiter.Run(ctx)

	// Global middleware
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	requestLogger := appLogger.With("component", "http")
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				requestLogger.Warn("request failed", append(args, "error", v.Error)...)
				return nil
			}
			requestLogger.Info("request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// Sentry error tracking middleware (if configured)
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true, // Repanic after capturing to let the Recover middleware handle it
		}))
	}

	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORSAllowedOrigins)))
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.SecurityHeadersConfig{}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(globalRateLimiter.RateLimitMiddleware(custommiddleware.SkipPaths("/health", "/ready", "/metrics")))

	// Health, readiness and metrics (public, not rate limited)
	var cachePinger handlers.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}
	healthHandler := handlers.NewHealthHandler(repo, cachePinger)
	e.GET("/health", healthHandler.Live)
	e.GET("/ready", healthHandler.Ready)
	e.GET("/metrics", echo.WrapHandler(prometheusMetrics.Handler()))

	// Lead routes
	handlers.NewLeadHandler(leadService, cfg.FeatureExports).Register(e.Group("/api/leads"))

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	go func() {
		log.Printf("🚀 Starting server on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown error: %v", err)
	}
	log.Printf("✅ Server stopped")
}
