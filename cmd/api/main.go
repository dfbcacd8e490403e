package main

// @title ContentForge Partner API
// @version 1.0
// @description Referral attribution, partner commissions and resilient caption generation.
// @termsOfService https://contentforge.app/terms

// @contact.name API Support
// @contact.url https://contentforge.app/support
// @contact.email support@contentforge.app

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanlanch/contentforge/config"
	"github.com/jordanlanch/contentforge/pkg/ai/llm"
	"github.com/jordanlanch/contentforge/pkg/api"
	"github.com/jordanlanch/contentforge/pkg/api/handlers"
	"github.com/jordanlanch/contentforge/pkg/billing"
	"github.com/jordanlanch/contentforge/pkg/cache"
	"github.com/jordanlanch/contentforge/pkg/commission"
	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/email"
	"github.com/jordanlanch/contentforge/pkg/export"
	"github.com/jordanlanch/contentforge/pkg/generation"
	"github.com/jordanlanch/contentforge/pkg/jobs"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/metrics"
	custommiddleware "github.com/jordanlanch/contentforge/pkg/middleware"
	"github.com/jordanlanch/contentforge/pkg/partner"
	"github.com/jordanlanch/contentforge/pkg/referral"
	"github.com/jordanlanch/contentforge/pkg/store"
)

// registerDocs mounts the generated API docs; see swagger.go
var registerDocs = func(*echo.Echo) {}

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	appLogger := logger.New(cfg.LogLevel)
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

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

	// Initialize database
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	dbOpts := database.Options{
		Driver:    cfg.DatabaseDriver,
		URL:       cfg.DatabaseURL,
		TxTimeout: cfg.DBTxTimeout,
	}
	if cfg.DBSSLMode != "" {
		dbOpts.SSL = &database.SSLConfig{
			Mode:         cfg.DBSSLMode,
			CertPath:     cfg.DBSSLCertPath,
			KeyPath:      cfg.DBSSLKeyPath,
			RootCertPath: cfg.DBSSLRootCertPath,
		}
	}
	db, err := database.NewClient(startupCtx, dbOpts)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Redis is optional unless generation dedup is shared through it
	var redisClient *cache.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			if cfg.DedupMode == "redis" {
				log.Fatalf("❌ DEDUP_MODE=redis but Redis is unavailable: %v", err)
			}
			log.Printf("⚠️  Redis unavailable, continuing without cache: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New(prometheus.DefaultRegisterer)
	db.OnTx(prometheusMetrics.RecordDBTx)
	log.Printf("✅ Prometheus metrics initialized")

	// Initialize services
	st := store.New(db)
	emailService := email.NewService(cfg.EmailFrom, cfg.EmailFromName, cfg.FrontendURL, cfg.SendGridAPIKey)

	partnerService := partner.NewService(st, cfg.DefaultCommissionRate, appLogger)
	codeValidator := referral.NewValidator(st, appLogger).WithMetrics(prometheusMetrics)
	if redisClient != nil {
		codeValidator.WithCache(redisClient, cfg.ReferralCodeCacheTTL)
	}
	orchestrator := referral.NewOrchestrator(
		codeValidator,
		referral.NewCustomerRepository(st, appLogger),
		st,
		cfg.AttributionMaxAttempts,
		appLogger,
	).WithMetrics(prometheusMetrics)
	if cfg.NotifyPartners {
		partnerService.WithNotifier(emailService)
		orchestrator.WithNotifier(emailService)
	}

	ledger := commission.NewLedger(st, appLogger).WithMetrics(prometheusMetrics)
	billingService := billing.NewService(st, ledger, cfg.StripeWebhookSecret, appLogger).WithMetrics(prometheusMetrics)
	if cfg.StripeWebhookSecret == "" {
		log.Printf("⚠️  STRIPE_WEBHOOK_SECRET not set, every webhook will be rejected")
	}
	exportService := export.NewService(partnerService, ledger)

	var chatClient llm.Client
	switch cfg.LLMProvider {
	case "ollama":
		chatClient = llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL: cfg.OllamaBaseURL,
			Model:   cfg.OllamaModel,
		}, appLogger)
		log.Printf("✅ LLM: Ollama (%s)", cfg.OllamaModel)
	default:
		chatClient = llm.NewOpenAIClient(llm.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, appLogger)
		log.Printf("✅ LLM: OpenAI (%s)", cfg.OpenAIModel)
	}

	var deduper generation.Deduper = generation.NewLocalDeduper()
	if cfg.DedupMode == "redis" {
		deduper = generation.NewRedisDeduper(redisClient, cfg.DedupTTL)
	}
	generator := generation.NewGenerator(chatClient, deduper, appLogger).WithMetrics(prometheusMetrics)

	// Cron jobs
	cronManager := jobs.NewCronManager(partnerService, db, prometheusMetrics, cfg.StatsRecalcSchedule, appLogger)
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to set up cron jobs: %v", err)
	}
	cronManager.Start()

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	defer globalRateLimiter.Close()
	generationRateLimiter := custommiddleware.NewRateLimiter(10, 3) // model calls are expensive
	defer generationRateLimiter.Close()

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				appLogger.Error("request failed", append(args, "error", v.Error)...)
				return nil
			}
			appLogger.Info("request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	// Sentry error tracking middleware (if configured)
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true, // Recover middleware handles the panic after capture
		}))
	}

	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.FrontendURL)))
	e.Use(middleware.Gzip())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))
	e.Use(globalRateLimiter.Middleware())

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "ContentForge Partner API",
			"version":     "1.0.0",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	// Prometheus metrics endpoint (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Swagger documentation (public, only in builds tagged swagger)
	registerDocs(e)

	var cachePinger handlers.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}

	api.RegisterRoutes(e, api.Handlers{
		Health:     handlers.NewHealthHandler(db, cachePinger),
		Referral:   handlers.NewReferralHandler(codeValidator, orchestrator),
		Partner:    handlers.NewPartnerHandler(partnerService),
		Admin:      handlers.NewAdminHandler(partnerService, codeValidator, ledger, exportService, appLogger),
		Generation: handlers.NewGenerationHandler(generator),
		Billing:    handlers.NewBillingHandler(billingService),
	}, api.RouteConfig{
		JWTSecret:         cfg.JWTSecret,
		GenerationLimiter: generationRateLimiter,
	})

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 ContentForge API starting on %s", address)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d), generation 10 req/min", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("⏰ Partner stats recalculation: %s", cfg.StatsRecalcSchedule)
	log.Printf("🧩 Generation dedup: %s", cfg.DedupMode)

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cronManager.Stop(ctx)
	log.Println("✅ Cron jobs stopped")

	if err := e.Shutdown(ctx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
		return
	}

	log.Println("✅ Server gracefully stopped")
}
