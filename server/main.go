package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tixgate/api/routes"
	"tixgate/internal/orders"
	"tixgate/internal/payments"
	"tixgate/internal/queue"
	"tixgate/internal/scheduler"
	"tixgate/internal/shared/config"
	"tixgate/internal/shared/database"
	"tixgate/internal/shared/store"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"
	"tixgate/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	appMetrics := metrics.New()
	atomicStore := store.New(db.Redis)

	// Kafka: per-event topic lifecycle, saga events, seat mapping verdicts
	var topicManager queue.TopicManager = queue.NoopTopicManager{}
	if kafkaTopics, err := queue.NewKafkaTopicManager(cfg.Kafka.Brokers); err != nil {
		appLogger.Error("Kafka admin unavailable, queue topics disabled", slog.Any("error", err))
	} else {
		topicManager = kafkaTopics
		defer kafkaTopics.Close()
	}

	producer, err := orders.NewKafkaEventProducer(cfg.Kafka.Brokers)
	if err != nil {
		appLogger.Error("failed to create Kafka producer", slog.Any("error", err))
		os.Exit(1)
	}
	defer producer.Close()

	gateway := payments.NewClient(cfg.Payment)

	// Rate limiter
	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:        cfg.RateLimit.Enabled,
			WindowDuration: cfg.RateLimit.WindowDuration,
			QueueRequests:  cfg.RateLimit.QueueRequests,
			OrderRequests:  cfg.RateLimit.OrderRequests,
			StatusRequests: cfg.RateLimit.StatusRequests,
			HealthRequests: cfg.RateLimit.HealthRequests,
			WhitelistedIPs: cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("queue_requests", cfg.RateLimit.QueueRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	appRouter := routes.NewRouter(cfg, db, atomicStore, appLogger, appMetrics, topicManager, producer, gateway)
	engine := setupEngine(cfg, appLogger, appMetrics, rateLimiter)
	if err := appRouter.SetupRoutes(engine); err != nil {
		appLogger.Error("failed to set up routes", slog.Any("error", err))
		os.Exit(1)
	}

	// Lua scripts are registered by the services created in SetupRoutes;
	// preload them so first requests skip the EVAL fallback.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := atomicStore.PreloadScripts(ctx); err != nil {
			appLogger.Error("Failed to preload Redis Lua scripts", slog.Any("error", err))
			// Continue without failing - scripts will be loaded on first use
		} else {
			appLogger.Info("✅ Redis Lua scripts preloaded for atomic admission operations")
		}
		cancel()
	}

	// Background workers
	promoter := queue.NewPromoter(appRouter.QueueService(), cfg.Queue.PromoteInterval, appLogger, appMetrics)
	promoter.Start()
	defer promoter.Stop()

	sweeper := orders.NewSweeper(appRouter.OrderService(), cfg.Saga.SweepInterval, appLogger)
	sweeper.Start()
	defer sweeper.Stop()

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	consumer, err := orders.NewKafkaResultConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, appRouter.OrderService())
	if err != nil {
		appLogger.Error("failed to create seat mapping consumer", slog.Any("error", err))
		os.Exit(1)
	}
	if err := consumer.Start(consumerCtx); err != nil {
		appLogger.Error("failed to start seat mapping consumer", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Stop()

	if cfg.Scheduler.Enabled {
		windowScheduler := scheduler.New(appRouter.QueueService(), appRouter.ScheduleRepo(), cfg.Scheduler, appLogger)
		windowScheduler.Start()
		defer windowScheduler.Stop()
		appLogger.Info("Ticketing window scheduler started", slog.Int("open_hour", cfg.Scheduler.OpenHour))
	}

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("version", Version),
			slog.String("api_base", cfg.GetAPIBasePath()),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
			slog.Bool("scheduler", cfg.Scheduler.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupEngine(cfg *config.Config, appLogger *logger.Logger, appMetrics *metrics.Metrics, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()

	engine.Use(requestLoggerMiddleware(appLogger, appMetrics), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "X-User-Id", "X-RateLimit-*"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
		appLogger.Info("Rate limiting middleware applied to all routes")
	}

	return engine
}

func requestLoggerMiddleware(l *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		l.LogHTTPRequest(c, duration)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration.Seconds())
	}
}
