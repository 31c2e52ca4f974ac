package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/commodity-forecast/internal/api"
	"github.com/irfndi/commodity-forecast/internal/api/handlers"
	"github.com/irfndi/commodity-forecast/internal/cache"
	"github.com/irfndi/commodity-forecast/internal/config"
	"github.com/irfndi/commodity-forecast/internal/database"
	"github.com/irfndi/commodity-forecast/internal/logging"
	"github.com/irfndi/commodity-forecast/internal/middleware"
	"github.com/irfndi/commodity-forecast/internal/services"
	"github.com/irfndi/commodity-forecast/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	shutdownTimeout      = 30 * time.Second
	resourceSamplePeriod = time.Minute
	cacheStatsPeriod     = 5 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize telemetry first
	if err := telemetry.InitTelemetry(telemetryConfig(cfg)); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	logger := logging.NewStandardOTLPLogger(otlpLoggerConfig(cfg))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = logger.Shutdown(ctx)
	}()

	// Services and handlers log through logrus
	logrusLogger := logging.NewLogrusLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	prices := database.NewPriceRepository(database.NewTracedDB(db.Pool), database.WithOperationLogger(logger))

	// Price-history reads are retried and guarded by a circuit breaker
	recovery := services.NewErrorRecoveryManager(logrusLogger)
	for name, policy := range services.DefaultRetryPolicies() {
		recovery.RegisterRetryPolicy(name, policy)
	}
	recovery.RegisterCircuitBreaker(services.OpPriceHistory, services.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxRequests:      3,
		ResetTimeout:     2 * time.Minute,
	})

	optimizer := services.NewResourceOptimizer(services.ResourceOptimizerConfig{
		MinWorkers: 1,
		MaxWorkers: cfg.Forecast.MaxConcurrency,
	}, logrusLogger)
	go optimizer.Run(ctx, resourceSamplePeriod)

	opts := []services.ServiceOption{
		services.WithErrorRecovery(recovery),
		services.WithConcurrencyLimiter(optimizer),
		services.WithEventLogger(logger),
	}

	// Redis is only needed when caching is enabled
	var redisHealth handlers.HealthChecker
	if cfg.Cache.Enabled {
		redis, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redis.Close()
		redisHealth = redis

		forecastCache := cache.NewRedisForecastCache(redis, cfg.Cache.PredictionTTLDuration(), cfg.Cache.AnomalyTTLDuration(), logrusLogger,
			cache.WithOperationLogger(logger))
		go reportCacheStats(ctx, forecastCache, cacheStatsPeriod)
		opts = append(opts, services.WithCache(forecastCache))
		logger.WithComponent("cache").Info("Forecast cache enabled",
			"prediction_ttl", cfg.Cache.PredictionTTLDuration().String(),
			"anomaly_ttl", cfg.Cache.AnomalyTTLDuration().String(),
		)
	} else {
		logger.WithComponent("cache").Info("Forecast cache disabled")
	}

	forecastService := services.NewForecastService(prices, cfg.Forecast, cfg.Anomaly, logrusLogger, opts...)

	router := newRouter(cfg, logger)
	api.SetupRoutes(router,
		handlers.NewForecastHandler(forecastService, logrusLogger),
		handlers.NewHealthHandler(db, redisHealth, recovery, optimizer, cfg.Telemetry.ServiceVersion),
		middleware.NewAdminMiddleware(cfg.Server.AdminAPIKey),
	)

	srv := newHTTPServer(cfg.Server, router)

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	reason := "signal received"
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		reason = "server error"
		logrusLogger.WithError(err).Error("HTTP server failed")
	}
	logger.LogShutdown(cfg.Telemetry.ServiceName, reason)

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logrusLogger.Info("Server exited gracefully")
	return nil
}

func telemetryConfig(cfg *config.Config) telemetry.TelemetryConfig {
	return telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		SampleRate:     1.0,
	}
}

// otlpLoggerConfig exports logs only when traces go to an OTLP collector.
func otlpLoggerConfig(cfg *config.Config) logging.OTLPConfig {
	return logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == telemetry.ExporterOTLP,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.Telemetry.LogLevel,
	}
}

func newRouter(cfg *config.Config, logger middleware.APIRequestLogger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.TraceRequestID())
	return router
}

// newHTTPServer creates the HTTP server with security timeouts
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeoutDuration(15 * time.Second),
		WriteTimeout:      cfg.WriteTimeoutDuration(30 * time.Second),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type statsLogger interface {
	LogStats()
}

func reportCacheStats(ctx context.Context, stats statsLogger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats.LogStats()
		}
	}
}
