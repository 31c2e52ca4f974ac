// Package cache stores computed forecasts and anomaly reports in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irfndi/commodity-forecast/internal/database"
	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	predictionPrefix = "forecast:prediction:"
	anomalyPrefix    = "forecast:anomalies:"
)

// ForecastCacheStats tracks cache performance metrics
type ForecastCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// HitRate returns hits as a percentage of lookups.
func (s ForecastCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// OperationLogger receives one entry per cache lookup. It is satisfied by
// logging.StandardLogger.
type OperationLogger interface {
	LogCacheOperation(operation string, key string, hit bool, duration int64)
}

// RedisForecastCache caches forecasts per horizon and anomaly reports per series.
// Cache failures are logged and treated as misses.
type RedisForecastCache struct {
	redis         *database.RedisClient
	predictionTTL time.Duration
	anomalyTTL    time.Duration
	logger        *logrus.Logger
	operations    OperationLogger

	mu    sync.RWMutex
	stats ForecastCacheStats
}

// Option configures a RedisForecastCache.
type Option func(*RedisForecastCache)

// WithOperationLogger reports every lookup with its latency.
func WithOperationLogger(logger OperationLogger) Option {
	return func(c *RedisForecastCache) {
		c.operations = logger
	}
}

// NewRedisForecastCache creates a new Redis-based forecast cache
func NewRedisForecastCache(redisClient *database.RedisClient, predictionTTL, anomalyTTL time.Duration, logger *logrus.Logger, opts ...Option) *RedisForecastCache {
	if logger == nil {
		logger = logrus.New()
	}
	c := &RedisForecastCache{
		redis:         redisClient,
		predictionTTL: predictionTTL,
		anomalyTTL:    anomalyTTL,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PredictionKey is the Redis key of one horizon of a series.
func PredictionKey(commodity, market string, horizon int) string {
	return fmt.Sprintf("%s%s:%s:%d", predictionPrefix, commodity, market, horizon)
}

// AnomalyKey is the Redis key of the anomaly list of a series.
func AnomalyKey(commodity, market string) string {
	return fmt.Sprintf("%s%s:%s", anomalyPrefix, commodity, market)
}

// GetForecast returns the cached forecast of one horizon, if any.
func (c *RedisForecastCache) GetForecast(ctx context.Context, commodity, market string, horizon int) (*models.CommodityForecast, bool) {
	var forecast models.CommodityForecast
	if !c.get(ctx, PredictionKey(commodity, market, horizon), &forecast) {
		return nil, false
	}
	forecast.Cached = true
	return &forecast, true
}

// SetForecast stores a forecast under its commodity, market and horizon for predictionTTL.
func (c *RedisForecastCache) SetForecast(ctx context.Context, forecast models.CommodityForecast) {
	forecast.Cached = false
	key := PredictionKey(forecast.Commodity, forecast.Market, forecast.Prediction.Horizon)
	c.set(ctx, key, forecast, c.predictionTTL)
}

// GetAnomalyReport returns the cached anomaly report, if any.
func (c *RedisForecastCache) GetAnomalyReport(ctx context.Context, commodity, market string) (*models.AnomalyReport, bool) {
	var report models.AnomalyReport
	if !c.get(ctx, AnomalyKey(commodity, market), &report) {
		return nil, false
	}
	if report.Anomalies == nil {
		report.Anomalies = []models.DetectedAnomaly{}
	}
	report.Cached = true
	return &report, true
}

// SetAnomalyReport stores an anomaly report for anomalyTTL.
func (c *RedisForecastCache) SetAnomalyReport(ctx context.Context, report models.AnomalyReport) {
	report.Cached = false
	if report.Anomalies == nil {
		report.Anomalies = []models.DetectedAnomaly{}
	}
	c.set(ctx, AnomalyKey(report.Commodity, report.Market), report, c.anomalyTTL)
}

func (c *RedisForecastCache) get(ctx context.Context, key string, dest interface{}) bool {
	start := time.Now()
	err := c.redis.GetJSON(ctx, key, dest)
	if c.operations != nil {
		c.operations.LogCacheOperation("get", key, err == nil, time.Since(start).Milliseconds())
	}

	switch {
	case err == nil:
		c.record(func(s *ForecastCacheStats) { s.Hits++ })
		return true
	case errors.Is(err, redis.Nil):
		c.record(func(s *ForecastCacheStats) { s.Misses++ })
	case errors.Is(err, database.ErrUndecodable):
		c.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable forecast cache entry")
		c.record(func(s *ForecastCacheStats) { s.Misses++; s.Errors++ })
	default:
		c.logger.WithError(err).WithField("key", key).Warn("Redis error reading forecast cache")
		c.record(func(s *ForecastCacheStats) { s.Misses++; s.Errors++ })
	}
	return false
}

func (c *RedisForecastCache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := c.redis.SetJSON(ctx, key, value, ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Error writing forecast cache")
		c.record(func(s *ForecastCacheStats) { s.Errors++ })
		return
	}

	c.record(func(s *ForecastCacheStats) { s.Sets++ })
	c.logger.WithFields(logrus.Fields{"key": key, "ttl": ttl.String()}).Debug("Cached forecast entry")
}

func (c *RedisForecastCache) record(update func(*ForecastCacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

// Invalidate removes every cached entry of a series and returns how many keys were deleted.
func (c *RedisForecastCache) Invalidate(ctx context.Context, commodity, market string) (int, error) {
	pattern := fmt.Sprintf("%s%s:%s:*", predictionPrefix, commodity, market)
	keys, err := c.redis.ScanKeys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("error scanning cache keys: %w", err)
	}
	keys = append(keys, AnomalyKey(commodity, market))

	deleted, err := c.redis.Delete(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"commodity": commodity,
		"market":    market,
		"deleted":   deleted,
	}).Info("Invalidated forecast cache")
	return int(deleted), nil
}

// GetStats returns current cache statistics
func (c *RedisForecastCache) GetStats() ForecastCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// LogStats logs current cache performance statistics
func (c *RedisForecastCache) LogStats() {
	stats := c.GetStats()
	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"errors":   stats.Errors,
		"hit_rate": fmt.Sprintf("%.2f%%", stats.HitRate()),
	}).Info("Forecast cache stats")
}
