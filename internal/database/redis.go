package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/commodity-forecast/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var errNilRedis = errors.New("redis client is nil")

// RedisClient wraps the go-redis client with health checks and JSON helpers.
type RedisClient struct {
	Client *redis.Client
}

func NewRedisConnection(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.Info("Successfully connected to Redis")

	return &RedisClient{Client: rdb}, nil
}

func (r *RedisClient) Close() {
	if r.Client != nil {
		_ = r.Client.Close()
		logrus.Info("Redis connection closed")
	}
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if r.Client == nil {
		return errNilRedis
	}
	return r.Client.Ping(ctx).Err()
}

// ErrUndecodable wraps values that are not valid JSON for the requested type.
var ErrUndecodable = errors.New("undecodable redis value")

// SetJSON stores value encoded as JSON under key.
func (r *RedisClient) SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error {
	if r.Client == nil {
		return errNilRedis
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return r.Client.Set(ctx, key, data, expiration).Err()
}

// GetJSON decodes the value under key into dest. A missing key returns redis.Nil.
func (r *RedisClient) GetJSON(ctx context.Context, key string, dest any) error {
	if r.Client == nil {
		return errNilRedis
	}
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w %s: %w", ErrUndecodable, key, err)
	}
	return nil
}

// ScanKeys returns every key matching pattern without blocking the server.
func (r *RedisClient) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	if r.Client == nil {
		return nil, errNilRedis
	}
	var keys []string
	iter := r.Client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Delete removes keys and reports how many existed.
func (r *RedisClient) Delete(ctx context.Context, keys ...string) (int64, error) {
	if r.Client == nil {
		return 0, errNilRedis
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return r.Client.Del(ctx, keys...).Result()
}
