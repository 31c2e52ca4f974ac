// Package testutil holds Redis fixtures shared by package tests.
package testutil

import (
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// GetTestRedisOptions points at REDIS_TEST_ADDR (default localhost:6379), DB 1.
func GetTestRedisOptions() *redis.Options {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return &redis.Options{Addr: addr, DB: 1}
}

// GetTestRedisClient returns a client for a real Redis described by GetTestRedisOptions.
func GetTestRedisClient() *redis.Client {
	return redis.NewClient(GetTestRedisOptions())
}

// NewMiniRedis starts an in-memory Redis and a client for it. Both are
// closed when the test ends.
func NewMiniRedis(tb testing.TB) (*miniredis.Miniredis, *redis.Client) {
	tb.Helper()
	s := miniredis.RunT(tb)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	tb.Cleanup(func() {
		_ = client.Close()
	})
	return s, client
}
