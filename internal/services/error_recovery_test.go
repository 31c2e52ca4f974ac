package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/irfndi/commodity-forecast/internal/forecast"
	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/irfndi/commodity-forecast/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecovery() (*ErrorRecoveryManager, *[]time.Duration) {
	erm := NewErrorRecoveryManager(quietLogger())
	var sleeps []time.Duration
	erm.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	erm.RegisterRetryPolicy("op", &RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      25 * time.Millisecond,
		BackoffFactor: 2,
	})
	return erm, &sleeps
}

func TestExecuteWithRetry_RecoversAfterTransientFailures(t *testing.T) {
	erm, sleeps := newTestRecovery()

	attempts := 0
	err := erm.ExecuteWithRetry(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *sleeps)
}

func TestExecuteWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	erm, sleeps := newTestRecovery()

	attempts := 0
	err := erm.ExecuteWithRetry(context.Background(), "op", func(context.Context) error {
		attempts++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, *sleeps)
}

func TestExecuteWithRetry_PermanentErrorsAreNotRetried(t *testing.T) {
	permanent := []error{
		fmt.Errorf("soja/santos: %w", models.ErrCommodityNotFound),
		&forecast.InsufficientDataError{Required: 7, Actual: 3},
		utils.NewFieldError("horizon", "out of range"),
		context.Canceled,
	}

	for _, perr := range permanent {
		t.Run(perr.Error(), func(t *testing.T) {
			erm, sleeps := newTestRecovery()
			attempts := 0
			err := erm.ExecuteWithRetry(context.Background(), "op", func(context.Context) error {
				attempts++
				return perr
			})
			assert.ErrorIs(t, err, perr)
			assert.Equal(t, 1, attempts)
			assert.Empty(t, *sleeps)
		})
	}
}

func TestExecuteWithRetry_CancelledContext(t *testing.T) {
	erm, _ := newTestRecovery()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := erm.ExecuteWithRetry(ctx, "op", func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestExecuteWithRetry_UnknownOperationUsesDefaultPolicy(t *testing.T) {
	erm, sleeps := newTestRecovery()

	attempts := 0
	err := erm.ExecuteWithRetry(context.Background(), "unregistered", func(context.Context) error {
		attempts++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, DefaultRetryPolicies()["default"].MaxRetries+1, attempts)
	assert.Len(t, *sleeps, DefaultRetryPolicies()["default"].MaxRetries)
}

func TestExecuteWithRetry_CircuitBreaker(t *testing.T) {
	erm, _ := newTestRecovery()
	erm.RegisterRetryPolicy("op", &RetryPolicy{MaxRetries: 0})
	erm.RegisterCircuitBreaker("op", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, erm.ExecuteWithRetry(context.Background(), "op", fail), errBoom)
	}
	assert.Equal(t, Open, erm.GetCircuitBreakerStatus()["op"])

	called := false
	err := erm.ExecuteWithRetry(context.Background(), "op", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestExecuteWithRetry_NotFoundDoesNotTripBreaker(t *testing.T) {
	erm, _ := newTestRecovery()
	erm.RegisterCircuitBreaker("op", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		err := erm.ExecuteWithRetry(context.Background(), "op", func(context.Context) error {
			return models.ErrCommodityNotFound
		})
		assert.ErrorIs(t, err, models.ErrCommodityNotFound)
	}
	assert.Equal(t, Closed, erm.GetCircuitBreakerStatus()["op"])
}

func TestCalculateDelay(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, base, calculateDelay(base, &RetryPolicy{JitterEnabled: false}))

	for i := 0; i < 20; i++ {
		d := calculateDelay(base, &RetryPolicy{JitterEnabled: true})
		assert.GreaterOrEqual(t, d, 87*time.Millisecond)
		assert.LessOrEqual(t, d, 113*time.Millisecond)
	}
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
