package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/irfndi/commodity-forecast/internal/forecast"
	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/irfndi/commodity-forecast/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	// OpPriceHistory names the price-history read policy and breaker.
	OpPriceHistory = "price_history"
)

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// ErrorRecoveryManager retries transient failures and, when a breaker is
// registered for the operation, stops calling a dependency that keeps failing.
type ErrorRecoveryManager struct {
	logger          *logrus.Logger
	circuitBreakers map[string]*CircuitBreaker
	retryPolicies   map[string]*RetryPolicy
	mu              sync.RWMutex
	sleep           func(ctx context.Context, d time.Duration) error
}

// NewErrorRecoveryManager creates a new error recovery manager
func NewErrorRecoveryManager(logger *logrus.Logger) *ErrorRecoveryManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &ErrorRecoveryManager{
		logger:          logger,
		circuitBreakers: make(map[string]*CircuitBreaker),
		retryPolicies:   make(map[string]*RetryPolicy),
		sleep:           sleepContext,
	}
}

// RegisterCircuitBreaker registers a circuit breaker for a specific operation
func (erm *ErrorRecoveryManager) RegisterCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	erm.mu.Lock()
	defer erm.mu.Unlock()

	cb := NewCircuitBreaker(name, config, erm.logger)
	erm.circuitBreakers[name] = cb
	return cb
}

// RegisterRetryPolicy registers a retry policy for a specific operation
func (erm *ErrorRecoveryManager) RegisterRetryPolicy(name string, policy *RetryPolicy) {
	erm.mu.Lock()
	defer erm.mu.Unlock()

	erm.retryPolicies[name] = policy
}

// GetCircuitBreakerStatus returns the state of every registered breaker
func (erm *ErrorRecoveryManager) GetCircuitBreakerStatus() map[string]CircuitBreakerState {
	erm.mu.RLock()
	defer erm.mu.RUnlock()

	status := make(map[string]CircuitBreakerState, len(erm.circuitBreakers))
	for name, cb := range erm.circuitBreakers {
		status[name] = cb.GetState()
	}
	return status
}

// ExecuteWithRetry runs operation under the named policy. Permanent errors
// (missing series, short series, validation, cancellation, open circuit) are
// returned at once and never count against the breaker.
func (erm *ErrorRecoveryManager) ExecuteWithRetry(ctx context.Context, operationName string, operation func(context.Context) error) error {
	start := time.Now()

	erm.mu.RLock()
	retryPolicy := erm.retryPolicies[operationName]
	cb := erm.circuitBreakers[operationName]
	erm.mu.RUnlock()

	if retryPolicy == nil {
		retryPolicy = DefaultRetryPolicies()["default"]
	}

	run := operation
	if cb != nil {
		run = func(ctx context.Context) error {
			var permanent error
			err := cb.Execute(ctx, func(ctx context.Context) error {
				err := operation(ctx)
				if isPermanent(err) {
					permanent = err
					return nil
				}
				return err
			})
			if permanent != nil {
				return permanent
			}
			return err
		}
	}

	delay := retryPolicy.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= retryPolicy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := run(ctx)
		if err == nil {
			if attempt > 0 {
				erm.logger.WithFields(logrus.Fields{
					"operation": operationName,
					"attempts":  attempt + 1,
					"duration":  time.Since(start).String(),
				}).Info("Operation recovered after retry")
			}
			return nil
		}

		lastErr = err
		if isPermanent(err) || attempt == retryPolicy.MaxRetries {
			break
		}

		erm.logger.WithFields(logrus.Fields{
			"operation": operationName,
			"attempt":   attempt + 1,
			"error":     err.Error(),
			"delay":     delay.String(),
		}).Warn("Operation failed, retrying")

		if err := erm.sleep(ctx, calculateDelay(delay, retryPolicy)); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * retryPolicy.BackoffFactor)
		if delay > retryPolicy.MaxDelay {
			delay = retryPolicy.MaxDelay
		}
	}

	if !isPermanent(lastErr) {
		erm.logger.WithFields(logrus.Fields{
			"operation": operationName,
			"duration":  time.Since(start).String(),
			"error":     lastErr.Error(),
		}).Error("Operation failed after all retries")
	}
	return lastErr
}

func isPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, models.ErrCommodityNotFound) ||
		errors.Is(err, forecast.ErrInsufficientData) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		utils.IsValidationError(err)
}

// calculateDelay adds up to ±12.5% jitter when enabled.
func calculateDelay(baseDelay time.Duration, policy *RetryPolicy) time.Duration {
	if !policy.JitterEnabled || baseDelay <= 0 {
		return baseDelay
	}
	jitter := time.Duration(float64(baseDelay) * 0.25 * (rand.Float64() - 0.5))
	return baseDelay + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DefaultRetryPolicies returns default retry policies for common operations
func DefaultRetryPolicies() map[string]*RetryPolicy {
	return map[string]*RetryPolicy{
		"default": {
			MaxRetries:    3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		OpPriceHistory: {
			MaxRetries:    3,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 1.5,
			JitterEnabled: true,
		},
	}
}
