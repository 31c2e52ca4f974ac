package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/commodity-forecast/internal/services"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusDisabled  = "disabled"
	healthTimeout   = 3 * time.Second
	unhealthyPrefix = "unhealthy: "
)

// HealthChecker is anything that can report its own connectivity
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CircuitStatusProvider reports the state of every registered circuit breaker
type CircuitStatusProvider interface {
	GetCircuitBreakerStatus() map[string]services.CircuitBreakerState
}

// SystemInfoProvider reports sampled resource usage
type SystemInfoProvider interface {
	GetSystemInfo() services.SystemSnapshot
}

// HealthHandler reports dependency health
type HealthHandler struct {
	db        HealthChecker
	redis     HealthChecker
	circuits  CircuitStatusProvider
	system    SystemInfoProvider
	version   string
	startTime time.Time
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status          string                   `json:"status"`
	Timestamp       time.Time                `json:"timestamp"`
	Version         string                   `json:"version"`
	Uptime          string                   `json:"uptime"`
	Services        map[string]string        `json:"services"`
	CircuitBreakers map[string]string        `json:"circuit_breakers,omitempty"`
	System          *services.SystemSnapshot `json:"system,omitempty"`
}

// NewHealthHandler creates a health handler. A nil redis checker means the
// cache is disabled, which does not degrade the service.
func NewHealthHandler(db, redis HealthChecker, circuits CircuitStatusProvider, system SystemInfoProvider, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		circuits:  circuits,
		system:    system,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthCheck reports database and Redis connectivity; 503 when degraded
// @Summary Service health
// @Tags health
// @Produce json
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Services: map[string]string{
			"database": checkDependency(ctx, h.db, false),
			"redis":    checkDependency(ctx, h.redis, true),
		},
	}
	for _, status := range response.Services {
		if status != statusHealthy && status != statusDisabled {
			response.Status = statusDegraded
		}
	}

	if h.circuits != nil {
		response.CircuitBreakers = make(map[string]string)
		for name, state := range h.circuits.GetCircuitBreakerStatus() {
			response.CircuitBreakers[name] = state.String()
			if state == services.Open {
				response.Status = statusDegraded
			}
		}
	}
	if h.system != nil {
		snapshot := h.system.GetSystemInfo()
		response.System = &snapshot
	}

	code := http.StatusOK
	if response.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// LivenessCheck only proves the process is serving requests
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func checkDependency(ctx context.Context, checker HealthChecker, optional bool) string {
	if checker == nil {
		if optional {
			return statusDisabled
		}
		return unhealthyPrefix + "not configured"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return unhealthyPrefix + err.Error()
	}
	return statusHealthy
}
