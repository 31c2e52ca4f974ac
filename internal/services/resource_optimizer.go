package services

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// ResourceOptimizerConfig bounds the batch fan-out limit.
type ResourceOptimizerConfig struct {
	MinWorkers      int
	MaxWorkers      int
	CPUThreshold    float64 // percent
	MemoryThreshold float64 // percent
}

// SystemSnapshot is the last sampled resource usage.
type SystemSnapshot struct {
	CPUCores        int       `json:"cpu_cores"`
	MemoryGB        float64   `json:"memory_gb"`
	CPUUsage        float64   `json:"cpu_usage"`
	MemoryUsage     float64   `json:"memory_usage"`
	Goroutines      int       `json:"goroutines"`
	OptimalWorkers  int       `json:"optimal_workers"`
	LastMeasurement time.Time `json:"last_measurement"`
}

// ResourceOptimizer sizes the forecast worker pool from CPU cores, total
// memory and current load. Forecasting is CPU bound, so the base is one
// worker per core.
type ResourceOptimizer struct {
	mu                 sync.RWMutex
	config             ResourceOptimizerConfig
	cpuCores           int
	memoryGB           float64
	currentCPUUsage    float64
	currentMemoryUsage float64
	lastMeasurement    time.Time
	optimalWorkers     int
	logger             *logrus.Logger
}

// NewResourceOptimizer creates a new resource optimizer
func NewResourceOptimizer(config ResourceOptimizerConfig, logger *logrus.Logger) *ResourceOptimizer {
	if config.MinWorkers <= 0 {
		config.MinWorkers = 1
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = max(config.MinWorkers, 8)
	}
	if config.CPUThreshold <= 0 {
		config.CPUThreshold = 80.0
	}
	if config.MemoryThreshold <= 0 {
		config.MemoryThreshold = 85.0
	}
	if logger == nil {
		logger = logrus.New()
	}

	ro := &ResourceOptimizer{
		config:   config,
		cpuCores: runtime.NumCPU(),
		logger:   logger,
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		ro.memoryGB = float64(memInfo.Total) / (1024 * 1024 * 1024)
	} else {
		ro.logger.WithError(err).Warn("Could not get memory info, using default")
		ro.memoryGB = 8.0
	}

	ro.recalculate()

	ro.logger.WithFields(logrus.Fields{
		"cpu_cores":       ro.cpuCores,
		"memory_gb":       fmt.Sprintf("%.1f", ro.memoryGB),
		"optimal_workers": ro.optimalWorkers,
	}).Info("Resource optimizer initialized")

	return ro
}

// optimalWorkers derives the worker count from the machine and its load.
func optimalWorkers(cores int, memoryGB, cpuUsage, memoryUsage float64, config ResourceOptimizerConfig) int {
	base := float64(cores)

	switch {
	case memoryGB < 4.0:
		base *= 0.5
	case memoryGB < 8.0:
		base *= 0.75
	}

	switch {
	case cpuUsage > config.CPUThreshold:
		base *= 0.7
	case memoryUsage > config.MemoryThreshold:
		base *= 0.8
	}

	return min(max(int(base), config.MinWorkers), config.MaxWorkers)
}

func (ro *ResourceOptimizer) recalculate() {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	ro.optimalWorkers = optimalWorkers(ro.cpuCores, ro.memoryGB, ro.currentCPUUsage, ro.currentMemoryUsage, ro.config)
}

// BatchConcurrency returns the current fan-out limit for batch forecasts.
func (ro *ResourceOptimizer) BatchConcurrency() int {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return ro.optimalWorkers
}

// UpdateSystemMetrics samples CPU and memory usage and recalculates the limit.
func (ro *ResourceOptimizer) UpdateSystemMetrics(ctx context.Context) error {
	cpuPercent, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return fmt.Errorf("failed to get CPU usage: %w", err)
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get memory usage: %w", err)
	}

	ro.mu.Lock()
	if len(cpuPercent) > 0 {
		ro.currentCPUUsage = cpuPercent[0]
	}
	ro.currentMemoryUsage = memInfo.UsedPercent
	ro.lastMeasurement = time.Now()
	ro.mu.Unlock()

	ro.recalculate()
	return nil
}

// Run samples the system every interval until ctx is done.
func (ro *ResourceOptimizer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ro.UpdateSystemMetrics(ctx); err != nil && ctx.Err() == nil {
				ro.logger.WithError(err).Warn("Failed to sample system metrics")
			}
		}
	}
}

// GetSystemInfo returns current system information
func (ro *ResourceOptimizer) GetSystemInfo() SystemSnapshot {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	return SystemSnapshot{
		CPUCores:        ro.cpuCores,
		MemoryGB:        ro.memoryGB,
		CPUUsage:        ro.currentCPUUsage,
		MemoryUsage:     ro.currentMemoryUsage,
		Goroutines:      runtime.NumGoroutine(),
		OptimalWorkers:  ro.optimalWorkers,
		LastMeasurement: ro.lastMeasurement,
	}
}
