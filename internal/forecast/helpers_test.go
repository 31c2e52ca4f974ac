package forecast

import (
	"math"
	"time"

	"github.com/irfndi/commodity-forecast/internal/models"
)

var baseDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func makeSeries(values ...float64) []models.DataPoint {
	series := make([]models.DataPoint, len(values))
	for i, v := range values {
		series[i] = models.DataPoint{Date: baseDate.AddDate(0, 0, i), Value: v}
	}
	return series
}

func linearValues(n int, start, step float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + step*float64(i)
	}
	return values
}

func constantValues(n int, v float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

// noisyValues is a deterministic pseudo-random walk-free series around level.
func noisyValues(n int, level, amplitude float64) []float64 {
	values := make([]float64, n)
	seed := uint32(2463534242)
	for i := range values {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		u := float64(seed)/float64(math.MaxUint32)*2 - 1
		values[i] = level + amplitude*u
	}
	return values
}

// seasonalValues repeats a weekly pattern on top of a slow trend.
func seasonalValues(n int) []float64 {
	pattern := []float64{1.00, 1.02, 1.05, 1.03, 0.98, 0.95, 0.97}
	values := make([]float64, n)
	for i := range values {
		values[i] = (100 + 0.2*float64(i)) * pattern[i%len(pattern)]
	}
	return values
}
