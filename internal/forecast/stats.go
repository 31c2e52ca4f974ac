// Package forecast implements the price forecasting engine: volatility analysis,
// moving averages, trend regression, ARIMA, Holt-Winters and the ensemble predictor.
//
// Every exported function is a pure transformation of its arguments. Nothing here
// performs I/O or keeps state between calls, so callers may fan out freely.
package forecast

import (
	"math"
	"sort"

	"github.com/irfndi/commodity-forecast/internal/models"
)

// SafeDivide returns num/den, or fallback when the denominator is zero or the
// quotient is not finite.
func SafeDivide(num, den, fallback float64) float64 {
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return fallback
	}
	q := num / den
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return fallback
	}
	return q
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance returns the sample variance (n-1 denominator), 0 for fewer than two values.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values)-1)
}

// StdDev returns the sample standard deviation.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// CoefficientOfVariation returns stddev/mean as a percentage.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return SafeDivide(StdDev(values), Mean(values), 0) * 100
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// tail returns the last n values (all of them when n exceeds the length).
func tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

// SortSeries returns a copy of series ordered ascending by date. The input is left untouched.
func SortSeries(series []models.DataPoint) []models.DataPoint {
	sorted := make([]models.DataPoint, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// SeriesValues extracts the values of an already sorted series.
func SeriesValues(series []models.DataPoint) []float64 {
	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	return values
}
