package forecast

import (
	"math"

	"github.com/irfndi/commodity-forecast/internal/models"
)

// DefaultATRPeriod is the number of daily changes averaged by AverageTrueRange.
const DefaultATRPeriod = 14

const (
	lowVolatilityCV    = 3.0
	mediumVolatilityCV = 8.0
)

// AnalyzeVolatility computes dispersion statistics over the whole series.
// A non-positive atrPeriod falls back to DefaultATRPeriod.
func AnalyzeVolatility(series []models.DataPoint, atrPeriod int) models.VolatilityResult {
	values := SeriesValues(SortSeries(series))
	return analyzeValues(values, atrPeriod)
}

func analyzeValues(values []float64, atrPeriod int) models.VolatilityResult {
	if atrPeriod <= 0 {
		atrPeriod = DefaultATRPeriod
	}

	cv := CoefficientOfVariation(values)
	lo, hi := minMax(values)
	spread := hi - lo

	return models.VolatilityResult{
		StandardDeviation:      StdDev(values),
		CoefficientOfVariation: cv,
		AverageTrueRange:       AverageTrueRange(values, atrPeriod),
		VolatilityLevel:        DetermineVolatilityLevel(cv),
		PriceRange: models.PriceRange{
			Min:          lo,
			Max:          hi,
			Range:        spread,
			RangePercent: SafeDivide(spread, lo, 0) * 100,
		},
	}
}

// AverageTrueRange is the mean absolute day-over-day change over the last period changes.
func AverageTrueRange(values []float64, period int) float64 {
	if len(values) < 2 {
		return 0
	}
	if period <= 0 {
		period = DefaultATRPeriod
	}
	start := len(values) - period
	if start < 1 {
		start = 1
	}

	var sum float64
	for i := start; i < len(values); i++ {
		sum += math.Abs(values[i] - values[i-1])
	}
	return sum / float64(len(values)-start)
}

// DetermineVolatilityLevel classifies a coefficient of variation (percent).
func DetermineVolatilityLevel(cv float64) models.VolatilityLevel {
	switch {
	case cv < lowVolatilityCV:
		return models.VolatilityLow
	case cv < mediumVolatilityCV:
		return models.VolatilityMedium
	default:
		return models.VolatilityHigh
	}
}

// CalculateConfidenceAdjustment returns the confidence multiplier for a volatility level.
func CalculateConfidenceAdjustment(level models.VolatilityLevel) float64 {
	switch level {
	case models.VolatilityLow:
		return 1.0
	case models.VolatilityMedium:
		return 0.85
	case models.VolatilityHigh:
		return 0.65
	default:
		return 0.85
	}
}
