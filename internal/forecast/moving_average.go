package forecast

import (
	"math"

	"github.com/irfndi/commodity-forecast/internal/models"
)

const (
	// DefaultTrendThreshold is the relative MA gap below which a trend is STABLE.
	DefaultTrendThreshold = 0.02

	shortMAPeriod = 7
	longMAPeriod  = 21
)

// MATrend is the trend implied by a short/long moving average pair.
type MATrend struct {
	Trend    models.TrendDirection `json:"trend"`
	Strength float64               `json:"strength"` // 0-100
}

// CalculateSMA returns the mean of the last min(period, len) values.
func CalculateSMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	return Mean(tail(values, period))
}

// CalculateEMA seeds with the SMA of the first min(period, len) values and rolls
// forward with k = 2/(period+1).
func CalculateEMA(values []float64, period int) float64 {
	switch len(values) {
	case 0:
		return 0
	case 1:
		return values[0]
	}
	if period <= 0 {
		period = len(values)
	}

	seed := period
	if seed > len(values) {
		seed = len(values)
	}
	k := 2.0 / float64(period+1)
	ema := Mean(values[:seed])
	for _, v := range values[seed:] {
		ema = (v-ema)*k + ema
	}
	return ema
}

// DetermineTrend compares a short and a long moving average.
func DetermineTrend(shortMA, longMA, threshold float64) MATrend {
	if threshold <= 0 {
		threshold = DefaultTrendThreshold
	}
	if longMA == 0 {
		return MATrend{Trend: models.TrendStable}
	}

	diff := (shortMA - longMA) / longMA
	if math.Abs(diff) < threshold {
		return MATrend{
			Trend:    models.TrendStable,
			Strength: math.Abs(diff) / threshold * 100,
		}
	}

	trend := models.TrendUp
	if diff < 0 {
		trend = models.TrendDown
	}
	return MATrend{
		Trend:    trend,
		Strength: math.Min(math.Abs(diff)*100, 100),
	}
}

// ProjectPriceWithEMA extrapolates the short/long EMA momentum daysAhead days.
// The projection never drops below half the current price.
func ProjectPriceWithEMA(values []float64, daysAhead, shortPeriod, longPeriod int) float64 {
	if len(values) == 0 {
		return 0
	}
	if shortPeriod <= 0 {
		shortPeriod = shortMAPeriod
	}
	if longPeriod <= 0 {
		longPeriod = longMAPeriod
	}

	current := values[len(values)-1]
	momentum := (CalculateEMA(values, shortPeriod) - CalculateEMA(values, longPeriod)) / float64(longPeriod)
	projected := current + momentum*float64(daysAhead)
	return math.Max(projected, current*0.5)
}

// ProjectPriceWithSMA extrapolates the SMA7/SMA21 crossover momentum, clamped
// to [0.7, 1.3] times the current price.
func ProjectPriceWithSMA(values []float64, daysAhead int) float64 {
	if len(values) == 0 {
		return 0
	}
	current := values[len(values)-1]
	momentum := (CalculateSMA(values, shortMAPeriod) - CalculateSMA(values, longMAPeriod)) / float64(longMAPeriod)
	projected := current + momentum*float64(daysAhead)
	return clamp(projected, current*0.7, current*1.3)
}
