package forecast

import (
	"github.com/irfndi/commodity-forecast/internal/models"
)

const (
	slopeTrendThreshold = 0.001

	shortTrendWindow  = 14
	mediumTrendWindow = 30
	longTrendWindow   = 90
)

// LinearRegression fits value = intercept + slope*index by ordinary least squares.
// PredictedPrice is the one-day-ahead projection.
func LinearRegression(values []float64) models.LinearRegressionResult {
	n := len(values)
	if n < 2 {
		var intercept float64
		if n == 1 {
			intercept = values[0]
		}
		return models.LinearRegressionResult{
			Intercept:      intercept,
			Trend:          models.TrendStable,
			PredictedPrice: intercept,
		}
	}

	xMean := float64(n-1) / 2
	yMean := Mean(values)

	var sxy, sxx float64
	for i, y := range values {
		dx := float64(i) - xMean
		sxy += dx * (y - yMean)
		sxx += dx * dx
	}
	slope := SafeDivide(sxy, sxx, 0)
	intercept := yMean - slope*xMean

	var ssTot, ssRes float64
	for i, y := range values {
		fitted := intercept + slope*float64(i)
		ssRes += (y - fitted) * (y - fitted)
		ssTot += (y - yMean) * (y - yMean)
	}
	rSquared := clamp(1-SafeDivide(ssRes, ssTot, 1), 0, 1)

	current := values[n-1]
	result := models.LinearRegressionResult{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rSquared,
		Trend:     DetermineTrendFromSlope(slope, current),
	}
	result.PredictedPrice = ProjectPrice(result, n, current, 1)
	return result
}

// ProjectPrice extends the fitted line to index n-1+daysAhead and clamps the
// result to [0.5, 2.0] times the current price.
func ProjectPrice(reg models.LinearRegressionResult, n int, current float64, daysAhead int) float64 {
	x := float64(n - 1 + daysAhead)
	projected := reg.Intercept + reg.Slope*x
	return clamp(projected, current*0.5, current*2.0)
}

// DetermineTrendFromSlope classifies a slope relative to the current price.
func DetermineTrendFromSlope(slope, currentPrice float64) models.TrendDirection {
	relative := SafeDivide(slope, currentPrice, 0)
	switch {
	case relative > slopeTrendThreshold:
		return models.TrendUp
	case relative < -slopeTrendThreshold:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

// AnalyzeTrends regresses the last 14, 30 and 90 values and merges the three
// trend votes weighted by R².
func AnalyzeTrends(values []float64) models.TrendAnalysis {
	short := LinearRegression(tail(values, shortTrendWindow))
	medium := LinearRegression(tail(values, mediumTrendWindow))
	long := LinearRegression(tail(values, longTrendWindow))

	scores := map[models.TrendDirection]float64{}
	scores[short.Trend] += short.RSquared * 0.5
	scores[medium.Trend] += medium.RSquared * 0.3
	scores[long.Trend] += long.RSquared * 0.2

	overall := models.TrendStable
	best := scores[models.TrendStable]
	for _, dir := range []models.TrendDirection{models.TrendUp, models.TrendDown} {
		if scores[dir] > best {
			overall, best = dir, scores[dir]
		}
	}

	agreeing := 0
	for _, r := range []models.LinearRegressionResult{short, medium, long} {
		if r.Trend == overall {
			agreeing++
		}
	}
	agreement := float64(agreeing) / 3
	meanR2 := (short.RSquared + medium.RSquared + long.RSquared) / 3

	return models.TrendAnalysis{
		ShortTerm:    short,
		MediumTerm:   medium,
		LongTerm:     long,
		OverallTrend: overall,
		Confidence:   clamp(agreement*50+meanR2*50, 0, 100),
	}
}

// CalculateROC returns the percentage rate of change over period values.
func CalculateROC(values []float64, period int) float64 {
	if period <= 0 || period > len(values)-1 {
		return 0
	}
	current := values[len(values)-1]
	previous := values[len(values)-1-period]
	return SafeDivide(current-previous, previous, 0) * 100
}
