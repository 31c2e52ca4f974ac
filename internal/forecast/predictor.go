package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/irfndi/commodity-forecast/internal/models"
)

// MinPredictionPoints is the shortest series the ensemble predictor accepts.
const MinPredictionPoints = 7

const (
	boundsZScore       = 1.96
	optionalModelShare = 0.15
	confidenceFloor    = 25
	confidenceCeiling  = 85
	directionThreshold = 1.0 // percent
	positionWindow     = 30
	momentumPeriod     = 7
)

// ErrInsufficientData is matched by every InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// ErrInvalidHorizon reports a forecast horizon below one day.
var ErrInvalidHorizon = errors.New("horizon must be at least 1 day")

// InsufficientDataError reports a series too short for the requested computation.
type InsufficientDataError struct {
	Required int
	Actual   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d points, got %d", e.Required, e.Actual)
}

// Is makes errors.Is(err, ErrInsufficientData) true.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// PredictorConfig selects the optional models of the ensemble.
type PredictorConfig struct {
	ATRPeriod           int
	IncludeARIMA        bool
	AutoARIMA           bool
	ARIMAOrder          models.ARIMAOrder
	IncludeHoltWinters  bool
	OptimizeHoltWinters bool
	HoltWinters         models.HoltWintersParams
}

// DefaultPredictorConfig runs the SMA, EMA and linear regression models only.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		ATRPeriod:           DefaultATRPeriod,
		AutoARIMA:           true,
		ARIMAOrder:          DefaultARIMAOrder,
		OptimizeHoltWinters: true,
		HoltWinters:         DefaultHoltWintersParams(),
	}
}

// ModelWeights are the normalized ensemble weights; they sum to 1.
type ModelWeights struct {
	SMA              float64 `json:"sma"`
	EMA              float64 `json:"ema"`
	LinearRegression float64 `json:"linear_regression"`
	ARIMA            float64 `json:"arima"`
	HoltWinters      float64 `json:"holt_winters"`
}

// CalculateModelWeights adapts the base weights to trend quality and volatility.
func CalculateModelWeights(trend models.TrendAnalysis, vol models.VolatilityResult, withARIMA, withHoltWinters bool) ModelWeights {
	w := ModelWeights{SMA: 0.25, EMA: 0.35, LinearRegression: 0.40}

	switch r2 := trend.MediumTerm.RSquared; {
	case r2 > 0.7:
		w = ModelWeights{SMA: 0.20, EMA: 0.30, LinearRegression: 0.50}
	case r2 < 0.3:
		w = ModelWeights{SMA: 0.35, EMA: 0.45, LinearRegression: 0.20}
	}

	switch vol.VolatilityLevel {
	case models.VolatilityHigh:
		w.EMA += 0.10
		w.LinearRegression -= 0.10
	case models.VolatilityLow:
		w.LinearRegression += 0.05
		w.SMA -= 0.05
	}

	if withARIMA {
		w.ARIMA = optionalModelShare
	}
	if withHoltWinters {
		w.HoltWinters = optionalModelShare
	}

	total := w.SMA + w.EMA + w.LinearRegression + w.ARIMA + w.HoltWinters
	w.SMA /= total
	w.EMA /= total
	w.LinearRegression /= total
	w.ARIMA /= total
	w.HoltWinters /= total
	return w
}

// CalculatePredictionBounds returns the 95% band around value for a horizon of
// daysAhead days. The lower bound never goes below zero.
func CalculatePredictionBounds(value, stdDev float64, daysAhead int) models.PredictionBounds {
	if daysAhead < 1 {
		daysAhead = 1
	}
	margin := boundsZScore * math.Abs(stdDev) * math.Sqrt(float64(daysAhead))
	return models.PredictionBounds{
		Lower: math.Max(0, value-margin),
		Upper: value + margin,
	}
}

// PredictPrice forecasts the price horizonDays ahead with the default configuration.
func PredictPrice(series []models.DataPoint, horizonDays int) (models.PredictionResult, error) {
	return PredictPriceWithConfig(series, horizonDays, DefaultPredictorConfig())
}

// PredictPriceWithConfig runs the full ensemble pipeline on a copy of series.
func PredictPriceWithConfig(series []models.DataPoint, horizonDays int, cfg PredictorConfig) (models.PredictionResult, error) {
	if len(series) < MinPredictionPoints {
		return models.PredictionResult{}, &InsufficientDataError{Required: MinPredictionPoints, Actual: len(series)}
	}
	if horizonDays < 1 {
		return models.PredictionResult{}, fmt.Errorf("%w, got %d", ErrInvalidHorizon, horizonDays)
	}

	sorted := SortSeries(series)
	values := SeriesValues(sorted)
	current := values[len(values)-1]

	vol := analyzeValues(values, cfg.ATRPeriod)
	trend := AnalyzeTrends(values)

	lrWindow := tail(values, mediumTrendWindow)
	mp := models.ModelPredictions{
		SMA:              ProjectPriceWithSMA(values, horizonDays),
		EMA:              ProjectPriceWithEMA(values, horizonDays, shortMAPeriod, longMAPeriod),
		LinearRegression: ProjectPrice(LinearRegression(lrWindow), len(lrWindow), current, horizonDays),
	}
	preds := []float64{mp.SMA, mp.EMA, mp.LinearRegression}

	if cfg.IncludeARIMA {
		if v, ok := arimaPoint(values, horizonDays, cfg); ok {
			mp.ARIMA = &v
			preds = append(preds, v)
		}
	}
	if cfg.IncludeHoltWinters {
		if v, ok := holtWintersPoint(values, horizonDays, cfg); ok {
			mp.HoltWinters = &v
			preds = append(preds, v)
		}
	}

	w := CalculateModelWeights(trend, vol, mp.ARIMA != nil, mp.HoltWinters != nil)
	ensemble := w.SMA*mp.SMA + w.EMA*mp.EMA + w.LinearRegression*mp.LinearRegression
	if mp.ARIMA != nil {
		ensemble += w.ARIMA * *mp.ARIMA
	}
	if mp.HoltWinters != nil {
		ensemble += w.HoltWinters * *mp.HoltWinters
	}
	ensemble = clamp(ensemble, current*0.5, current*2.0)
	mp.Ensemble = ensemble

	change := ensemble - current
	changePercent := SafeDivide(change, current, 0) * 100

	return models.PredictionResult{
		CurrentPrice:       current,
		PredictedPrice:     ensemble,
		PriceChange:        change,
		PriceChangePercent: changePercent,
		Direction:          directionFromChange(changePercent),
		Confidence:         predictionConfidence(preds, trend, vol, len(values)),
		Horizon:            horizonDays,
		TargetDate:         sorted[len(sorted)-1].Date.AddDate(0, 0, horizonDays),
		Factors:            predictionFactors(values, trend, vol),
		Bounds:             CalculatePredictionBounds(ensemble, vol.StandardDeviation, horizonDays),
		Models:             mp,
	}, nil
}

func arimaPoint(values []float64, horizon int, cfg PredictorConfig) (float64, bool) {
	var res models.ARIMAResult
	if cfg.AutoARIMA {
		res = AutoARIMA(values, horizon)
	} else {
		res = PredictARIMA(values, horizon, cfg.ARIMAOrder)
	}
	if !res.Usable() || len(res.Predictions) < horizon {
		return 0, false
	}
	v := res.Predictions[horizon-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func holtWintersPoint(values []float64, horizon int, cfg PredictorConfig) (float64, bool) {
	var preds []float64
	if cfg.OptimizeHoltWinters {
		_, preds = AutoHoltWinters(values, horizon, cfg.HoltWinters.SeasonalPeriod)
	} else {
		_, preds = PredictHoltWinters(values, horizon, cfg.HoltWinters)
	}
	if len(preds) < horizon {
		return 0, false
	}
	v := preds[horizon-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func directionFromChange(changePercent float64) models.TrendDirection {
	switch {
	case changePercent > directionThreshold:
		return models.TrendUp
	case changePercent < -directionThreshold:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

// predictionConfidence starts from model agreement and scales it by trend
// confidence, volatility and history length.
func predictionConfidence(preds []float64, trend models.TrendAnalysis, vol models.VolatilityResult, points int) int {
	confidence := math.Max(30, 100-10*CoefficientOfVariation(preds))
	confidence *= 0.7 + 0.3*(trend.Confidence/100)
	confidence *= CalculateConfidenceAdjustment(vol.VolatilityLevel)
	confidence *= 0.8 + 0.2*math.Min(1, float64(points)/60)
	return int(math.Round(clamp(confidence, confidenceFloor, confidenceCeiling)))
}

func predictionFactors(values []float64, trend models.TrendAnalysis, vol models.VolatilityResult) []models.PredictionFactor {
	factors := make([]models.PredictionFactor, 0, 4)

	roc := CalculateROC(values, momentumPeriod)
	momentum := models.PredictionFactor{Name: "7-day momentum", Impact: models.ImpactNeutral, Weight: math.Min(1, math.Abs(roc)/10)}
	switch {
	case roc > 2:
		momentum.Impact = models.ImpactPositive
	case roc < -2:
		momentum.Impact = models.ImpactNegative
	}
	factors = append(factors, momentum)

	medium := models.PredictionFactor{Name: "Medium-term trend", Impact: models.ImpactNeutral, Weight: trend.MediumTerm.RSquared}
	switch trend.MediumTerm.Trend {
	case models.TrendUp:
		medium.Impact = models.ImpactPositive
	case models.TrendDown:
		medium.Impact = models.ImpactNegative
	}
	factors = append(factors, medium)

	volatility := models.PredictionFactor{Name: "Market volatility", Impact: models.ImpactNeutral, Weight: math.Min(1, vol.CoefficientOfVariation/10)}
	switch vol.VolatilityLevel {
	case models.VolatilityLow:
		volatility.Impact = models.ImpactPositive
	case models.VolatilityHigh:
		volatility.Impact = models.ImpactNegative
	}
	factors = append(factors, volatility)

	window := tail(values, positionWindow)
	lo, hi := minMax(window)
	position := SafeDivide(values[len(values)-1]-lo, hi-lo, 0.5)
	pos := models.PredictionFactor{Name: "30-day price position", Impact: models.ImpactNeutral, Weight: math.Abs(position-0.5) * 2}
	switch {
	case position > 0.8:
		pos.Impact = models.ImpactNegative
	case position < 0.2:
		pos.Impact = models.ImpactPositive
	}
	factors = append(factors, pos)

	return factors
}

// PredictMultipleHorizons runs PredictPrice for every horizon and keeps the
// ones that succeed. Non-positive horizons fail individually.
func PredictMultipleHorizons(series []models.DataPoint, horizons []int) map[int]models.PredictionResult {
	results, _ := PredictMultipleHorizonsWithConfig(series, horizons, DefaultPredictorConfig())
	return results
}

// PredictMultipleHorizonsWithConfig is PredictMultipleHorizons with an explicit
// configuration; failed horizons are reported separately instead of aborting.
func PredictMultipleHorizonsWithConfig(series []models.DataPoint, horizons []int, cfg PredictorConfig) (map[int]models.PredictionResult, map[int]error) {
	results := make(map[int]models.PredictionResult, len(horizons))
	var failures map[int]error
	for _, h := range horizons {
		res, err := PredictPriceWithConfig(series, h, cfg)
		if err != nil {
			if failures == nil {
				failures = make(map[int]error)
			}
			failures[h] = err
			continue
		}
		results[h] = res
	}
	return results, failures
}
