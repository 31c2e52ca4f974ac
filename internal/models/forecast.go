package models

import (
	"encoding/json"
	"math"
	"time"
)

// DataPoint is a single daily price observation.
type DataPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// TrendDirection is the direction of a price movement.
type TrendDirection string

const (
	TrendUp     TrendDirection = "UP"
	TrendDown   TrendDirection = "DOWN"
	TrendStable TrendDirection = "STABLE"
)

// VolatilityLevel classifies the coefficient of variation of a series.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "LOW"
	VolatilityMedium VolatilityLevel = "MEDIUM"
	VolatilityHigh   VolatilityLevel = "HIGH"
)

// PriceRange describes the spread of prices inside an analysis window.
type PriceRange struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Range        float64 `json:"range"`
	RangePercent float64 `json:"range_percent"`
}

// VolatilityResult holds dispersion statistics for a price series.
type VolatilityResult struct {
	StandardDeviation      float64         `json:"standard_deviation"`
	CoefficientOfVariation float64         `json:"coefficient_of_variation"` // percent
	AverageTrueRange       float64         `json:"average_true_range"`
	VolatilityLevel        VolatilityLevel `json:"volatility_level"`
	PriceRange             PriceRange      `json:"price_range"`
}

// LinearRegressionResult is an ordinary least squares fit over index-as-x.
type LinearRegressionResult struct {
	Slope          float64        `json:"slope"`
	Intercept      float64        `json:"intercept"`
	RSquared       float64        `json:"r_squared"` // 0-1
	Trend          TrendDirection `json:"trend"`
	PredictedPrice float64        `json:"predicted_price"`
}

// TrendAnalysis merges regressions over short, medium and long windows.
type TrendAnalysis struct {
	ShortTerm    LinearRegressionResult `json:"short_term"`
	MediumTerm   LinearRegressionResult `json:"medium_term"`
	LongTerm     LinearRegressionResult `json:"long_term"`
	OverallTrend TrendDirection         `json:"overall_trend"`
	Confidence   float64                `json:"confidence"` // 0-100
}

// ARIMAOrder holds the (p, d, q) orders of an ARIMA model.
type ARIMAOrder struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

// ARIMAResult is the outcome of fitting (and optionally forecasting with) an ARIMA model.
// An infinite AIC marks an order that could not be fitted.
type ARIMAResult struct {
	Predictions []float64  `json:"predictions"`
	Residuals   []float64  `json:"residuals"`
	Params      ARIMAOrder `json:"params"`
	AIC         float64    `json:"aic"`
}

// Usable reports whether the model could be fitted.
func (r ARIMAResult) Usable() bool {
	return !math.IsInf(r.AIC, 0) && !math.IsNaN(r.AIC)
}

// MarshalJSON encodes a non-finite AIC as null; encoding/json rejects infinities.
func (r ARIMAResult) MarshalJSON() ([]byte, error) {
	type alias ARIMAResult
	out := struct {
		alias
		AIC *float64 `json:"aic"`
	}{alias: alias(r)}
	if r.Usable() {
		aic := r.AIC
		out.AIC = &aic
	}
	return json.Marshal(out)
}

// HoltWintersParams are the smoothing constants of a triple exponential smoothing model.
type HoltWintersParams struct {
	Alpha          float64 `json:"alpha"`
	Beta           float64 `json:"beta"`
	Gamma          float64 `json:"gamma"`
	SeasonalPeriod int     `json:"seasonal_period"`
}

// HoltWintersResult is the final state of a Holt-Winters fit.
type HoltWintersResult struct {
	Level    float64           `json:"level"`
	Trend    float64           `json:"trend"`
	Seasonal []float64         `json:"seasonal"`
	Fitted   []float64         `json:"fitted"`
	Params   HoltWintersParams `json:"params"`
	MSE      float64           `json:"mse"`
}

// FactorImpact describes how a factor leans the forecast.
type FactorImpact string

const (
	ImpactPositive FactorImpact = "positive"
	ImpactNegative FactorImpact = "negative"
	ImpactNeutral  FactorImpact = "neutral"
)

// PredictionFactor is a human readable explanation attached to a prediction.
type PredictionFactor struct {
	Name   string       `json:"name"`
	Impact FactorImpact `json:"impact"`
	Weight float64      `json:"weight"`
}

// PredictionBounds is the confidence interval around the ensemble value.
type PredictionBounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ModelPredictions exposes every individual model forecast.
type ModelPredictions struct {
	SMA              float64  `json:"sma"`
	EMA              float64  `json:"ema"`
	LinearRegression float64  `json:"linear_regression"`
	Ensemble         float64  `json:"ensemble"`
	ARIMA            *float64 `json:"arima,omitempty"`
	HoltWinters      *float64 `json:"holt_winters,omitempty"`
}

// PredictionResult is the output of the ensemble predictor for one horizon.
type PredictionResult struct {
	CurrentPrice       float64            `json:"current_price"`
	PredictedPrice     float64            `json:"predicted_price"`
	PriceChange        float64            `json:"price_change"`
	PriceChangePercent float64            `json:"price_change_percent"`
	Direction          TrendDirection     `json:"direction"`
	Confidence         int                `json:"confidence"` // 25-85
	Horizon            int                `json:"horizon"`    // days
	TargetDate         time.Time          `json:"target_date"`
	Factors            []PredictionFactor `json:"factors"`
	Bounds             PredictionBounds   `json:"bounds"`
	Models             ModelPredictions   `json:"models"`
}

// AnomalyType identifies which detection rule produced a finding.
type AnomalyType string

const (
	AnomalyPriceSpike     AnomalyType = "PRICE_SPIKE"
	AnomalyPriceDrop      AnomalyType = "PRICE_DROP"
	AnomalyHighVolatility AnomalyType = "HIGH_VOLATILITY"
	AnomalyHistoricalHigh AnomalyType = "HISTORICAL_HIGH"
	AnomalyHistoricalLow  AnomalyType = "HISTORICAL_LOW"
)

// Severity ranks anomalies; LOW < MEDIUM < HIGH.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Rank returns the ordinal of the severity, 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// ExpectedRange is the band a value was expected to fall into.
type ExpectedRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DetectedAnomaly is a single finding of the anomaly detector.
type DetectedAnomaly struct {
	Type             AnomalyType   `json:"type"`
	Severity         Severity      `json:"severity"`
	Description      string        `json:"description"`
	DetectedValue    float64       `json:"detected_value"`
	ExpectedRange    ExpectedRange `json:"expected_range"`
	DeviationPercent float64       `json:"deviation_percent"`
}
