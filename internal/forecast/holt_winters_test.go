package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/commodity-forecast/internal/models"
)

func TestDefaultHoltWintersParams(t *testing.T) {
	assert.Equal(t, models.HoltWintersParams{Alpha: 0.3, Beta: 0.1, Gamma: 0.2, SeasonalPeriod: 7}, DefaultHoltWintersParams())
}

func TestFitHoltWinters_ShortSeries(t *testing.T) {
	result := FitHoltWinters([]float64{10, 20, 30}, DefaultHoltWintersParams())

	assert.InDelta(t, 20.0, result.Level, 1e-12)
	assert.Equal(t, 0.0, result.Trend)
	assert.Equal(t, 0.0, result.MSE)
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1, 1}, result.Seasonal)
	assert.Len(t, result.Fitted, 3)
}

func TestFitHoltWinters_ZeroParamsUseDefaults(t *testing.T) {
	result := FitHoltWinters(seasonalValues(28), models.HoltWintersParams{})

	assert.Equal(t, DefaultHoltWintersParams(), result.Params)
}

func TestInitialSeasonal_Normalized(t *testing.T) {
	seasonal := initialSeasonal(seasonalValues(35), 7)

	var sum float64
	for _, s := range seasonal {
		sum += s
	}
	assert.InDelta(t, 7.0, sum, 1e-9)
	// peak of the weekly pattern sits on the third day
	assert.Greater(t, seasonal[2], seasonal[5])
}

func TestFitHoltWinters_ConstantSeries(t *testing.T) {
	result := FitHoltWinters(constantValues(30, 50), DefaultHoltWintersParams())

	assert.InDelta(t, 50.0, result.Level, 1e-9)
	assert.InDelta(t, 0.0, result.Trend, 1e-9)
	assert.InDelta(t, 0.0, result.MSE, 1e-9)
	for _, s := range result.Seasonal {
		assert.InDelta(t, 1.0, s, 1e-9)
	}
}

func TestFitHoltWinters_Seasonal(t *testing.T) {
	values := seasonalValues(56)

	result := FitHoltWinters(values, DefaultHoltWintersParams())

	require.Len(t, result.Fitted, 56)
	require.Len(t, result.Seasonal, 7)
	assert.False(t, math.IsNaN(result.MSE))
	assert.GreaterOrEqual(t, result.MSE, 0.0)
	assert.Greater(t, result.Trend, 0.0)
}

func TestForecastHoltWinters_Clamp(t *testing.T) {
	fit := models.HoltWintersResult{
		Level:    100,
		Trend:    40,
		Seasonal: []float64{1, 1},
		Fitted:   make([]float64, 10),
	}

	preds := ForecastHoltWinters(fit, 100, 5)

	require.Len(t, preds, 5)
	assert.InDelta(t, 140.0, preds[0], 1e-12)
	assert.Equal(t, 150.0, preds[4])
	assert.Nil(t, ForecastHoltWinters(fit, 100, 0))
}

func TestForecastHoltWinters_SeasonIndex(t *testing.T) {
	fit := models.HoltWintersResult{
		Level:    100,
		Seasonal: []float64{0.9, 1.0, 1.1},
		Fitted:   make([]float64, 4), // last index 3, next index 4 -> season slot 1
	}

	preds := ForecastHoltWinters(fit, 100, 3)

	assert.InDeltaSlice(t, []float64{100, 110, 90}, preds, 1e-9)
}

func TestPredictHoltWinters(t *testing.T) {
	_, preds := PredictHoltWinters(nil, 5, DefaultHoltWintersParams())
	assert.Nil(t, preds)

	values := seasonalValues(42)
	fit, preds := PredictHoltWinters(values, 14, DefaultHoltWintersParams())
	assert.Len(t, preds, 14)
	assert.Equal(t, DefaultHoltWintersParams(), fit.Params)
}

func TestOptimizeHoltWinters_NotWorseThanDefaults(t *testing.T) {
	values := seasonalValues(70)

	best := OptimizeHoltWinters(values, 7)

	assert.Equal(t, 7, best.SeasonalPeriod)
	assert.LessOrEqual(t,
		FitHoltWinters(values, best).MSE,
		FitHoltWinters(values, DefaultHoltWintersParams()).MSE,
	)
}

func TestAutoHoltWinters_ShortSeriesUsesDefaults(t *testing.T) {
	fit, preds := AutoHoltWinters(seasonalValues(10), 3, 7)

	assert.Equal(t, DefaultHoltWintersParams(), fit.Params)
	assert.Len(t, preds, 3)
}
