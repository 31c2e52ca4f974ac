package forecast

import (
	"math"

	"github.com/irfndi/commodity-forecast/internal/models"
)

// MinHoltWintersOptimizePoints is the shortest series AutoHoltWinters will grid-search on.
const MinHoltWintersOptimizePoints = 14

var (
	hwAlphaGrid = []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	hwBetaGrid  = []float64{0.05, 0.1, 0.15, 0.2}
	hwGammaGrid = []float64{0.1, 0.2, 0.3}
)

// DefaultHoltWintersParams returns the weekly-season defaults.
func DefaultHoltWintersParams() models.HoltWintersParams {
	return models.HoltWintersParams{
		Alpha:          0.3,
		Beta:           0.1,
		Gamma:          0.2,
		SeasonalPeriod: 7,
	}
}

// withDefaults fills zero fields from DefaultHoltWintersParams.
func withDefaults(p models.HoltWintersParams) models.HoltWintersParams {
	def := DefaultHoltWintersParams()
	if p.Alpha <= 0 {
		p.Alpha = def.Alpha
	}
	if p.Beta <= 0 {
		p.Beta = def.Beta
	}
	if p.Gamma <= 0 {
		p.Gamma = def.Gamma
	}
	if p.SeasonalPeriod < 1 {
		p.SeasonalPeriod = def.SeasonalPeriod
	}
	return p
}

// FitHoltWinters runs multiplicative triple exponential smoothing once over values.
// Series shorter than one season get a flat fit around their mean.
func FitHoltWinters(values []float64, params models.HoltWintersParams) models.HoltWintersResult {
	params = withDefaults(params)
	period := params.SeasonalPeriod
	n := len(values)

	if n < period {
		mean := Mean(values)
		seasonal := make([]float64, period)
		fitted := make([]float64, n)
		for i := range seasonal {
			seasonal[i] = 1
		}
		for i := range fitted {
			fitted[i] = mean
		}
		return models.HoltWintersResult{
			Level:    mean,
			Seasonal: seasonal,
			Fitted:   fitted,
			Params:   params,
		}
	}

	level := Mean(values[:period])
	var trend float64
	if n >= 2*period {
		trend = (Mean(values[period:2*period]) - level) / float64(period)
	}
	seasonal := initialSeasonal(values, period)

	fitted := make([]float64, n)
	var sse float64
	for t, v := range values {
		idx := t % period
		s := seasonal[idx]
		forecast := (level + trend) * s
		fitted[t] = forecast
		if t >= period {
			sse += (v - forecast) * (v - forecast)
		}

		prevLevel := level
		level = params.Alpha*SafeDivide(v, s, v) + (1-params.Alpha)*(level+trend)
		trend = params.Beta*(level-prevLevel) + (1-params.Beta)*trend
		seasonal[idx] = params.Gamma*SafeDivide(v, level, 1) + (1-params.Gamma)*s
	}

	var mse float64
	if n > period {
		mse = sse / float64(n-period)
	}

	return models.HoltWintersResult{
		Level:    level,
		Trend:    trend,
		Seasonal: seasonal,
		Fitted:   fitted,
		Params:   params,
		MSE:      mse,
	}
}

// initialSeasonal averages value/season-mean ratios over every complete season
// and normalizes the factors to sum to period.
func initialSeasonal(values []float64, period int) []float64 {
	seasonal := make([]float64, period)
	seasons := len(values) / period
	for s := 0; s < seasons; s++ {
		chunk := values[s*period : (s+1)*period]
		avg := Mean(chunk)
		for i, v := range chunk {
			seasonal[i] += SafeDivide(v, avg, 1)
		}
	}

	var sum float64
	for i := range seasonal {
		seasonal[i] /= float64(seasons)
		sum += seasonal[i]
	}
	scale := SafeDivide(float64(period), sum, 1)
	for i := range seasonal {
		seasonal[i] *= scale
	}
	return seasonal
}

// ForecastHoltWinters extrapolates a fit horizon steps ahead, clamping each
// step to [0.5, 1.5] times current.
func ForecastHoltWinters(fit models.HoltWintersResult, current float64, horizon int) []float64 {
	if horizon < 1 {
		return nil
	}
	period := len(fit.Seasonal)
	lastIndex := len(fit.Fitted) - 1

	out := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		factor := 1.0
		if period > 0 {
			factor = fit.Seasonal[(lastIndex+h)%period]
		}
		v := (fit.Level + fit.Trend*float64(h)) * factor
		out[h-1] = clamp(v, current*0.5, current*1.5)
	}
	return out
}

// PredictHoltWinters fits values with params and forecasts horizon steps.
func PredictHoltWinters(values []float64, horizon int, params models.HoltWintersParams) (models.HoltWintersResult, []float64) {
	fit := FitHoltWinters(values, params)
	if len(values) == 0 {
		return fit, nil
	}
	return fit, ForecastHoltWinters(fit, values[len(values)-1], horizon)
}

// OptimizeHoltWinters grid-searches the smoothing constants for the lowest
// in-sample MSE. Non-finite candidates are ignored.
func OptimizeHoltWinters(values []float64, seasonalPeriod int) models.HoltWintersParams {
	best := withDefaults(models.HoltWintersParams{SeasonalPeriod: seasonalPeriod})
	bestMSE := math.Inf(1)

	for _, alpha := range hwAlphaGrid {
		for _, beta := range hwBetaGrid {
			for _, gamma := range hwGammaGrid {
				candidate := models.HoltWintersParams{
					Alpha:          alpha,
					Beta:           beta,
					Gamma:          gamma,
					SeasonalPeriod: best.SeasonalPeriod,
				}
				mse := FitHoltWinters(values, candidate).MSE
				if math.IsNaN(mse) || math.IsInf(mse, 0) {
					continue
				}
				if mse < bestMSE {
					best, bestMSE = candidate, mse
				}
			}
		}
	}
	return best
}

// AutoHoltWinters optimizes the parameters when there is enough history and
// forecasts horizon steps.
func AutoHoltWinters(values []float64, horizon, seasonalPeriod int) (models.HoltWintersResult, []float64) {
	params := withDefaults(models.HoltWintersParams{SeasonalPeriod: seasonalPeriod})
	if len(values) >= MinHoltWintersOptimizePoints {
		params = OptimizeHoltWinters(values, seasonalPeriod)
	}
	return PredictHoltWinters(values, horizon, params)
}
