package forecast

import (
	"math"

	"github.com/irfndi/commodity-forecast/internal/models"
)

// DefaultARIMAOrder is the order used when no search is requested.
var DefaultARIMAOrder = models.ARIMAOrder{P: 2, D: 1, Q: 1}

const (
	arDamping        = 0.9
	maDamping        = 0.8
	arStabilitySum   = 0.9
	stationarityMax  = 2.0
	minStationaryLen = 10
	defaultMaxD      = 2

	maxAutoP = 3
	maxAutoQ = 2
)

// arimaFit holds the estimated state of a fit on the differenced series.
type arimaFit struct {
	order     models.ARIMAOrder
	diffed    []float64
	ar        []float64
	ma        []float64
	residuals []float64
	aic       float64
}

// Difference applies d rounds of first-order differencing. d <= 0 or fewer than
// two values returns a copy of the input.
func Difference(values []float64, d int) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if d <= 0 || len(values) < 2 {
		return out
	}
	for round := 0; round < d && len(out) > 1; round++ {
		next := make([]float64, len(out)-1)
		for i := 1; i < len(out); i++ {
			next[i-1] = out[i] - out[i-1]
		}
		out = next
	}
	return out
}

// InverseDifference rebuilds levels from a d-times differenced series.
// lastValues[k] is the value of the k-times differenced series immediately
// preceding diffed; lastValues[0] is therefore on the original price scale.
// Missing seeds are treated as 0.
func InverseDifference(diffed, lastValues []float64, d int) []float64 {
	out := make([]float64, len(diffed))
	copy(out, diffed)
	for level := d - 1; level >= 0; level-- {
		var acc float64
		if level < len(lastValues) {
			acc = lastValues[level]
		}
		for i := range out {
			acc += out[i]
			out[i] = acc
		}
	}
	return out
}

// Autocorrelation returns the normalized lag covariance. Lag 0 is 1, lags at
// or beyond the series length are 0.
func Autocorrelation(values []float64, lag int) float64 {
	if lag == 0 {
		return 1
	}
	n := len(values)
	if lag < 0 || lag >= n {
		return 0
	}
	mean := Mean(values)

	var num, den float64
	for i, v := range values {
		dev := v - mean
		den += dev * dev
		if i >= lag {
			num += dev * (values[i-lag] - mean)
		}
	}
	return SafeDivide(num, den, 0)
}

// FindOptimalDifferencing returns the first d in [0, maxD] whose differenced
// series has a half-to-half variance ratio below 2. Orders leaving fewer than
// 10 values are not considered; the fallback is 1.
func FindOptimalDifferencing(values []float64, maxD int) int {
	if maxD <= 0 {
		maxD = defaultMaxD
	}
	for d := 0; d <= maxD; d++ {
		diffed := Difference(values, d)
		if len(diffed) < minStationaryLen {
			continue
		}
		half := len(diffed) / 2
		if varianceRatio(Variance(diffed[:half]), Variance(diffed[half:])) < stationarityMax {
			return d
		}
	}
	return 1
}

func varianceRatio(a, b float64) float64 {
	lo, hi := math.Min(a, b), math.Max(a, b)
	switch {
	case hi == 0:
		return 1
	case lo == 0:
		return math.Inf(1)
	default:
		return hi / lo
	}
}

// estimateAR derives p damped autocorrelation coefficients, rescaled so that
// their absolute sum stays below one.
func estimateAR(values []float64, p int) []float64 {
	coeffs := make([]float64, p)
	var absSum float64
	for i := 1; i <= p; i++ {
		coeffs[i-1] = Autocorrelation(values, i) * math.Pow(arDamping, float64(i))
		absSum += math.Abs(coeffs[i-1])
	}
	if absSum >= 1 {
		scale := arStabilitySum / absSum
		for i := range coeffs {
			coeffs[i] *= scale
		}
	}
	return coeffs
}

// arResiduals is the one-step AR prediction error; the first p points have no
// history and get 0.
func arResiduals(values, ar []float64) []float64 {
	p := len(ar)
	residuals := make([]float64, len(values))
	for t := p; t < len(values); t++ {
		var predicted float64
		for i, phi := range ar {
			predicted += phi * values[t-1-i]
		}
		residuals[t] = values[t] - predicted
	}
	return residuals
}

func estimateMA(residuals []float64, q int) []float64 {
	coeffs := make([]float64, q)
	for i := 1; i <= q; i++ {
		coeffs[i-1] = Autocorrelation(residuals, i) * math.Pow(maDamping, float64(i))
	}
	return coeffs
}

func fitARIMA(values []float64, order models.ARIMAOrder) arimaFit {
	order.P = max(order.P, 0)
	order.D = max(order.D, 0)
	order.Q = max(order.Q, 0)

	fit := arimaFit{order: order, aic: math.Inf(1)}
	fit.diffed = Difference(values, order.D)
	if order.D >= len(values) {
		fit.diffed = nil
	}

	n := len(fit.diffed)
	if n < max(order.P, order.Q)+2 {
		return fit
	}

	fit.ar = estimateAR(fit.diffed, order.P)
	fit.residuals = arResiduals(fit.diffed, fit.ar)
	fit.ma = estimateMA(fit.residuals, order.Q)

	var sse float64
	for _, r := range fit.residuals[order.P:] {
		sse += r * r
	}
	sigma2 := SafeDivide(sse, float64(n-order.P), 0)
	if sigma2 <= 0 {
		return fit
	}
	fit.aic = float64(n)*math.Log(sigma2) + 2*float64(order.P+order.Q+1)
	return fit
}

// FitARIMA estimates an ARIMA(p, d, q) model without forecasting. An AIC of
// +Inf means the order could not be fitted on this series.
func FitARIMA(values []float64, p, d, q int) models.ARIMAResult {
	fit := fitARIMA(values, models.ARIMAOrder{P: p, D: d, Q: q})
	return models.ARIMAResult{
		Residuals: fit.residuals,
		Params:    fit.order,
		AIC:       fit.aic,
	}
}

// forecast extends the differenced series horizon steps, assuming zero future
// shocks, then integrates back to price scale.
func (f arimaFit) forecast(values []float64, horizon int) []float64 {
	ext := make([]float64, len(f.diffed), len(f.diffed)+horizon)
	copy(ext, f.diffed)
	res := make([]float64, len(f.residuals), len(f.residuals)+horizon)
	copy(res, f.residuals)

	steps := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		var next float64
		for i, phi := range f.ar {
			if idx := len(ext) - 1 - i; idx >= 0 {
				next += phi * ext[idx]
			}
		}
		for j, theta := range f.ma {
			if idx := len(res) - 1 - j; idx >= 0 {
				next += theta * res[idx]
			}
		}
		ext = append(ext, next)
		res = append(res, 0)
		steps[h] = next
	}

	seeds := make([]float64, f.order.D)
	for k := range seeds {
		level := Difference(values, k)
		seeds[k] = level[len(level)-1]
	}
	levels := InverseDifference(steps, seeds, f.order.D)

	current := values[len(values)-1]
	for i, v := range levels {
		levels[i] = clamp(v, current*0.5, current*1.5)
	}
	return levels
}

// PredictARIMA fits the given order and forecasts horizon steps ahead. The
// result has no predictions when the order is unusable.
func PredictARIMA(values []float64, horizon int, order models.ARIMAOrder) models.ARIMAResult {
	fit := fitARIMA(values, order)
	result := models.ARIMAResult{
		Residuals: fit.residuals,
		Params:    fit.order,
		AIC:       fit.aic,
	}
	if horizon < 1 || math.IsInf(fit.aic, 0) {
		return result
	}
	result.Predictions = fit.forecast(values, horizon)
	return result
}

// AutoARIMA searches p in [0,3] and q in [0,2] at the differencing order found
// by FindOptimalDifferencing and forecasts with the lowest-AIC order. When no
// order is usable it returns the default order with an infinite AIC.
func AutoARIMA(values []float64, horizon int) models.ARIMAResult {
	d := FindOptimalDifferencing(values, defaultMaxD)

	best := arimaFit{aic: math.Inf(1)}
	for p := 0; p <= maxAutoP; p++ {
		for q := 0; q <= maxAutoQ; q++ {
			if p == 0 && q == 0 {
				continue
			}
			fit := fitARIMA(values, models.ARIMAOrder{P: p, D: d, Q: q})
			if fit.aic < best.aic {
				best = fit
			}
		}
	}

	if math.IsInf(best.aic, 0) {
		return models.ARIMAResult{Params: DefaultARIMAOrder, AIC: math.Inf(1)}
	}

	result := models.ARIMAResult{
		Residuals: best.residuals,
		Params:    best.order,
		AIC:       best.aic,
	}
	if horizon >= 1 {
		result.Predictions = best.forecast(values, horizon)
	}
	return result
}
