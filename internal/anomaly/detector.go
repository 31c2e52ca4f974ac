// Package anomaly flags atypical price movements in a daily price series.
package anomaly

import (
	"fmt"
	"math"

	"github.com/irfndi/commodity-forecast/internal/forecast"
	"github.com/irfndi/commodity-forecast/internal/models"
)

// Thresholds are ascending LOW/MEDIUM/HIGH cut-offs.
type Thresholds struct {
	Low    float64 `json:"low" mapstructure:"low"`
	Medium float64 `json:"medium" mapstructure:"medium"`
	High   float64 `json:"high" mapstructure:"high"`
}

// VolatilityThresholds are recent/historical CV ratios. Trigger opens a
// finding, Medium and High raise its severity.
type VolatilityThresholds struct {
	Trigger float64 `json:"trigger" mapstructure:"trigger"`
	Medium  float64 `json:"medium" mapstructure:"medium"`
	High    float64 `json:"high" mapstructure:"high"`
}

// Config tunes the detector. Zero fields take the DefaultConfig value.
type Config struct {
	MinDataPoints       int                  `json:"min_data_points" mapstructure:"min_data_points"`
	RecentWindow        int                  `json:"recent_window" mapstructure:"recent_window"`
	VolatilityMinPoints int                  `json:"volatility_min_points" mapstructure:"volatility_min_points"`
	ZScore              Thresholds           `json:"zscore" mapstructure:"zscore"`
	DailyChange         Thresholds           `json:"daily_change" mapstructure:"daily_change"` // percent
	Volatility          VolatilityThresholds `json:"volatility" mapstructure:"volatility"`
}

// DefaultConfig returns the stock detector configuration.
func DefaultConfig() Config {
	return Config{
		MinDataPoints:       14,
		RecentWindow:        7,
		VolatilityMinPoints: 30,
		ZScore:              Thresholds{Low: 1.5, Medium: 2.0, High: 2.5},
		DailyChange:         Thresholds{Low: 3, Medium: 5, High: 8},
		Volatility:          VolatilityThresholds{Trigger: 2, Medium: 2.5, High: 3},
	}
}

// WithDefaults returns c with every zero field replaced by its default.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.MinDataPoints <= 0 {
		c.MinDataPoints = def.MinDataPoints
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = def.RecentWindow
	}
	if c.VolatilityMinPoints <= 0 {
		c.VolatilityMinPoints = def.VolatilityMinPoints
	}
	c.ZScore = c.ZScore.merge(def.ZScore)
	c.DailyChange = c.DailyChange.merge(def.DailyChange)
	if c.Volatility.Trigger <= 0 {
		c.Volatility.Trigger = def.Volatility.Trigger
	}
	if c.Volatility.Medium <= 0 {
		c.Volatility.Medium = def.Volatility.Medium
	}
	if c.Volatility.High <= 0 {
		c.Volatility.High = def.Volatility.High
	}
	return c
}

func (t Thresholds) merge(def Thresholds) Thresholds {
	if t.Low <= 0 {
		t.Low = def.Low
	}
	if t.Medium <= 0 {
		t.Medium = def.Medium
	}
	if t.High <= 0 {
		t.High = def.High
	}
	return t
}

// classify returns the severity reached by magnitude, or false below Low.
func (t Thresholds) classify(magnitude float64) (models.Severity, bool) {
	switch {
	case magnitude >= t.High:
		return models.SeverityHigh, true
	case magnitude >= t.Medium:
		return models.SeverityMedium, true
	case magnitude >= t.Low:
		return models.SeverityLow, true
	default:
		return "", false
	}
}

// DetectAnomalies runs Detect with DefaultConfig.
func DetectAnomalies(series []models.DataPoint) []models.DetectedAnomaly {
	return Detect(series, DefaultConfig())
}

// Detect runs every rule over a sorted copy of series and keeps the most
// severe finding per anomaly type. Short series yield an empty slice.
func Detect(series []models.DataPoint, cfg Config) []models.DetectedAnomaly {
	cfg = cfg.WithDefaults()
	found := newFindings()
	if len(series) < cfg.MinDataPoints {
		return found.list()
	}

	values := forecast.SeriesValues(forecast.SortSeries(series))

	detectZScore(values, cfg.ZScore, found)
	detectDailyChange(values, cfg.DailyChange, found)
	detectVolatility(values, cfg, found)
	detectExtremes(values, found)

	return found.list()
}

// findings keeps at most one anomaly per type; an entry is only replaced by a
// strictly more severe one. Insertion order is preserved.
type findings struct {
	byType map[models.AnomalyType]models.DetectedAnomaly
	order  []models.AnomalyType
}

func newFindings() *findings {
	return &findings{byType: make(map[models.AnomalyType]models.DetectedAnomaly)}
}

func (f *findings) add(a models.DetectedAnomaly) {
	existing, ok := f.byType[a.Type]
	if !ok {
		f.order = append(f.order, a.Type)
		f.byType[a.Type] = a
		return
	}
	if a.Severity.Rank() > existing.Severity.Rank() {
		f.byType[a.Type] = a
	}
}

func (f *findings) list() []models.DetectedAnomaly {
	out := make([]models.DetectedAnomaly, 0, len(f.order))
	for _, t := range f.order {
		out = append(out, f.byType[t])
	}
	return out
}

func detectZScore(values []float64, th Thresholds, found *findings) {
	mean := forecast.Mean(values)
	stdDev := forecast.StdDev(values)
	if stdDev == 0 {
		return
	}
	latest := values[len(values)-1]
	z := (latest - mean) / stdDev

	severity, ok := th.classify(math.Abs(z))
	if !ok {
		return
	}

	kind, word := models.AnomalyPriceSpike, "above"
	if z < 0 {
		kind, word = models.AnomalyPriceDrop, "below"
	}
	found.add(models.DetectedAnomaly{
		Type:             kind,
		Severity:         severity,
		Description:      fmt.Sprintf("Price %.2f is %.1f standard deviations %s the mean %.2f", latest, math.Abs(z), word, mean),
		DetectedValue:    latest,
		ExpectedRange:    models.ExpectedRange{Min: mean - stdDev, Max: mean + stdDev},
		DeviationPercent: forecast.SafeDivide(latest-mean, mean, 0) * 100,
	})
}

func detectDailyChange(values []float64, th Thresholds, found *findings) {
	if len(values) < 2 {
		return
	}
	latest := values[len(values)-1]
	previous := values[len(values)-2]
	if previous == 0 {
		return
	}
	change := (latest - previous) / previous * 100

	severity, ok := th.classify(math.Abs(change))
	if !ok {
		return
	}

	kind, word := models.AnomalyPriceSpike, "rose"
	if change < 0 {
		kind, word = models.AnomalyPriceDrop, "fell"
	}
	band := th.Low / 100
	found.add(models.DetectedAnomaly{
		Type:             kind,
		Severity:         severity,
		Description:      fmt.Sprintf("Price %s %.1f%% in one day (%.2f to %.2f)", word, math.Abs(change), previous, latest),
		DetectedValue:    latest,
		ExpectedRange:    models.ExpectedRange{Min: previous * (1 - band), Max: previous * (1 + band)},
		DeviationPercent: change,
	})
}

func detectVolatility(values []float64, cfg Config, found *findings) {
	if len(values) < cfg.VolatilityMinPoints || len(values) <= cfg.RecentWindow {
		return
	}
	split := len(values) - cfg.RecentWindow
	recentCV := forecast.CoefficientOfVariation(values[split:])
	historicalCV := forecast.CoefficientOfVariation(values[:split])
	if historicalCV == 0 {
		return
	}

	ratio := recentCV / historicalCV
	th := cfg.Volatility
	if ratio <= th.Trigger {
		return
	}

	severity := models.SeverityLow
	switch {
	case ratio > th.High:
		severity = models.SeverityHigh
	case ratio > th.Medium:
		severity = models.SeverityMedium
	}
	found.add(models.DetectedAnomaly{
		Type:             models.AnomalyHighVolatility,
		Severity:         severity,
		Description:      fmt.Sprintf("Volatility over the last %d days is %.1fx the historical level", cfg.RecentWindow, ratio),
		DetectedValue:    recentCV,
		ExpectedRange:    models.ExpectedRange{Min: 0, Max: historicalCV * th.Trigger},
		DeviationPercent: (ratio - 1) * 100,
	})
}

// detectExtremes flags a latest value at the series max, or failing that at
// the min. A flat series sits at its max and reports HISTORICAL_HIGH.
func detectExtremes(values []float64, found *findings) {
	latest := values[len(values)-1]
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	prior := values[:len(values)-1]
	priorLo, priorHi := prior[0], prior[0]
	for _, v := range prior {
		priorLo = math.Min(priorLo, v)
		priorHi = math.Max(priorHi, v)
	}
	expected := models.ExpectedRange{Min: priorLo, Max: priorHi}

	if latest == hi {
		found.add(models.DetectedAnomaly{
			Type:             models.AnomalyHistoricalHigh,
			Severity:         models.SeverityMedium,
			Description:      fmt.Sprintf("Price %.2f is the highest of the last %d observations", latest, len(values)),
			DetectedValue:    latest,
			ExpectedRange:    expected,
			DeviationPercent: forecast.SafeDivide(latest-priorHi, priorHi, 0) * 100,
		})
	} else if latest == lo {
		found.add(models.DetectedAnomaly{
			Type:             models.AnomalyHistoricalLow,
			Severity:         models.SeverityMedium,
			Description:      fmt.Sprintf("Price %.2f is the lowest of the last %d observations", latest, len(values)),
			DetectedValue:    latest,
			ExpectedRange:    expected,
			DeviationPercent: forecast.SafeDivide(latest-priorLo, priorLo, 0) * 100,
		})
	}
}
