package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/irfndi/commodity-forecast/internal/anomaly"
	"github.com/irfndi/commodity-forecast/internal/config"
	"github.com/irfndi/commodity-forecast/internal/forecast"
	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/irfndi/commodity-forecast/internal/telemetry"
	"github.com/irfndi/commodity-forecast/internal/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrCommodityNotFound is returned when a series has no stored history.
var ErrCommodityNotFound = models.ErrCommodityNotFound

const (
	defaultLookbackDays = 180
	defaultMaxHorizon   = 90
	maxBatchItems       = 100
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// PriceHistoryProvider loads the daily price series of a commodity at a market.
type PriceHistoryProvider interface {
	GetPriceHistory(ctx context.Context, commodity, market string, limit int) ([]models.DataPoint, error)
	ListMarkets(ctx context.Context, commodity string) ([]string, error)
}

// ForecastCache stores computed forecasts and anomaly reports.
type ForecastCache interface {
	GetForecast(ctx context.Context, commodity, market string, horizon int) (*models.CommodityForecast, bool)
	SetForecast(ctx context.Context, forecast models.CommodityForecast)
	GetAnomalyReport(ctx context.Context, commodity, market string) (*models.AnomalyReport, bool)
	SetAnomalyReport(ctx context.Context, report models.AnomalyReport)
	Invalidate(ctx context.Context, commodity, market string) (int, error)
}

// ConcurrencyLimiter supplies the fan-out limit for batch forecasts.
type ConcurrencyLimiter interface {
	BatchConcurrency() int
}

// EventLogger records domain events. It is satisfied by logging.StandardLogger.
type EventLogger interface {
	LogBusinessEvent(eventType string, details map[string]interface{})
}

// ForecastService runs the forecasting engine over stored price history.
type ForecastService struct {
	prices      PriceHistoryProvider
	cache       ForecastCache
	recovery    *ErrorRecoveryManager
	concurrency ConcurrencyLimiter
	events      EventLogger
	cfg         config.ForecastConfig
	predictor   forecast.PredictorConfig
	detector    anomaly.Config
	logger      *logrus.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// ServiceOption customizes a ForecastService.
type ServiceOption func(*ForecastService)

// WithCache enables result caching.
func WithCache(cache ForecastCache) ServiceOption {
	return func(s *ForecastService) { s.cache = cache }
}

// WithErrorRecovery retries price-history reads through erm.
func WithErrorRecovery(erm *ErrorRecoveryManager) ServiceOption {
	return func(s *ForecastService) { s.recovery = erm }
}

// WithConcurrencyLimiter sizes batch fan-out dynamically.
func WithConcurrencyLimiter(limiter ConcurrencyLimiter) ServiceOption {
	return func(s *ForecastService) { s.concurrency = limiter }
}

// WithEventLogger publishes freshly detected anomalies as business events.
func WithEventLogger(events EventLogger) ServiceOption {
	return func(s *ForecastService) { s.events = events }
}

// WithTracer overrides the telemetry tracer.
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *ForecastService) { s.tracer = tracer }
}

// WithClock overrides the clock used for GeneratedAt.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ForecastService) { s.now = now }
}

// NewForecastService creates a forecast service.
func NewForecastService(prices PriceHistoryProvider, forecastCfg config.ForecastConfig, anomalyCfg config.AnomalyConfig, logger *logrus.Logger, opts ...ServiceOption) *ForecastService {
	if logger == nil {
		logger = logrus.New()
	}
	if forecastCfg.LookbackDays <= 0 {
		forecastCfg.LookbackDays = defaultLookbackDays
	}
	if forecastCfg.MaxHorizon <= 0 {
		forecastCfg.MaxHorizon = defaultMaxHorizon
	}
	if forecastCfg.DefaultHorizon <= 0 {
		forecastCfg.DefaultHorizon = 7
	}
	if forecastCfg.MaxConcurrency <= 0 {
		forecastCfg.MaxConcurrency = 4
	}

	s := &ForecastService{
		prices:    prices,
		cfg:       forecastCfg,
		predictor: PredictorConfigFrom(forecastCfg),
		detector:  AnomalyConfigFrom(anomalyCfg),
		logger:    logger,
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PredictorConfigFrom maps the forecast configuration onto the engine configuration.
func PredictorConfigFrom(cfg config.ForecastConfig) forecast.PredictorConfig {
	pc := forecast.PredictorConfig{
		ATRPeriod:           cfg.ATRPeriod,
		IncludeARIMA:        cfg.IncludeARIMA,
		AutoARIMA:           cfg.ARIMA.Auto,
		ARIMAOrder:          models.ARIMAOrder{P: cfg.ARIMA.P, D: cfg.ARIMA.D, Q: cfg.ARIMA.Q},
		IncludeHoltWinters:  cfg.IncludeHoltWinters,
		OptimizeHoltWinters: cfg.HoltWinters.Optimize,
		HoltWinters: models.HoltWintersParams{
			Alpha:          cfg.HoltWinters.Alpha,
			Beta:           cfg.HoltWinters.Beta,
			Gamma:          cfg.HoltWinters.Gamma,
			SeasonalPeriod: cfg.HoltWinters.SeasonalPeriod,
		},
	}
	if pc.ATRPeriod <= 0 {
		pc.ATRPeriod = forecast.DefaultATRPeriod
	}
	if pc.ARIMAOrder == (models.ARIMAOrder{}) {
		pc.ARIMAOrder = forecast.DefaultARIMAOrder
	}
	return pc
}

// AnomalyConfigFrom maps the anomaly configuration onto the detector configuration.
func AnomalyConfigFrom(cfg config.AnomalyConfig) anomaly.Config {
	return anomaly.Config{
		MinDataPoints:       cfg.MinDataPoints,
		RecentWindow:        cfg.RecentWindow,
		VolatilityMinPoints: cfg.VolatilityMinPoints,
		ZScore:              anomaly.Thresholds{Low: cfg.ZScore.Low, Medium: cfg.ZScore.Medium, High: cfg.ZScore.High},
		DailyChange:         anomaly.Thresholds{Low: cfg.DailyChange.Low, Medium: cfg.DailyChange.Medium, High: cfg.DailyChange.High},
		Volatility: anomaly.VolatilityThresholds{
			Trigger: cfg.Volatility.Trigger,
			Medium:  cfg.Volatility.Medium,
			High:    cfg.Volatility.High,
		},
	}.WithDefaults()
}

// DefaultHorizon returns the configured default horizon in days.
func (s *ForecastService) DefaultHorizon() int {
	return s.cfg.DefaultHorizon
}

// DisplayName renders a commodity/market pair for humans, e.g. "Soja (Rio Verde)".
func DisplayName(commodity, market string) string {
	caser := cases.Title(language.BrazilianPortuguese)
	title := func(slug string) string {
		return caser.String(strings.NewReplacer("-", " ", "_", " ").Replace(slug))
	}
	return fmt.Sprintf("%s (%s)", title(commodity), title(market))
}

// NormalizeKey lower-cases and validates a commodity/market pair.
func NormalizeKey(commodity, market string) (models.CommodityKey, error) {
	key := models.CommodityKey{
		Commodity: strings.ToLower(strings.TrimSpace(commodity)),
		Market:    strings.ToLower(strings.TrimSpace(market)),
	}
	if !slugPattern.MatchString(key.Commodity) {
		return key, utils.NewFieldError("commodity", "invalid commodity %q", commodity)
	}
	if !slugPattern.MatchString(key.Market) {
		return key, utils.NewFieldError("market", "invalid market %q", market)
	}
	return key, nil
}

func (s *ForecastService) validateHorizon(horizon int) error {
	if horizon < 1 || horizon > s.cfg.MaxHorizon {
		return utils.NewFieldError("horizon", "must be between 1 and %d days, got %d", s.cfg.MaxHorizon, horizon)
	}
	return nil
}

func (s *ForecastService) startSpan(ctx context.Context, name string, key models.CommodityKey, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, telemetry.CommodityAttributes(key.Commodity, key.Market)...)
	return telemetry.StartSpan(ctx, s.tracer, name, attrs...)
}

func (s *ForecastService) loadHistory(ctx context.Context, key models.CommodityKey) ([]models.DataPoint, error) {
	var series []models.DataPoint
	load := func(ctx context.Context) error {
		var err error
		series, err = s.prices.GetPriceHistory(ctx, key.Commodity, key.Market, s.cfg.LookbackDays)
		return err
	}

	var err error
	if s.recovery != nil {
		err = s.recovery.ExecuteWithRetry(ctx, OpPriceHistory, load)
	} else {
		err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load price history for %s/%s: %w", key.Commodity, key.Market, err)
	}
	return series, nil
}

func seriesInfo(series []models.DataPoint) models.SeriesInfo {
	if len(series) == 0 {
		return models.SeriesInfo{}
	}
	sorted := forecast.SortSeries(series)
	return models.SeriesInfo{
		Points:    len(sorted),
		FirstDate: sorted[0].Date,
		LastDate:  sorted[len(sorted)-1].Date,
	}
}

// PredictPrice forecasts one horizon of a stored series.
func (s *ForecastService) PredictPrice(ctx context.Context, commodity, market string, horizon int) (*models.CommodityForecast, error) {
	key, err := NormalizeKey(commodity, market)
	if err != nil {
		return nil, err
	}
	if err := s.validateHorizon(horizon); err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "forecast.predict_price", key, attribute.Int("horizon", horizon))
	defer span.End()

	if s.cache != nil {
		if cached, ok := s.cache.GetForecast(ctx, key.Commodity, key.Market, horizon); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	series, err := s.loadHistory(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	prediction, err := forecast.PredictPriceWithConfig(series, horizon, s.predictor)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%s/%s: %w", key.Commodity, key.Market, err)
	}

	result := models.CommodityForecast{
		CommodityKey: key,
		DisplayName:  DisplayName(key.Commodity, key.Market),
		Series:       seriesInfo(series),
		Prediction:   prediction,
		GeneratedAt:  s.now().UTC(),
	}

	s.logger.WithFields(logrus.Fields{
		"commodity":  key.Commodity,
		"market":     key.Market,
		"horizon":    horizon,
		"points":     result.Series.Points,
		"direction":  prediction.Direction,
		"confidence": prediction.Confidence,
	}).Info("Price forecast computed")

	if s.cache != nil {
		s.cache.SetForecast(ctx, result)
	}
	return &result, nil
}

// PredictHorizons forecasts several horizons from a single history read.
// Horizons that fail are left out; the call fails only when none succeed.
func (s *ForecastService) PredictHorizons(ctx context.Context, commodity, market string, horizons []int) (*models.HorizonForecast, error) {
	key, err := NormalizeKey(commodity, market)
	if err != nil {
		return nil, err
	}
	if len(horizons) == 0 {
		horizons = s.cfg.Horizons
	}
	if len(horizons) == 0 {
		horizons = []int{s.cfg.DefaultHorizon}
	}
	horizons = slices.Clone(horizons)
	slices.Sort(horizons)
	horizons = slices.Compact(horizons)
	for _, h := range horizons {
		if err := s.validateHorizon(h); err != nil {
			return nil, err
		}
	}

	ctx, span := s.startSpan(ctx, "forecast.predict_horizons", key, attribute.IntSlice("horizons", horizons))
	defer span.End()

	series, err := s.loadHistory(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	predictions, failures := forecast.PredictMultipleHorizonsWithConfig(series, horizons, s.predictor)
	for h, ferr := range failures {
		s.logger.WithFields(logrus.Fields{
			"commodity": key.Commodity,
			"market":    key.Market,
			"horizon":   h,
		}).WithError(ferr).Warn("Horizon forecast failed")
	}
	if len(predictions) == 0 {
		err := fmt.Errorf("%s/%s: %w", key.Commodity, key.Market, firstFailure(horizons, failures))
		telemetry.RecordError(span, err)
		return nil, err
	}

	return &models.HorizonForecast{
		CommodityKey: key,
		DisplayName:  DisplayName(key.Commodity, key.Market),
		Series:       seriesInfo(series),
		Predictions:  predictions,
		GeneratedAt:  s.now().UTC(),
	}, nil
}

func firstFailure(horizons []int, failures map[int]error) error {
	for _, h := range horizons {
		if err, ok := failures[h]; ok {
			return err
		}
	}
	return errors.New("no horizon could be forecast")
}

// DetectAnomalies runs the anomaly detector over a stored series.
func (s *ForecastService) DetectAnomalies(ctx context.Context, commodity, market string) (*models.AnomalyReport, error) {
	key, err := NormalizeKey(commodity, market)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "forecast.detect_anomalies", key)
	defer span.End()

	if s.cache != nil {
		if cached, ok := s.cache.GetAnomalyReport(ctx, key.Commodity, key.Market); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	series, err := s.loadHistory(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	report := models.AnomalyReport{
		CommodityKey: key,
		DisplayName:  DisplayName(key.Commodity, key.Market),
		Series:       seriesInfo(series),
		Anomalies:    anomaly.Detect(series, s.detector),
		GeneratedAt:  s.now().UTC(),
	}
	span.SetAttributes(attribute.Int("anomalies", len(report.Anomalies)))

	if len(report.Anomalies) > 0 {
		s.reportAnomalies(key, report.Anomalies)
	}

	if s.cache != nil {
		s.cache.SetAnomalyReport(ctx, report)
	}
	return &report, nil
}

func (s *ForecastService) reportAnomalies(key models.CommodityKey, anomalies []models.DetectedAnomaly) {
	types := make([]string, 0, len(anomalies))
	highest := anomalies[0].Severity
	for _, a := range anomalies {
		types = append(types, fmt.Sprintf("%s:%s", a.Type, a.Severity))
		if a.Severity.Rank() > highest.Rank() {
			highest = a.Severity
		}
	}

	if s.events == nil {
		s.logger.WithFields(logrus.Fields{
			"commodity": key.Commodity,
			"market":    key.Market,
			"anomalies": strings.Join(types, ","),
		}).Info("Anomalies detected")
		return
	}
	s.events.LogBusinessEvent("anomalies_detected", map[string]interface{}{
		"commodity":        key.Commodity,
		"market":           key.Market,
		"count":            len(anomalies),
		"highest_severity": string(highest),
		"anomalies":        strings.Join(types, ","),
	})
}

// PredictBatch forecasts many series concurrently. Each item carries its own
// error, so one failing series never aborts the others. Output order follows keys.
func (s *ForecastService) PredictBatch(ctx context.Context, keys []models.CommodityKey, horizon int) ([]models.BatchForecastItem, error) {
	if len(keys) == 0 {
		return nil, utils.NewFieldError("items", "at least one commodity is required")
	}
	if len(keys) > maxBatchItems {
		return nil, utils.NewFieldError("items", "at most %d commodities per batch, got %d", maxBatchItems, len(keys))
	}
	if err := s.validateHorizon(horizon); err != nil {
		return nil, err
	}

	limit := s.cfg.MaxConcurrency
	if s.concurrency != nil {
		limit = min(max(s.concurrency.BatchConcurrency(), 1), s.cfg.MaxConcurrency)
	}

	ctx, span := telemetry.StartSpan(ctx, s.tracer, "forecast.predict_batch",
		attribute.Int("items", len(keys)),
		attribute.Int("horizon", horizon),
		attribute.Int("concurrency", limit),
	)
	defer span.End()

	items := make([]models.BatchForecastItem, len(keys))
	g := new(errgroup.Group)
	g.SetLimit(limit)

	for i, k := range keys {
		g.Go(func() error {
			items[i].CommodityKey = k
			if err := ctx.Err(); err != nil {
				items[i].Error = err.Error()
				return nil
			}
			result, err := s.PredictPrice(ctx, k.Commodity, k.Market, horizon)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].CommodityKey = result.CommodityKey
			items[i].Forecast = result
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, item := range items {
		if item.Error != "" {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	s.logger.WithFields(logrus.Fields{
		"items":       len(keys),
		"failed":      failed,
		"horizon":     horizon,
		"concurrency": limit,
	}).Info("Batch forecast completed")

	return items, nil
}

// PredictSeries runs the ensemble predictor on a caller-supplied series.
func (s *ForecastService) PredictSeries(ctx context.Context, series []models.DataPoint, horizon int) (*models.PredictionResult, error) {
	if err := s.validateHorizon(horizon); err != nil {
		return nil, err
	}

	_, span := telemetry.StartSpan(ctx, s.tracer, "forecast.predict_series",
		attribute.Int("points", len(series)),
		attribute.Int("horizon", horizon),
	)
	defer span.End()

	result, err := forecast.PredictPriceWithConfig(series, horizon, s.predictor)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &result, nil
}

// DetectSeries runs the anomaly detector on a caller-supplied series. A nil
// cfg uses the service configuration; zero fields of cfg take the defaults.
func (s *ForecastService) DetectSeries(ctx context.Context, series []models.DataPoint, cfg *anomaly.Config) []models.DetectedAnomaly {
	_, span := telemetry.StartSpan(ctx, s.tracer, "forecast.detect_series", attribute.Int("points", len(series)))
	defer span.End()

	detectorCfg := s.detector
	if cfg != nil {
		detectorCfg = *cfg
	}
	anomalies := anomaly.Detect(series, detectorCfg)
	span.SetAttributes(attribute.Int("anomalies", len(anomalies)))
	return anomalies
}

// InvalidateCache drops every cached result of a series.
func (s *ForecastService) InvalidateCache(ctx context.Context, commodity, market string) (int, error) {
	key, err := NormalizeKey(commodity, market)
	if err != nil {
		return 0, err
	}
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.Invalidate(ctx, key.Commodity, key.Market)
}

// ListMarkets returns the markets with stored prices for a commodity.
func (s *ForecastService) ListMarkets(ctx context.Context, commodity string) ([]string, error) {
	slug := strings.ToLower(strings.TrimSpace(commodity))
	if !slugPattern.MatchString(slug) {
		return nil, utils.NewFieldError("commodity", "invalid commodity %q", commodity)
	}
	markets, err := s.prices.ListMarkets(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets for %s: %w", slug, err)
	}
	return markets, nil
}
