package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/commodity-forecast/internal/anomaly"
	"github.com/irfndi/commodity-forecast/internal/middleware"
	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/sirupsen/logrus"
)

const maxSeriesPoints = 5000

// ForecastServiceInterface is the part of services.ForecastService the API uses
type ForecastServiceInterface interface {
	DefaultHorizon() int
	PredictPrice(ctx context.Context, commodity, market string, horizon int) (*models.CommodityForecast, error)
	PredictHorizons(ctx context.Context, commodity, market string, horizons []int) (*models.HorizonForecast, error)
	DetectAnomalies(ctx context.Context, commodity, market string) (*models.AnomalyReport, error)
	PredictBatch(ctx context.Context, keys []models.CommodityKey, horizon int) ([]models.BatchForecastItem, error)
	PredictSeries(ctx context.Context, series []models.DataPoint, horizon int) (*models.PredictionResult, error)
	DetectSeries(ctx context.Context, series []models.DataPoint, cfg *anomaly.Config) []models.DetectedAnomaly
	ListMarkets(ctx context.Context, commodity string) ([]string, error)
	InvalidateCache(ctx context.Context, commodity, market string) (int, error)
}

// ForecastHandler serves forecasts and anomaly reports
type ForecastHandler struct {
	service ForecastServiceInterface
	logger  *logrus.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(service ForecastServiceInterface, logger *logrus.Logger) *ForecastHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ForecastHandler{service: service, logger: logger}
}

// SeriesPoint is a request-side observation. Date accepts YYYY-MM-DD or RFC 3339.
type SeriesPoint struct {
	Date  string  `json:"date" binding:"required"`
	Value float64 `json:"value"`
}

// BatchForecastRequest asks for one horizon across many series
type BatchForecastRequest struct {
	Items   []models.CommodityKey `json:"items" binding:"required,dive"`
	Horizon int                   `json:"horizon"`
}

// PredictSeriesRequest carries a caller-supplied series
type PredictSeriesRequest struct {
	Series  []SeriesPoint `json:"series" binding:"required"`
	Horizon int           `json:"horizon"`
}

// DetectSeriesRequest carries a caller-supplied series and optional thresholds.
// Zero or missing thresholds take the detector defaults.
type DetectSeriesRequest struct {
	Series []SeriesPoint   `json:"series" binding:"required"`
	Config *anomaly.Config `json:"config"`
}

// GetForecast returns the forecast of one series for one horizon
// @Summary Forecast a commodity price
// @Tags forecast
// @Param commodity path string true "Commodity slug"
// @Param market path string true "Market slug"
// @Param horizon query int false "Days ahead (default from config)"
// @Produce json
// @Router /api/v1/forecast/{commodity}/{market} [get]
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	horizon, err := h.horizonParam(c.Query("horizon"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	result, err := h.service.PredictPrice(c.Request.Context(), c.Param("commodity"), c.Param("market"), horizon)
	if err != nil {
		h.logFailure(c, "predict_price", err)
		writeError(c, err)
		return
	}

	middleware.AddSpanAttribute(c, "forecast.cached", result.Cached)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetHorizons returns forecasts for several horizons of one series
// @Summary Forecast several horizons
// @Tags forecast
// @Param h query string false "Comma-separated horizons, e.g. 7,14,30"
// @Produce json
// @Router /api/v1/forecast/{commodity}/{market}/horizons [get]
func (h *ForecastHandler) GetHorizons(c *gin.Context) {
	horizons, err := parseHorizonList(c.Query("h"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	result, err := h.service.PredictHorizons(c.Request.Context(), c.Param("commodity"), c.Param("market"), horizons)
	if err != nil {
		h.logFailure(c, "predict_horizons", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetAnomalies returns the anomalies of one stored series
// @Summary Detect anomalies
// @Tags anomalies
// @Produce json
// @Router /api/v1/forecast/{commodity}/{market}/anomalies [get]
func (h *ForecastHandler) GetAnomalies(c *gin.Context) {
	report, err := h.service.DetectAnomalies(c.Request.Context(), c.Param("commodity"), c.Param("market"))
	if err != nil {
		h.logFailure(c, "detect_anomalies", err)
		writeError(c, err)
		return
	}

	middleware.AddSpanAttribute(c, "anomaly.count", len(report.Anomalies))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}

// ListMarkets returns the markets with stored prices for a commodity
// @Summary List markets
// @Tags forecast
// @Produce json
// @Router /api/v1/commodities/{commodity}/markets [get]
func (h *ForecastHandler) ListMarkets(c *gin.Context) {
	markets, err := h.service.ListMarkets(c.Request.Context(), c.Param("commodity"))
	if err != nil {
		h.logFailure(c, "list_markets", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    markets,
	})
}

// PredictBatch forecasts many stored series at once
// @Summary Batch forecast
// @Tags forecast
// @Accept json
// @Produce json
// @Router /api/v1/forecast/batch [post]
func (h *ForecastHandler) PredictBatch(c *gin.Context) {
	var req BatchForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Horizon == 0 {
		req.Horizon = h.service.DefaultHorizon()
	}

	items, err := h.service.PredictBatch(c.Request.Context(), req.Items, req.Horizon)
	if err != nil {
		h.logFailure(c, "predict_batch", err)
		writeError(c, err)
		return
	}

	failed := 0
	for _, item := range items {
		if item.Error != "" {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"failed":  failed,
	})
}

// PredictSeries forecasts a series supplied in the request body
// @Summary Forecast an ad-hoc series
// @Tags forecast
// @Accept json
// @Produce json
// @Router /api/v1/forecast/predict [post]
func (h *ForecastHandler) PredictSeries(c *gin.Context) {
	var req PredictSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	series, err := toDataPoints(req.Series)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	if req.Horizon == 0 {
		req.Horizon = h.service.DefaultHorizon()
	}

	result, err := h.service.PredictSeries(c.Request.Context(), series, req.Horizon)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// DetectSeries runs the anomaly detector on a series supplied in the request body
// @Summary Detect anomalies in an ad-hoc series
// @Tags anomalies
// @Accept json
// @Produce json
// @Router /api/v1/anomalies/detect [post]
func (h *ForecastHandler) DetectSeries(c *gin.Context) {
	var req DetectSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	series, err := toDataPoints(req.Series)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	anomalies := h.service.DetectSeries(c.Request.Context(), series, req.Config)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    anomalies,
	})
}

// InvalidateCache drops the cached results of one series
// @Summary Invalidate cached results
// @Tags admin
// @Produce json
// @Router /api/v1/forecast/{commodity}/{market}/cache [delete]
func (h *ForecastHandler) InvalidateCache(c *gin.Context) {
	deleted, err := h.service.InvalidateCache(c.Request.Context(), c.Param("commodity"), c.Param("market"))
	if err != nil {
		h.logFailure(c, "invalidate_cache", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"deleted": deleted,
	})
}

func (h *ForecastHandler) horizonParam(raw string) (int, error) {
	if raw == "" {
		return h.service.DefaultHorizon(), nil
	}
	horizon, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid horizon %q", raw)
	}
	return horizon, nil
}

func (h *ForecastHandler) logFailure(c *gin.Context, operation string, err error) {
	entry := h.logger.WithFields(logrus.Fields{
		"operation":  operation,
		"commodity":  c.Param("commodity"),
		"market":     c.Param("market"),
		"request_id": middleware.GetRequestID(c),
	}).WithError(err)
	if statusForError(err) >= http.StatusInternalServerError {
		entry.Error("Request failed")
		return
	}
	entry.Debug("Request rejected")
}

// parseHorizonList parses "7,14,30"; an empty string yields nil.
func parseHorizonList(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	horizons := make([]int, 0, len(parts))
	for _, part := range parts {
		h, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid horizon %q", part)
		}
		horizons = append(horizons, h)
	}
	return horizons, nil
}

func toDataPoints(points []SeriesPoint) ([]models.DataPoint, error) {
	if len(points) > maxSeriesPoints {
		return nil, fmt.Errorf("series has %d points, at most %d are accepted", len(points), maxSeriesPoints)
	}
	series := make([]models.DataPoint, 0, len(points))
	for i, p := range points {
		date, err := parseDate(p.Date)
		if err != nil {
			return nil, fmt.Errorf("series[%d]: invalid date %q", i, p.Date)
		}
		if p.Value <= 0 {
			return nil, fmt.Errorf("series[%d]: value must be positive", i)
		}
		series = append(series, models.DataPoint{Date: date, Value: p.Value})
	}
	return series, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
