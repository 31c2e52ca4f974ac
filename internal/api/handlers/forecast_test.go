package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/commodity-forecast/internal/anomaly"
	"github.com/irfndi/commodity-forecast/internal/forecast"
	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/irfndi/commodity-forecast/internal/services"
	"github.com/irfndi/commodity-forecast/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockForecastService is a mock implementation of ForecastServiceInterface
type MockForecastService struct {
	mock.Mock
}

func (m *MockForecastService) DefaultHorizon() int {
	return m.Called().Int(0)
}

func (m *MockForecastService) PredictPrice(ctx context.Context, commodity, market string, horizon int) (*models.CommodityForecast, error) {
	args := m.Called(ctx, commodity, market, horizon)
	result, _ := args.Get(0).(*models.CommodityForecast)
	return result, args.Error(1)
}

func (m *MockForecastService) PredictHorizons(ctx context.Context, commodity, market string, horizons []int) (*models.HorizonForecast, error) {
	args := m.Called(ctx, commodity, market, horizons)
	result, _ := args.Get(0).(*models.HorizonForecast)
	return result, args.Error(1)
}

func (m *MockForecastService) DetectAnomalies(ctx context.Context, commodity, market string) (*models.AnomalyReport, error) {
	args := m.Called(ctx, commodity, market)
	result, _ := args.Get(0).(*models.AnomalyReport)
	return result, args.Error(1)
}

func (m *MockForecastService) PredictBatch(ctx context.Context, keys []models.CommodityKey, horizon int) ([]models.BatchForecastItem, error) {
	args := m.Called(ctx, keys, horizon)
	result, _ := args.Get(0).([]models.BatchForecastItem)
	return result, args.Error(1)
}

func (m *MockForecastService) PredictSeries(ctx context.Context, series []models.DataPoint, horizon int) (*models.PredictionResult, error) {
	args := m.Called(ctx, series, horizon)
	result, _ := args.Get(0).(*models.PredictionResult)
	return result, args.Error(1)
}

func (m *MockForecastService) DetectSeries(ctx context.Context, series []models.DataPoint, cfg *anomaly.Config) []models.DetectedAnomaly {
	args := m.Called(ctx, series, cfg)
	result, _ := args.Get(0).([]models.DetectedAnomaly)
	return result
}

func (m *MockForecastService) ListMarkets(ctx context.Context, commodity string) ([]string, error) {
	args := m.Called(ctx, commodity)
	result, _ := args.Get(0).([]string)
	return result, args.Error(1)
}

func (m *MockForecastService) InvalidateCache(ctx context.Context, commodity, market string) (int, error) {
	args := m.Called(ctx, commodity, market)
	return args.Int(0), args.Error(1)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newForecastRouter(svc *MockForecastService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewForecastHandler(svc, quietLogger())
	router := gin.New()
	router.GET("/forecast/:commodity/:market", h.GetForecast)
	router.GET("/forecast/:commodity/:market/horizons", h.GetHorizons)
	router.GET("/forecast/:commodity/:market/anomalies", h.GetAnomalies)
	router.DELETE("/forecast/:commodity/:market/cache", h.InvalidateCache)
	router.GET("/commodities/:commodity/markets", h.ListMarkets)
	router.POST("/forecast/batch", h.PredictBatch)
	router.POST("/forecast/predict", h.PredictSeries)
	router.POST("/anomalies/detect", h.DetectSeries)
	return router
}

func serve(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", utils.NewFieldError("horizon", "too far"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("batch: %w", utils.NewValidationError("bad")), http.StatusBadRequest},
		{"not found", fmt.Errorf("load: %w", models.ErrCommodityNotFound), http.StatusNotFound},
		{"insufficient data", fmt.Errorf("soja: %w", &forecast.InsufficientDataError{Required: 7, Actual: 3}), http.StatusUnprocessableEntity},
		{"invalid horizon", fmt.Errorf("predict: %w", forecast.ErrInvalidHorizon), http.StatusBadRequest},
		{"circuit open", services.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"anything else", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestForecastHandler_GetForecast(t *testing.T) {
	svc := &MockForecastService{}
	result := &models.CommodityForecast{
		CommodityKey: models.CommodityKey{Commodity: "soja", Market: "paranagua"},
		DisplayName:  "Soja (Paranagua)",
		Prediction:   models.PredictionResult{CurrentPrice: 120, PredictedPrice: 123.5, Horizon: 14},
	}
	svc.On("PredictPrice", mock.Anything, "soja", "paranagua", 14).Return(result, nil).Once()

	w := serve(newForecastRouter(svc), http.MethodGet, "/forecast/soja/paranagua?horizon=14", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Soja (Paranagua)", data["display_name"])
	assert.Equal(t, 123.5, data["prediction"].(map[string]interface{})["predicted_price"])
	svc.AssertExpectations(t)
}

func TestForecastHandler_GetForecast_DefaultHorizon(t *testing.T) {
	svc := &MockForecastService{}
	svc.On("DefaultHorizon").Return(7)
	svc.On("PredictPrice", mock.Anything, "soja", "paranagua", 7).Return(&models.CommodityForecast{}, nil).Once()

	w := serve(newForecastRouter(svc), http.MethodGet, "/forecast/soja/paranagua", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestForecastHandler_GetForecast_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("load: %w", models.ErrCommodityNotFound), http.StatusNotFound, "commodity not found"},
		{"insufficient", &forecast.InsufficientDataError{Required: 7, Actual: 2}, http.StatusUnprocessableEntity, "need at least 7 points"},
		{"validation", utils.NewFieldError("horizon", "must be between 1 and 90 days, got 400"), http.StatusBadRequest, "horizon"},
		{"internal", errors.New("pool exhausted"), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockForecastService{}
			svc.On("PredictPrice", mock.Anything, "soja", "paranagua", 30).Return(nil, tt.err).Once()

			w := serve(newForecastRouter(svc), http.MethodGet, "/forecast/soja/paranagua?horizon=30", nil)

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tt.message)
		})
	}
}

func TestForecastHandler_GetForecast_ValidationField(t *testing.T) {
	svc := &MockForecastService{}
	svc.On("PredictPrice", mock.Anything, "soja", "paranagua", 400).
		Return(nil, utils.NewFieldError("horizon", "must be between 1 and 90 days, got 400")).Once()

	w := serve(newForecastRouter(svc), http.MethodGet, "/forecast/soja/paranagua?horizon=400", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "horizon", decode(t, w)["field"])
}

func TestForecastHandler_GetForecast_BadHorizon(t *testing.T) {
	svc := &MockForecastService{}

	w := serve(newForecastRouter(svc), http.MethodGet, "/forecast/soja/paranagua?horizon=week", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "invalid horizon")
	svc.AssertNotCalled(t, "PredictPrice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestForecastHandler_GetHorizons(t *testing.T) {
	svc := &MockForecastService{}
	result := &models.HorizonForecast{
		CommodityKey: models.CommodityKey{Commodity: "milho", Market: "cascavel"},
		Predictions: map[int]models.PredictionResult{
			7:  {Horizon: 7},
			30: {Horizon: 30},
		},
	}
	svc.On("PredictHorizons", mock.Anything, "milho", "cascavel", []int{7, 14, 30}).Return(result, nil).Once()
	svc.On("PredictHorizons", mock.Anything, "milho", "cascavel", []int(nil)).Return(result, nil).Once()

	router := newForecastRouter(svc)
	w := serve(router, http.MethodGet, "/forecast/milho/cascavel/horizons?h=7,%2014,30", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	predictions := decode(t, w)["data"].(map[string]interface{})["predictions"].(map[string]interface{})
	assert.Contains(t, predictions, "7")
	assert.Contains(t, predictions, "30")

	w = serve(router, http.MethodGet, "/forecast/milho/cascavel/horizons", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/forecast/milho/cascavel/horizons?h=7,x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestForecastHandler_GetAnomalies(t *testing.T) {
	svc := &MockForecastService{}
	report := &models.AnomalyReport{
		CommodityKey: models.CommodityKey{Commodity: "soja", Market: "paranagua"},
		Anomalies: []models.DetectedAnomaly{
			{Type: models.AnomalyPriceSpike, Severity: models.SeverityHigh, DetectedValue: 130},
		},
	}
	svc.On("DetectAnomalies", mock.Anything, "soja", "paranagua").Return(report, nil).Once()
	svc.On("DetectAnomalies", mock.Anything, "cafe", "santos").Return(nil, models.ErrCommodityNotFound).Once()

	router := newForecastRouter(svc)
	w := serve(router, http.MethodGet, "/forecast/soja/paranagua/anomalies", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	anomalies := decode(t, w)["data"].(map[string]interface{})["anomalies"].([]interface{})
	require.Len(t, anomalies, 1)
	assert.Equal(t, "PRICE_SPIKE", anomalies[0].(map[string]interface{})["type"])

	w = serve(router, http.MethodGet, "/forecast/cafe/santos/anomalies", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestForecastHandler_ListMarkets(t *testing.T) {
	svc := &MockForecastService{}
	svc.On("ListMarkets", mock.Anything, "soja").Return([]string{"paranagua", "rio-verde"}, nil).Once()

	w := serve(newForecastRouter(svc), http.MethodGet, "/commodities/soja/markets", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"paranagua", "rio-verde"}, decode(t, w)["data"])
}

func TestForecastHandler_PredictBatch(t *testing.T) {
	svc := &MockForecastService{}
	keys := []models.CommodityKey{
		{Commodity: "soja", Market: "paranagua"},
		{Commodity: "cafe", Market: "santos"},
	}
	items := []models.BatchForecastItem{
		{CommodityKey: keys[0], Forecast: &models.CommodityForecast{CommodityKey: keys[0]}},
		{CommodityKey: keys[1], Error: "commodity not found"},
	}
	svc.On("DefaultHorizon").Return(7)
	svc.On("PredictBatch", mock.Anything, keys, 7).Return(items, nil).Once()

	w := serve(newForecastRouter(svc), http.MethodPost, "/forecast/batch", BatchForecastRequest{Items: keys})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["failed"])
	assert.Len(t, body["data"], 2)
	svc.AssertExpectations(t)
}

func TestForecastHandler_PredictBatch_BadRequests(t *testing.T) {
	svc := &MockForecastService{}
	svc.On("PredictBatch", mock.Anything, []models.CommodityKey{}, 7).
		Return(nil, utils.NewFieldError("items", "at least one commodity is required")).Once()
	router := newForecastRouter(svc)

	w := serve(router, http.MethodPost, "/forecast/batch", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, http.MethodPost, "/forecast/batch", `{"items":[{"commodity":"soja"}],"horizon":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, http.MethodPost, "/forecast/batch", `{"items":[],"horizon":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "items", decode(t, w)["field"])
}

func TestForecastHandler_PredictSeries(t *testing.T) {
	svc := &MockForecastService{}
	expected := []models.DataPoint{
		{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Value: 100},
		{Date: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), Value: 101},
	}
	svc.On("PredictSeries", mock.Anything, expected, 3).
		Return(nil, &forecast.InsufficientDataError{Required: 7, Actual: 2}).Once()

	body := PredictSeriesRequest{
		Series: []SeriesPoint{
			{Date: "2024-03-01", Value: 100},
			{Date: "2024-03-02T12:00:00Z", Value: 101},
		},
		Horizon: 3,
	}
	w := serve(newForecastRouter(svc), http.MethodPost, "/forecast/predict", body)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	svc.AssertExpectations(t)
}

func TestForecastHandler_PredictSeries_Success(t *testing.T) {
	svc := &MockForecastService{}
	svc.On("DefaultHorizon").Return(7)
	svc.On("PredictSeries", mock.Anything, mock.AnythingOfType("[]models.DataPoint"), 7).
		Return(&models.PredictionResult{Horizon: 7, Direction: models.TrendUp}, nil).Once()

	points := make([]SeriesPoint, 10)
	for i := range points {
		points[i] = SeriesPoint{Date: fmt.Sprintf("2024-03-%02d", i+1), Value: 100 + float64(i)}
	}
	w := serve(newForecastRouter(svc), http.MethodPost, "/forecast/predict", PredictSeriesRequest{Series: points})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", decode(t, w)["data"].(map[string]interface{})["direction"])
}

func TestForecastHandler_PredictSeries_InvalidPoints(t *testing.T) {
	svc := &MockForecastService{}
	router := newForecastRouter(svc)

	tests := map[string]string{
		"bad date":       `{"series":[{"date":"01/03/2024","value":100}]}`,
		"negative value": `{"series":[{"date":"2024-03-01","value":-1}]}`,
		"missing series": `{"horizon":7}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := serve(router, http.MethodPost, "/forecast/predict", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	svc.AssertNotCalled(t, "PredictSeries", mock.Anything, mock.Anything, mock.Anything)
}

func TestForecastHandler_DetectSeries(t *testing.T) {
	svc := &MockForecastService{}
	cfg := &anomaly.Config{ZScore: anomaly.Thresholds{High: 3}}
	svc.On("DetectSeries", mock.Anything, mock.AnythingOfType("[]models.DataPoint"), cfg).
		Return([]models.DetectedAnomaly{{Type: models.AnomalyHistoricalHigh, Severity: models.SeverityMedium}}).Once()

	body := `{"series":[{"date":"2024-03-01","value":100},{"date":"2024-03-02","value":130}],"config":{"zscore":{"high":3}}}`
	w := serve(newForecastRouter(svc), http.MethodPost, "/anomalies/detect", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)
	svc.AssertExpectations(t)
}

func TestForecastHandler_InvalidateCache(t *testing.T) {
	svc := &MockForecastService{}
	svc.On("InvalidateCache", mock.Anything, "soja", "paranagua").Return(3, nil).Once()
	svc.On("InvalidateCache", mock.Anything, "soja", "bad:market").
		Return(0, utils.NewFieldError("market", "invalid market")).Once()

	router := newForecastRouter(svc)
	w := serve(router, http.MethodDelete, "/forecast/soja/paranagua/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["deleted"])

	w = serve(router, http.MethodDelete, "/forecast/soja/bad:market/cache", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseHorizonList(t *testing.T) {
	horizons, err := parseHorizonList(" 7, 14 ,30")
	require.NoError(t, err)
	assert.Equal(t, []int{7, 14, 30}, horizons)

	horizons, err = parseHorizonList("")
	require.NoError(t, err)
	assert.Nil(t, horizons)

	_, err = parseHorizonList("7,,14")
	assert.Error(t, err)
}

func TestToDataPoints_TooManyPoints(t *testing.T) {
	_, err := toDataPoints(make([]SeriesPoint, maxSeriesPoints+1))
	assert.Error(t, err)
}
