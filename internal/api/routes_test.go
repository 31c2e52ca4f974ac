package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/commodity-forecast/internal/anomaly"
	"github.com/irfndi/commodity-forecast/internal/api/handlers"
	"github.com/irfndi/commodity-forecast/internal/middleware"
	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/stretchr/testify/assert"
)

type stubService struct {
	invalidated int
}

func (s *stubService) DefaultHorizon() int { return 7 }

func (s *stubService) PredictPrice(ctx context.Context, commodity, market string, horizon int) (*models.CommodityForecast, error) {
	return &models.CommodityForecast{CommodityKey: models.CommodityKey{Commodity: commodity, Market: market}}, nil
}

func (s *stubService) PredictHorizons(ctx context.Context, commodity, market string, horizons []int) (*models.HorizonForecast, error) {
	return &models.HorizonForecast{}, nil
}

func (s *stubService) DetectAnomalies(ctx context.Context, commodity, market string) (*models.AnomalyReport, error) {
	return &models.AnomalyReport{Anomalies: []models.DetectedAnomaly{}}, nil
}

func (s *stubService) PredictBatch(ctx context.Context, keys []models.CommodityKey, horizon int) ([]models.BatchForecastItem, error) {
	return []models.BatchForecastItem{}, nil
}

func (s *stubService) PredictSeries(ctx context.Context, series []models.DataPoint, horizon int) (*models.PredictionResult, error) {
	return &models.PredictionResult{}, nil
}

func (s *stubService) DetectSeries(ctx context.Context, series []models.DataPoint, cfg *anomaly.Config) []models.DetectedAnomaly {
	return []models.DetectedAnomaly{}
}

func (s *stubService) ListMarkets(ctx context.Context, commodity string) ([]string, error) {
	return []string{"paranagua"}, nil
}

func (s *stubService) InvalidateCache(ctx context.Context, commodity, market string) (int, error) {
	s.invalidated++
	return 2, nil
}

type okChecker struct{}

func (okChecker) HealthCheck(context.Context) error { return nil }

func newTestRouter(svc *stubService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router,
		handlers.NewForecastHandler(svc, nil),
		handlers.NewHealthHandler(okChecker{}, nil, nil, nil, "test"),
		middleware.NewAdminMiddleware("admin-key"),
	)
	return router
}

func TestSetupRoutes_RegistersEndpoints(t *testing.T) {
	router := newTestRouter(&stubService{})

	registered := map[string]bool{}
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /live",
		"GET /api/v1/forecast/:commodity/:market",
		"GET /api/v1/forecast/:commodity/:market/horizons",
		"GET /api/v1/forecast/:commodity/:market/anomalies",
		"DELETE /api/v1/forecast/:commodity/:market/cache",
		"POST /api/v1/forecast/batch",
		"POST /api/v1/forecast/predict",
		"POST /api/v1/anomalies/detect",
		"GET /api/v1/commodities/:commodity/markets",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestSetupRoutes_Serves(t *testing.T) {
	router := newTestRouter(&stubService{})

	for _, path := range []string{
		"/health",
		"/api/v1/forecast/soja/paranagua",
		"/api/v1/forecast/soja/paranagua/anomalies",
		"/api/v1/commodities/soja/markets",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSetupRoutes_CacheInvalidationRequiresAdminKey(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/forecast/soja/paranagua/cache", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, svc.invalidated)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/forecast/soja/paranagua/cache", nil)
	req.Header.Set("X-API-Key", "admin-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.invalidated)
}
