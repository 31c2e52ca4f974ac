package api

import (
	"github.com/gin-gonic/gin"
	"github.com/irfndi/commodity-forecast/internal/api/handlers"
	"github.com/irfndi/commodity-forecast/internal/middleware"
)

// SetupRoutes registers the health and forecast endpoints. Cache
// invalidation sits behind the admin key.
func SetupRoutes(router *gin.Engine, forecastHandler *handlers.ForecastHandler, healthHandler *handlers.HealthHandler, admin *middleware.AdminMiddleware) {
	// Health check endpoints
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		forecast := v1.Group("/forecast")
		{
			forecast.POST("/batch", forecastHandler.PredictBatch)
			forecast.POST("/predict", forecastHandler.PredictSeries)
			forecast.GET("/:commodity/:market", forecastHandler.GetForecast)
			forecast.GET("/:commodity/:market/horizons", forecastHandler.GetHorizons)
			forecast.GET("/:commodity/:market/anomalies", forecastHandler.GetAnomalies)
			forecast.DELETE("/:commodity/:market/cache", admin.RequireAdminAuth(), forecastHandler.InvalidateCache)
		}

		anomalies := v1.Group("/anomalies")
		{
			anomalies.POST("/detect", forecastHandler.DetectSeries)
		}

		commodities := v1.Group("/commodities")
		{
			commodities.GET("/:commodity/markets", forecastHandler.ListMarkets)
		}
	}
}
