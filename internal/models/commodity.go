package models

import (
	"errors"
	"time"
)

// CommodityKey identifies one price series: a commodity quoted at a market (praça).
type CommodityKey struct {
	Commodity string `json:"commodity" binding:"required"`
	Market    string `json:"market" binding:"required"`
}

// SeriesInfo summarizes the history a result was computed from.
type SeriesInfo struct {
	Points    int       `json:"points"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
}

// CommodityForecast wraps a prediction with the series it belongs to.
type CommodityForecast struct {
	CommodityKey
	DisplayName string           `json:"display_name"`
	Series      SeriesInfo       `json:"series"`
	Prediction  PredictionResult `json:"prediction"`
	Cached      bool             `json:"cached"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// HorizonForecast holds predictions for several horizons of one series.
// Horizons that failed are absent from Predictions.
type HorizonForecast struct {
	CommodityKey
	DisplayName string                   `json:"display_name"`
	Series      SeriesInfo               `json:"series"`
	Predictions map[int]PredictionResult `json:"predictions"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// AnomalyReport lists the anomalies detected on one series.
type AnomalyReport struct {
	CommodityKey
	DisplayName string            `json:"display_name"`
	Series      SeriesInfo        `json:"series"`
	Anomalies   []DetectedAnomaly `json:"anomalies"`
	Cached      bool              `json:"cached"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// BatchForecastItem is one entry of a batch prediction; Error is set when it failed.
type BatchForecastItem struct {
	CommodityKey
	Forecast *CommodityForecast `json:"forecast,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// ErrCommodityNotFound is returned when no price history exists for a series.
var ErrCommodityNotFound = errors.New("commodity not found")
