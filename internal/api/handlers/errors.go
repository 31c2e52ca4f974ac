package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/commodity-forecast/internal/forecast"
	"github.com/irfndi/commodity-forecast/internal/middleware"
	"github.com/irfndi/commodity-forecast/internal/models"
	"github.com/irfndi/commodity-forecast/internal/services"
	"github.com/irfndi/commodity-forecast/internal/utils"
)

// statusForError maps service errors onto HTTP status codes. A short history
// is the caller's problem, not a server fault.
func statusForError(err error) int {
	var validation *utils.ValidationError
	switch {
	case errors.As(err, &validation), errors.Is(err, forecast.ErrInvalidHorizon):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrCommodityNotFound):
		return http.StatusNotFound
	case errors.Is(err, forecast.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusForError(err)
	body := gin.H{
		"success": false,
		"error":   err.Error(),
	}

	var validation *utils.ValidationError
	if errors.As(err, &validation) && validation.Field != "" {
		body["field"] = validation.Field
	}
	if status >= http.StatusInternalServerError {
		middleware.RecordError(c, err, http.StatusText(status))
		_ = c.Error(err)
		body["error"] = http.StatusText(status)
	}
	c.JSON(status, body)
}

func writeBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
	})
}
