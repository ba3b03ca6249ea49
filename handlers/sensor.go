package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"aquamon/models"
)

// GetSensorConfig godoc
// @Summary Get a sensor's alert configuration
// @Tags sensors
// @Produce json
// @Param id path string true "Sensor ID"
// @Success 200 {object} models.SensorAlertConfig
// @Failure 404 {object} ErrorResponse
// @Router /api/sensors/{id}/config [get]
func (h *Handler) GetSensorConfig(c echo.Context) error {
	cfg, err := h.Configs.GetConfig(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
	if cfg == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "Sensor config not found"})
	}
	return c.JSON(http.StatusOK, cfg)
}

// UpdateSensorConfig godoc
// @Summary Create or update a sensor's alert configuration
// @Tags sensors
// @Accept json
// @Produce json
// @Param id path string true "Sensor ID"
// @Success 200 {object} models.SensorAlertConfig
// @Failure 400 {object} ErrorResponse
// @Router /api/sensors/{id}/config [put]
func (h *Handler) UpdateSensorConfig(c echo.Context) error {
	var cfg models.SensorAlertConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	cfg.SensorID = c.Param("id")
	if err := cfg.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := h.Configs.UpsertConfig(c.Request().Context(), &cfg); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
	return c.JSON(http.StatusOK, cfg)
}

// RemoveSensor godoc
// @Summary Decommission a sensor
// @Description Archives all active alerts for the sensor and disables its config
// @Tags sensors
// @Produce json
// @Param id path string true "Sensor ID"
// @Success 200 {object} RemoveSensorResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/sensors/{id} [delete]
func (h *Handler) RemoveSensor(c echo.Context) error {
	archived, err := h.Lifecycle.RemoveSensor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, RemoveSensorResponse{
		SensorID:       c.Param("id"),
		AlertsArchived: archived,
	})
}

// RemoveSensorResponse reports the outcome of a sensor decommission.
type RemoveSensorResponse struct {
	SensorID       string `json:"sensor_id"`
	AlertsArchived int    `json:"alerts_archived"`
}
