package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"aquamon/config"
	"aquamon/models"
	"aquamon/services"
)

type Handler struct {
	Cfg       *config.Config
	Lifecycle *services.AlertLifecycleService
	Configs   services.ConfigRepository
}

func NewHandler(cfg *config.Config, lifecycle *services.AlertLifecycleService, configs services.ConfigRepository) *Handler {
	return &Handler{
		Cfg:       cfg,
		Lifecycle: lifecycle,
		Configs:   configs,
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GetActiveAlerts godoc
// @Summary List active alerts
// @Description Returns unresolved alerts, newest first
// @Tags alerts
// @Produce json
// @Param level query string false "Filter by level (info, warning, critical)"
// @Param type query string false "Filter by alert type"
// @Param sensor_id query string false "Filter by sensor"
// @Param measurement_only query bool false "Only threshold-violation alerts"
// @Success 200 {object} AlertsResponse
// @Router /api/alerts [get]
func (h *Handler) GetActiveAlerts(c echo.Context) error {
	filter := services.AlertFilter{
		Level:           models.AlertLevel(c.QueryParam("level")),
		Type:            models.AlertType(c.QueryParam("type")),
		SensorID:        c.QueryParam("sensor_id"),
		MeasurementOnly: c.QueryParam("measurement_only") == "true",
	}

	alerts := h.Lifecycle.ActiveAlerts(c.Request().Context(), filter)

	return c.JSON(http.StatusOK, AlertsResponse{
		Alerts: alerts,
		Count:  len(alerts),
	})
}

// CreateAlert godoc
// @Summary Create an alert
// @Description Admits a manual or external alert through the admission gate
// @Tags alerts
// @Accept json
// @Produce json
// @Success 201 {object} models.Alert
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} SkippedResponse
// @Router /api/alerts [post]
func (h *Handler) CreateAlert(c echo.Context) error {
	var req CreateAlertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	alert := &models.Alert{
		Type:      models.AlertType(req.Type),
		Level:     models.AlertLevel(req.Level),
		Title:     req.Title,
		Message:   req.Message,
		Value:     req.Value,
		ValueText: req.ValueText,
		SensorID:  req.SensorID,
		Location:  req.Location,
	}

	if strings.EqualFold(req.Source, string(models.SourceExternal)) {
		created, ok, reason, err := h.Lifecycle.CreateExternalAlert(c.Request().Context(), alert)
		if err != nil {
			return h.mapError(c, err)
		}
		if !ok {
			return c.JSON(http.StatusConflict, SkippedResponse{Skipped: true, Reason: reason})
		}
		return c.JSON(http.StatusCreated, created)
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}
	created, err := h.Lifecycle.CreateManualAlert(c.Request().Context(), alert, createdBy)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// DismissAlert godoc
// @Summary Dismiss an active alert
// @Description Resolves the alert and archives it to history
// @Tags alerts
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} models.AlertHistory
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/alerts/{id}/dismiss [post]
func (h *Handler) DismissAlert(c echo.Context) error {
	id := c.Param("id")

	var req DismissRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	history, err := h.Lifecycle.DismissAlert(c.Request().Context(), id, req.DismissedBy, req.Role, req.Reason)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

// GetAlertHistory godoc
// @Summary List archived alerts
// @Description Returns dismissed and auto-resolved alerts, newest first
// @Tags alerts
// @Produce json
// @Param sensor_id query string false "Filter by sensor"
// @Param limit query int false "Max records (default: 100, max: 500)"
// @Success 200 {object} HistoryResponse
// @Router /api/alerts/history [get]
func (h *Handler) GetAlertHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	history := h.Lifecycle.History(c.Request().Context(), c.QueryParam("sensor_id"), limit)

	return c.JSON(http.StatusOK, HistoryResponse{
		History: history,
		Count:   len(history),
	})
}

// mapError translates domain errors to HTTP status codes.
func (h *Handler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "Alert not found"})
	case errors.Is(err, services.ErrAlreadyResolved):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "Alert is already resolved"})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// CreateAlertRequest is the POST /api/alerts body.
type CreateAlertRequest struct {
	Type      string   `json:"type"`
	Level     string   `json:"level"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Value     *float64 `json:"value,omitempty"`
	ValueText string   `json:"value_text,omitempty"`
	SensorID  string   `json:"sensor_id,omitempty"`
	Location  string   `json:"location,omitempty"`
	Source    string   `json:"source,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`
}

// DismissRequest is the POST /api/alerts/{id}/dismiss body.
type DismissRequest struct {
	DismissedBy string `json:"dismissed_by"`
	Role        string `json:"role,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// AlertsResponse wraps the active alert list.
type AlertsResponse struct {
	Alerts []*models.Alert `json:"alerts"`
	Count  int             `json:"count"`
}

// HistoryResponse wraps the archived alert list.
type HistoryResponse struct {
	History []*models.AlertHistory `json:"history"`
	Count   int                    `json:"count"`
}

// SkippedResponse reports an admission-gate rejection.
type SkippedResponse struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
}
