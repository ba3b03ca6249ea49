package services

import (
	"context"
	"time"

	"aquamon/models"
)

// AlertFilter narrows active-alert queries.
type AlertFilter struct {
	Level           models.AlertLevel
	Type            models.AlertType
	SensorID        string
	MeasurementOnly bool
}

// AlertRepository is the persistence contract for active alerts and their
// archival records. MongoDBService implements it; tests substitute fakes.
type AlertRepository interface {
	InsertAlert(ctx context.Context, alert *models.Alert) error
	FindAlertByID(ctx context.Context, id string) (*models.Alert, error)
	// FindActiveAlert returns the unresolved alert for (sensorID, type),
	// or (nil, nil) when none exists.
	FindActiveAlert(ctx context.Context, sensorID string, alertType models.AlertType) (*models.Alert, error)
	ListActiveAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
	// MarkAlertResolved flips is_resolved only while it is still false,
	// returning ErrAlreadyResolved when another dismissal already won.
	MarkAlertResolved(ctx context.Context, id string, at time.Time) error
	DeleteAlert(ctx context.Context, id string) error
	InsertAlertHistory(ctx context.Context, history *models.AlertHistory) error
	ListAlertHistory(ctx context.Context, sensorID string, limit int) ([]*models.AlertHistory, error)
}

// ConfigRepository stores the per-sensor alert configuration.
type ConfigRepository interface {
	ListEnabledConfigs(ctx context.Context) ([]*models.SensorAlertConfig, error)
	GetConfig(ctx context.Context, sensorID string) (*models.SensorAlertConfig, error)
	UpsertConfig(ctx context.Context, cfg *models.SensorAlertConfig) error
}

// ReadingRepository answers "most recent reading for any of these aliases".
type ReadingRepository interface {
	// LatestReading returns (nil, nil) when no reading exists.
	LatestReading(ctx context.Context, aliases []string) (*models.SensorReading, error)
}

// NotificationRepository persists delivery-attempt audit records.
type NotificationRepository interface {
	InsertNotificationRecord(ctx context.Context, rec *models.NotificationRecord) error
}

// AuditRepository is the append-only audit sink.
type AuditRepository interface {
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// RecipientDirectory resolves admin recipients, preferring a
// location-scoped group and falling back to the global admin list.
type RecipientDirectory interface {
	AdminsForLocation(ctx context.Context, location string) ([]models.Recipient, error)
	Admins(ctx context.Context) ([]models.Recipient, error)
}

// ConnectivityOracle decides whether a sensor is presumed online.
type ConnectivityOracle interface {
	IsConnected(ctx context.Context, sensorID string, thresholdMinutes int) (bool, error)
}

// AliasInvalidator drops a cached alias resolution when the sensor's
// configuration changes or the sensor is removed.
type AliasInvalidator interface {
	InvalidateAlias(sensorID string)
}
