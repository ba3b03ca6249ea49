package models

import "time"

// AlertType identifies what kind of condition an alert reports.
type AlertType string

const (
	AlertTypePH            AlertType = "ph"
	AlertTypeTemperature   AlertType = "temperature"
	AlertTypeEC            AlertType = "ec"
	AlertTypeWaterLevel    AlertType = "water_level"
	AlertTypeDisconnection AlertType = "sensor_disconnection"
	AlertTypeManual        AlertType = "manual"
)

// MeasurementTypes lists the alert types tied to an out-of-range reading,
// in the order the monitor evaluates them.
var MeasurementTypes = []AlertType{
	AlertTypePH,
	AlertTypeTemperature,
	AlertTypeEC,
	AlertTypeWaterLevel,
}

// IsMeasurement reports whether the type corresponds to a sensor reading
// out of range, as opposed to connectivity or manual/system alerts.
func (t AlertType) IsMeasurement() bool {
	switch t {
	case AlertTypePH, AlertTypeTemperature, AlertTypeEC, AlertTypeWaterLevel:
		return true
	}
	return false
}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	return t.IsMeasurement() || t == AlertTypeDisconnection || t == AlertTypeManual
}

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// AlertSource records which path created an alert.
type AlertSource string

const (
	SourceSystem   AlertSource = "system"
	SourceManual   AlertSource = "manual"
	SourceExternal AlertSource = "external"
)

// Alert is an active (unresolved) alert. At most one unresolved alert
// exists per (sensor_id, type) pair; the store enforces this at creation.
type Alert struct {
	ID            string      `bson:"id" json:"id"`
	Type          AlertType   `bson:"type" json:"type"`
	Level         AlertLevel  `bson:"level" json:"level"`
	Title         string      `bson:"title" json:"title"`
	Message       string      `bson:"message" json:"message"`
	Value         *float64    `bson:"value,omitempty" json:"value,omitempty"`
	ValueText     string      `bson:"value_text,omitempty" json:"value_text,omitempty"`
	ThresholdInfo string      `bson:"threshold_info,omitempty" json:"threshold_info,omitempty"`
	Location      string      `bson:"location,omitempty" json:"location,omitempty"`
	SensorID      string      `bson:"sensor_id,omitempty" json:"sensor_id,omitempty"`
	Source        AlertSource `bson:"source" json:"source"`
	Status        string      `bson:"status" json:"status"`
	IsResolved    bool        `bson:"is_resolved" json:"is_resolved"`
	CreatedAt     time.Time   `bson:"created_at" json:"created_at"`
}

// ResolutionType distinguishes operator dismissals from system cleanup.
type ResolutionType string

const (
	ResolutionManualDismiss ResolutionType = "manual_dismiss"
	ResolutionAutoResolved  ResolutionType = "auto_resolved"
)

// AlertHistory is the immutable archival record created exactly once when
// an alert is resolved. It carries the full alert plus resolution metadata.
type AlertHistory struct {
	Alert           `bson:",inline"`
	ResolvedAt      time.Time      `bson:"resolved_at" json:"resolved_at"`
	DismissedAt     time.Time      `bson:"dismissed_at" json:"dismissed_at"`
	DismissedBy     string         `bson:"dismissed_by" json:"dismissed_by"`
	DismissedByRole string         `bson:"dismissed_by_role,omitempty" json:"dismissed_by_role,omitempty"`
	Reason          string         `bson:"reason,omitempty" json:"reason,omitempty"`
	ResolutionType  ResolutionType `bson:"resolution_type" json:"resolution_type"`
	DurationMinutes int64          `bson:"duration_minutes" json:"duration_minutes"`
	ArchivedAt      time.Time      `bson:"archived_at" json:"archived_at"`
}

// AuditEntry is an append-only record of an admission decision, dismissal,
// reconciler action, or notification attempt.
type AuditEntry struct {
	ID        string                 `bson:"id" json:"id"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
	Actor     string                 `bson:"actor" json:"actor"`
	Action    string                 `bson:"action" json:"action"`
	AlertID   string                 `bson:"alert_id,omitempty" json:"alert_id,omitempty"`
	SensorID  string                 `bson:"sensor_id,omitempty" json:"sensor_id,omitempty"`
	Detail    map[string]interface{} `bson:"detail,omitempty" json:"detail,omitempty"`
}
