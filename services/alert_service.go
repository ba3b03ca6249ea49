package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"aquamon/models"
)

// AlertLifecycleService is the facade the HTTP layer and the scheduler
// loops talk to. It composes the admission gate, the dispatcher, and the
// throttle into the full create/notify/dismiss lifecycle.
type AlertLifecycleService struct {
	store      *AlertStore
	dispatcher *NotificationDispatcher
	throttle   *NotificationThrottle
	configs    ConfigRepository
	audit      *AuditService
	aliases    AliasInvalidator

	now func() time.Time
}

func NewAlertLifecycleService(store *AlertStore, dispatcher *NotificationDispatcher, throttle *NotificationThrottle, configs ConfigRepository, audit *AuditService, aliases AliasInvalidator) *AlertLifecycleService {
	return &AlertLifecycleService{
		store:      store,
		dispatcher: dispatcher,
		throttle:   throttle,
		configs:    configs,
		audit:      audit,
		aliases:    aliases,
		now:        time.Now,
	}
}

// CreateManualAlert validates and admits an operator-authored alert.
// Manual alerts skip the connectivity gate but still dedup against an
// existing active alert when a sensor is named.
func (ls *AlertLifecycleService) CreateManualAlert(ctx context.Context, alert *models.Alert, createdBy string) (*models.Alert, error) {
	if alert == nil {
		return nil, fmt.Errorf("%w: alert body required", ErrValidation)
	}
	if strings.TrimSpace(alert.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(alert.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if alert.Level != "" && alert.Level != models.LevelInfo && alert.Level != models.LevelWarning && alert.Level != models.LevelCritical {
		return nil, fmt.Errorf("%w: unknown level %q", ErrValidation, alert.Level)
	}
	if alert.Level == "" {
		alert.Level = models.LevelInfo
	}
	if alert.Type == "" {
		alert.Type = models.AlertTypeManual
	}
	if !alert.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown alert type %q", ErrValidation, alert.Type)
	}
	alert.Source = models.SourceManual

	id, created, reason, err := ls.store.CreateIfAdmissible(ctx, alert)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("%w: %s", ErrValidation, reason)
	}
	alert.ID = id

	ls.audit.Record(ctx, &models.AuditEntry{
		Actor:   createdBy,
		Action:  "manual_alert_created",
		AlertID: id,
	})

	ls.notifyForAlert(ctx, alert)
	return alert, nil
}

// CreateExternalAlert admits an alert pushed by an external integration.
// External alerts go through the full admission gate, connectivity
// included, because the caller is reporting on behalf of a sensor.
func (ls *AlertLifecycleService) CreateExternalAlert(ctx context.Context, alert *models.Alert) (*models.Alert, bool, string, error) {
	if alert == nil {
		return nil, false, "", fmt.Errorf("%w: alert body required", ErrValidation)
	}
	if !alert.Type.Valid() {
		return nil, false, "", fmt.Errorf("%w: unknown alert type %q", ErrValidation, alert.Type)
	}
	alert.Source = models.SourceExternal

	id, created, reason, err := ls.store.CreateIfAdmissible(ctx, alert)
	if err != nil {
		return nil, false, "", err
	}
	if !created {
		return nil, false, reason, nil
	}
	alert.ID = id

	ls.notifyForAlert(ctx, alert)
	return alert, true, "", nil
}

// DismissAlert archives an active alert on behalf of a named operator and
// clears the throttle window for its (sensor, type) pair so a recurrence
// notifies immediately.
func (ls *AlertLifecycleService) DismissAlert(ctx context.Context, alertID, dismissedBy, role, reason string) (*models.AlertHistory, error) {
	if strings.TrimSpace(alertID) == "" {
		return nil, fmt.Errorf("%w: alert id is required", ErrValidation)
	}
	if strings.TrimSpace(dismissedBy) == "" {
		return nil, fmt.Errorf("%w: dismissed_by is required", ErrValidation)
	}

	history, err := ls.store.Dismiss(ctx, alertID, dismissedBy, role, reason, ls.now().UTC())
	if err != nil {
		return nil, err
	}

	ls.throttle.ClearForAlert(history.Type, history.SensorID)
	return history, nil
}

// DismissBySystem resolves an alert on behalf of an internal actor, used
// by the reconciler when a disconnected sensor comes back.
func (ls *AlertLifecycleService) DismissBySystem(ctx context.Context, alertID, actor, reason string) (*models.AlertHistory, error) {
	history, err := ls.store.Dismiss(ctx, alertID, actor, "system", reason, ls.now().UTC())
	if err != nil {
		return nil, err
	}
	ls.throttle.ClearForAlert(history.Type, history.SensorID)
	return history, nil
}

// ActiveAlerts lists unresolved alerts, degrading to empty on repository
// failure.
func (ls *AlertLifecycleService) ActiveAlerts(ctx context.Context, filter AlertFilter) []*models.Alert {
	return ls.store.GetActive(ctx, filter)
}

// History lists archived alerts, newest first.
func (ls *AlertLifecycleService) History(ctx context.Context, sensorID string, limit int) []*models.AlertHistory {
	return ls.store.History(ctx, sensorID, limit)
}

// RemoveSensor archives every active alert for a sensor, then disables
// its configuration. Called when a sensor is decommissioned.
func (ls *AlertLifecycleService) RemoveSensor(ctx context.Context, sensorID string) (int, error) {
	if strings.TrimSpace(sensorID) == "" {
		return 0, fmt.Errorf("%w: sensor id is required", ErrValidation)
	}

	archived := ls.store.ArchiveAllForSensor(ctx, sensorID)

	// The cached alias resolution embeds the reservoir id from the
	// configuration being retired; drop it so a re-registered sensor
	// resolves fresh.
	if ls.aliases != nil {
		ls.aliases.InvalidateAlias(sensorID)
	}

	cfg, err := ls.configs.GetConfig(ctx, sensorID)
	if err != nil {
		log.Printf("Lifecycle: config lookup for %s failed during removal: %v", sensorID, err)
		return archived, nil
	}
	if cfg != nil && cfg.Enabled {
		cfg.Enabled = false
		cfg.UpdatedAt = ls.now().UTC()
		if err := ls.configs.UpsertConfig(ctx, cfg); err != nil {
			log.Printf("Lifecycle: failed to disable config for %s: %v", sensorID, err)
		}
	}

	ls.audit.Record(ctx, &models.AuditEntry{
		Actor:    "system",
		Action:   "sensor_removed",
		SensorID: sensorID,
		Detail:   map[string]interface{}{"alerts_archived": archived},
	})
	return archived, nil
}

// notifyForAlert dispatches an admitted alert over the channels the
// sensor's configuration allows. Only warning and critical levels notify.
func (ls *AlertLifecycleService) notifyForAlert(ctx context.Context, alert *models.Alert) {
	if alert.Level == models.LevelInfo {
		return
	}

	opts := ls.channelOptions(ctx, alert.SensorID)
	counts := ls.dispatcher.Notify(ctx, alert, opts)
	log.Printf("Lifecycle: alert %s dispatched (email %d/%d, whatsapp %d/%d, ops %d, throttled %d)",
		alert.ID, counts.EmailSent, counts.EmailSent+counts.EmailFailed,
		counts.WhatsAppSent, counts.WhatsAppSent+counts.WhatsAppFailed,
		counts.OpsSent, counts.Throttled)
}

// channelOptions reads the sensor's channel flags. Missing config or a
// lookup failure leaves every channel enabled: delivery fails open.
func (ls *AlertLifecycleService) channelOptions(ctx context.Context, sensorID string) ChannelOptions {
	if sensorID == "" {
		return ChannelOptions{}
	}
	cfg, err := ls.configs.GetConfig(ctx, sensorID)
	if err != nil {
		log.Printf("Lifecycle: config lookup for %s failed, notifying on all channels: %v", sensorID, err)
		return ChannelOptions{}
	}
	if cfg == nil || !cfg.NotificationEnabled {
		if cfg != nil {
			return ChannelOptions{EmailDisabled: true, WhatsAppDisabled: true}
		}
		return ChannelOptions{}
	}
	return ChannelOptions{
		EmailDisabled:    !cfg.EmailEnabled,
		WhatsAppDisabled: !cfg.WhatsAppEnabled,
	}
}
