package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aquamon/models"
)

// AlertStore owns the active-alert lifecycle: the admission gate at
// creation, dismissal with move-to-history, and bulk archival. The
// check-then-insert for a given (sensor_id, type) key is serialized by a
// per-key lock; a unique partial index in MongoDB backs the same invariant
// against direct writes.
type AlertStore struct {
	repo                AlertRepository
	oracle              ConnectivityOracle
	audit               *AuditService
	connectivityMinutes int

	keyMu    sync.Mutex
	keyLocks map[string]*sync.Mutex

	// Archive tasks run on a single background worker. When the queue is
	// full or the worker is stopped, the caller runs the task
	// synchronously so no alert is ever left resolved-but-active.
	tasks    chan func()
	stopOnce sync.Once
	stopped  chan struct{}

	now func() time.Time
}

func NewAlertStore(repo AlertRepository, oracle ConnectivityOracle, audit *AuditService, connectivityMinutes int) *AlertStore {
	return &AlertStore{
		repo:                repo,
		oracle:              oracle,
		audit:               audit,
		connectivityMinutes: connectivityMinutes,
		keyLocks:            make(map[string]*sync.Mutex),
		tasks:               make(chan func(), 64),
		stopped:             make(chan struct{}),
		now:                 time.Now,
	}
}

// Start launches the archive worker.
func (s *AlertStore) Start() {
	go func() {
		for {
			select {
			case task := <-s.tasks:
				task()
			case <-s.stopped:
				return
			}
		}
	}()
}

func (s *AlertStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// submit attempts to enqueue a task for the background worker and reports
// whether it was accepted. Callers fall back to running it synchronously.
func (s *AlertStore) submit(task func()) bool {
	select {
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.tasks <- task:
		return true
	default:
		return false
	}
}

func (s *AlertStore) lockKey(sensorID string, alertType models.AlertType) *sync.Mutex {
	key := sensorID + "|" + string(alertType)
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	mu, ok := s.keyLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.keyLocks[key] = mu
	}
	return mu
}

// CreateIfAdmissible runs the admission gate and persists the alert when
// every gate passes. A gate failure is a skip, not an error: the returned
// reason says which gate stopped the alert.
func (s *AlertStore) CreateIfAdmissible(ctx context.Context, alert *models.Alert) (string, bool, string, error) {
	if alert.Source == "" {
		alert.Source = models.SourceSystem
	}

	if alert.Type.IsMeasurement() {
		if alert.SensorID == "" {
			s.auditAdmission(ctx, alert, false, "measurement alert without sensor id")
			return "", false, "measurement alert requires a sensor id", nil
		}

		// Fail-closed: when connectivity cannot be determined, skip
		// creation rather than risk a false positive.
		connected, err := s.oracle.IsConnected(ctx, alert.SensorID, s.connectivityMinutes)
		if err != nil {
			log.Printf("AlertStore: connectivity check failed for %s: %v (skipping)", alert.SensorID, err)
			s.auditAdmission(ctx, alert, false, "connectivity check failed")
			return "", false, "connectivity undetermined", nil
		}
		if !connected {
			s.auditAdmission(ctx, alert, false, "sensor disconnected")
			return "", false, "sensor disconnected", nil
		}
	}

	if alert.SensorID != "" {
		mu := s.lockKey(alert.SensorID, alert.Type)
		mu.Lock()
		defer mu.Unlock()

		existing, err := s.repo.FindActiveAlert(ctx, alert.SensorID, alert.Type)
		if err != nil {
			log.Printf("AlertStore: duplicate check failed: %v", err)
			return "", false, "", fmt.Errorf("%w: %v", ErrRepository, err)
		}
		if existing != nil {
			s.auditAdmission(ctx, alert, false, "duplicate of "+existing.ID)
			return "", false, "an unresolved alert of this type already exists for the sensor", nil
		}
	}

	alert.ID = uuid.New().String()
	alert.IsResolved = false
	alert.Status = "active"
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now().UTC()
	}

	if err := s.repo.InsertAlert(ctx, alert); err != nil {
		log.Printf("AlertStore: insert failed for %s/%s: %v", alert.SensorID, alert.Type, err)
		return "", false, "", fmt.Errorf("%w: %v", ErrRepository, err)
	}

	s.auditAdmission(ctx, alert, true, "")
	return alert.ID, true, "", nil
}

// GetActive lists unresolved alerts newest-first. On a repository failure
// the read degrades to an empty result with a logged error so dashboards
// stay available.
func (s *AlertStore) GetActive(ctx context.Context, filter AlertFilter) []*models.Alert {
	alerts, err := s.repo.ListActiveAlerts(ctx, filter)
	if err != nil {
		log.Printf("AlertStore: listing active alerts failed: %v", err)
		return []*models.Alert{}
	}
	return alerts
}

// Dismiss resolves an active alert and archives it. The history insert and
// active delete are attempted on the background worker; when the task
// cannot be scheduled they run synchronously in this call. Returns the
// archived record so callers can clear notification throttles.
func (s *AlertStore) Dismiss(ctx context.Context, alertID, dismissedBy, role, reason string, at time.Time) (*models.AlertHistory, error) {
	alert, err := s.repo.FindAlertByID(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepository, err)
	}
	if alert == nil {
		return nil, fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}
	if alert.IsResolved {
		return nil, fmt.Errorf("%w: alert %s", ErrAlreadyResolved, alertID)
	}

	at = at.UTC()
	resolution := models.ResolutionManualDismiss
	if isSystemActor(dismissedBy) {
		resolution = models.ResolutionAutoResolved
	}

	archived := *alert
	archived.IsResolved = true
	archived.Status = "resolved"

	history := &models.AlertHistory{
		Alert:           archived,
		ResolvedAt:      at,
		DismissedAt:     at,
		DismissedBy:     dismissedBy,
		DismissedByRole: role,
		Reason:          reason,
		ResolutionType:  resolution,
		DurationMinutes: int64(at.Sub(alert.CreatedAt.UTC()).Minutes()),
		ArchivedAt:      s.now().UTC(),
	}
	if history.DurationMinutes < 0 {
		history.DurationMinutes = 0
	}

	// The repository flips is_resolved only when it is still false, so of
	// two concurrent dismissals exactly one reaches the archive step.
	if err := s.repo.MarkAlertResolved(ctx, alertID, at); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return nil, fmt.Errorf("%w: alert %s", ErrAlreadyResolved, alertID)
		}
		return nil, fmt.Errorf("%w: %v", ErrRepository, err)
	}

	archive := func() {
		actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.archive(actx, history); err != nil {
			log.Printf("AlertStore: archiving alert %s failed: %v", alertID, err)
		}
	}

	if !s.submit(archive) {
		// Could not enqueue: finish the move in this call.
		if err := s.archive(ctx, history); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRepository, err)
		}
	}

	s.audit.Record(ctx, &models.AuditEntry{
		Actor:    dismissedBy,
		Action:   "alert_dismissed",
		AlertID:  alertID,
		SensorID: alert.SensorID,
		Detail: map[string]interface{}{
			"reason":          reason,
			"resolution_type": string(resolution),
		},
	})

	return history, nil
}

// archive moves one resolved alert to history: insert first so the record
// can never be lost, then delete the active document.
func (s *AlertStore) archive(ctx context.Context, history *models.AlertHistory) error {
	if err := s.repo.InsertAlertHistory(ctx, history); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	if err := s.repo.DeleteAlert(ctx, history.ID); err != nil {
		return fmt.Errorf("delete active: %w", err)
	}
	return nil
}

// ArchiveAllForSensor bulk-dismisses every unresolved alert for a sensor,
// used when a sensor is deliberately removed. Each alert goes through the
// same move-to-history path with actor "system".
func (s *AlertStore) ArchiveAllForSensor(ctx context.Context, sensorID string) int {
	alerts, err := s.repo.ListActiveAlerts(ctx, AlertFilter{SensorID: sensorID})
	if err != nil {
		log.Printf("AlertStore: listing alerts for sensor %s failed: %v", sensorID, err)
		return 0
	}

	count := 0
	at := s.now().UTC()
	for _, alert := range alerts {
		if _, err := s.Dismiss(ctx, alert.ID, "system", "", "sensor removed", at); err != nil {
			log.Printf("AlertStore: bulk dismiss of %s failed: %v", alert.ID, err)
			continue
		}
		count++
	}
	return count
}

// History returns archived records, newest-first.
func (s *AlertStore) History(ctx context.Context, sensorID string, limit int) []*models.AlertHistory {
	entries, err := s.repo.ListAlertHistory(ctx, sensorID, limit)
	if err != nil {
		log.Printf("AlertStore: listing history failed: %v", err)
		return []*models.AlertHistory{}
	}
	return entries
}

func (s *AlertStore) auditAdmission(ctx context.Context, alert *models.Alert, admitted bool, reason string) {
	detail := map[string]interface{}{
		"type":     string(alert.Type),
		"level":    string(alert.Level),
		"admitted": admitted,
	}
	if reason != "" {
		detail["reason"] = reason
	}
	s.audit.Record(ctx, &models.AuditEntry{
		Actor:    string(alert.Source),
		Action:   "alert_admission",
		AlertID:  alert.ID,
		SensorID: alert.SensorID,
		Detail:   detail,
	})
}

func isSystemActor(actor string) bool {
	return actor == "system" || strings.HasPrefix(actor, "system:")
}
