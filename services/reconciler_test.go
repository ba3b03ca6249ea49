package services

import (
	"context"
	"testing"
	"time"

	"aquamon/models"
)

func seedMeasurementAlert(t *testing.T, store *AlertStore, sensorID string, alertType models.AlertType) string {
	t.Helper()
	alert := &models.Alert{
		Type:     alertType,
		Level:    models.LevelWarning,
		Title:    string(alertType) + " out of range",
		Message:  "m",
		SensorID: sensorID,
	}
	id, created, _, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil || !created {
		t.Fatalf("seed %s/%s: created=%v err=%v", sensorID, alertType, created, err)
	}
	return id
}

func TestReconcilerResolvesStaleMeasurementAlerts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeAlertRepo()
	configs := newFakeConfigRepo()

	cs := NewConnectivityService(&fakeReadingRepo{}, configs)
	cs.now = func() time.Time { return now }
	lifecycle, throttle := newTestLifecycle(repo, configs, cs)
	defer throttle.Stop()

	store := lifecycle.store

	// Both sensors were connected when the alerts were admitted; then
	// sensor_gone stopped reporting.
	cs.NoteReading("sensor_ok", now.Add(-time.Minute))
	cs.NoteReading("sensor_gone", now.Add(-time.Minute))
	seedMeasurementAlert(t, store, "sensor_ok", models.AlertTypePH)
	staleID := seedMeasurementAlert(t, store, "sensor_gone", models.AlertTypePH)

	now = now.Add(20 * time.Minute)
	cs.NoteReading("sensor_ok", now.Add(-time.Minute))

	audit := &fakeAuditRepo{}
	r := NewAlertReconciler(store, lifecycle, cs, NewAuditService(audit), time.Minute, 15)
	r.reconcile()

	remaining, _ := repo.ListActiveAlerts(context.Background(), AlertFilter{MeasurementOnly: true})
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining measurement alert, got %d", len(remaining))
	}
	if remaining[0].SensorID != "sensor_ok" {
		t.Fatalf("the reporting sensor's alert should survive, got %s", remaining[0].SensorID)
	}

	history, _ := repo.ListAlertHistory(context.Background(), "sensor_gone", 0)
	if len(history) != 1 {
		t.Fatalf("expected 1 archived record for sensor_gone, got %d", len(history))
	}
	if history[0].ID != staleID {
		t.Fatalf("wrong alert archived: %s", history[0].ID)
	}
	if history[0].ResolutionType != models.ResolutionAutoResolved {
		t.Fatalf("reconciler dismissal should be auto_resolved, got %s", history[0].ResolutionType)
	}
	if history[0].DismissedBy != "system:reconciler" || history[0].Reason != "sensor disconnected" {
		t.Fatalf("unexpected dismissal metadata: %+v", history[0])
	}

	// Before and after states are both recorded.
	var before, after bool
	for _, e := range audit.entries {
		switch e.Action {
		case "reconcile_before":
			before = true
		case "reconcile_after":
			after = true
		}
	}
	if !before || !after {
		t.Fatalf("expected before and after audit records, got before=%v after=%v", before, after)
	}
}

func TestReconcilerClearsThrottleOnResolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeAlertRepo()
	configs := newFakeConfigRepo()

	cs := NewConnectivityService(&fakeReadingRepo{}, configs)
	cs.now = func() time.Time { return now }
	lifecycle, throttle := newTestLifecycle(repo, configs, cs)
	defer throttle.Stop()

	cs.NoteReading("sensor_gone", now.Add(-time.Minute))
	seedMeasurementAlert(t, lifecycle.store, "sensor_gone", models.AlertTypePH)

	// Simulate an earlier notification still inside its cooldown.
	key := models.ThrottleKey(models.ChannelEmail, models.AlertTypePH, "sensor_gone", "maria@example.com")
	throttle.MarkSent(key)

	now = now.Add(20 * time.Minute)

	r := NewAlertReconciler(lifecycle.store, lifecycle, cs, NewAuditService(&fakeAuditRepo{}), time.Minute, 15)
	r.reconcile()

	if !throttle.ShouldSend(key) {
		t.Fatal("resolving the alert should clear its throttle window")
	}
}

func TestReconcilerLeavesHealthySensorsAlone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeAlertRepo()
	configs := newFakeConfigRepo()

	cs := NewConnectivityService(&fakeReadingRepo{}, configs)
	cs.now = func() time.Time { return now }
	lifecycle, throttle := newTestLifecycle(repo, configs, cs)
	defer throttle.Stop()

	cs.NoteReading("sensor_ok", now.Add(-time.Minute))
	seedMeasurementAlert(t, lifecycle.store, "sensor_ok", models.AlertTypePH)

	r := NewAlertReconciler(lifecycle.store, lifecycle, cs, NewAuditService(&fakeAuditRepo{}), time.Minute, 15)
	r.reconcile()

	if repo.activeCount() != 1 {
		t.Fatalf("a reporting sensor's alert must remain, got %d active", repo.activeCount())
	}
}
