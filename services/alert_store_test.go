package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aquamon/models"
)

func TestCreateIfAdmissibleDeduplicates(t *testing.T) {
	repo := newFakeAlertRepo()
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	first := &models.Alert{
		Type:     models.AlertTypePH,
		Level:    models.LevelWarning,
		Title:    "pH out of range",
		Message:  "pH 8.90 is above warning maximum 8.50",
		SensorID: "sensor_1",
	}
	id, created, _, err := store.CreateIfAdmissible(context.Background(), first)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !created || id == "" {
		t.Fatalf("first alert should be created, got created=%v id=%q", created, id)
	}

	dup := &models.Alert{
		Type:     models.AlertTypePH,
		Level:    models.LevelCritical,
		Title:    "pH out of range",
		Message:  "pH 9.90 is above critical maximum 9.50",
		SensorID: "sensor_1",
	}
	_, created, reason, err := store.CreateIfAdmissible(context.Background(), dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Fatal("duplicate (sensor, type) alert should be skipped")
	}
	if reason == "" {
		t.Fatal("skip should carry a reason")
	}

	// A different type for the same sensor is a different key.
	other := &models.Alert{
		Type:     models.AlertTypeTemperature,
		Level:    models.LevelWarning,
		Title:    "Temperature out of range",
		Message:  "Temperature 31.00 is above warning maximum 30.00",
		SensorID: "sensor_1",
	}
	_, created, _, err = store.CreateIfAdmissible(context.Background(), other)
	if err != nil {
		t.Fatalf("other-type create: %v", err)
	}
	if !created {
		t.Fatal("different alert type for the same sensor should be created")
	}
	if repo.activeCount() != 2 {
		t.Fatalf("expected 2 active alerts, got %d", repo.activeCount())
	}
}

func TestCreateIfAdmissibleMeasurementRequiresSensor(t *testing.T) {
	store := newTestStore(newFakeAlertRepo(), &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	alert := &models.Alert{
		Type:    models.AlertTypeEC,
		Level:   models.LevelWarning,
		Title:   "Conductivity out of range",
		Message: "no sensor attached",
	}
	_, created, reason, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created {
		t.Fatal("measurement alert without a sensor id should be skipped")
	}
	if reason == "" {
		t.Fatal("skip should carry a reason")
	}
}

func TestCreateIfAdmissibleFailsClosedOnConnectivity(t *testing.T) {
	cases := []struct {
		name   string
		oracle *fakeOracle
	}{
		{"disconnected sensor", &fakeOracle{connected: false}},
		{"oracle error", &fakeOracle{err: errors.New("readings collection unavailable")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeAlertRepo()
			store := newTestStore(repo, tc.oracle, NewAuditService(&fakeAuditRepo{}))

			alert := &models.Alert{
				Type:     models.AlertTypePH,
				Level:    models.LevelCritical,
				Title:    "pH out of range",
				Message:  "pH 9.90 is above critical maximum 9.50",
				SensorID: "sensor_1",
			}
			_, created, _, err := store.CreateIfAdmissible(context.Background(), alert)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created {
				t.Fatal("measurement alert should be skipped when connectivity is not confirmed")
			}
			if repo.activeCount() != 0 {
				t.Fatalf("expected no active alerts, got %d", repo.activeCount())
			}
		})
	}
}

func TestCreateIfAdmissibleManualSkipsConnectivity(t *testing.T) {
	// Manual alerts are not measurements; the oracle must not gate them.
	store := newTestStore(newFakeAlertRepo(), &fakeOracle{err: errors.New("oracle down")}, NewAuditService(&fakeAuditRepo{}))

	alert := &models.Alert{
		Type:     models.AlertTypeManual,
		Level:    models.LevelInfo,
		Title:    "Maintenance scheduled",
		Message:  "Reservoir cleaning on Friday",
		SensorID: "sensor_1",
		Source:   models.SourceManual,
	}
	_, created, _, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("manual alert should not be gated by connectivity")
	}
}

func TestDismissArchivesToHistory(t *testing.T) {
	repo := newFakeAlertRepo()
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	alert := &models.Alert{
		Type:      models.AlertTypePH,
		Level:     models.LevelWarning,
		Title:     "pH out of range",
		Message:   "pH 8.90 is above warning maximum 8.50",
		SensorID:  "sensor_1",
		CreatedAt: created,
	}
	id, _, _, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	at := created.Add(95 * time.Minute)
	history, err := store.Dismiss(context.Background(), id, "maria", "admin", "verified manually", at)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	if history.ResolutionType != models.ResolutionManualDismiss {
		t.Fatalf("expected manual_dismiss, got %s", history.ResolutionType)
	}
	if history.DurationMinutes != 95 {
		t.Fatalf("expected duration 95, got %d", history.DurationMinutes)
	}
	if history.DismissedBy != "maria" || history.Reason != "verified manually" {
		t.Fatalf("dismissal metadata not carried: %+v", history)
	}
	if !history.IsResolved {
		t.Fatal("archived record should be marked resolved")
	}

	if repo.activeCount() != 0 {
		t.Fatalf("active alert should be gone, %d remain", repo.activeCount())
	}
	archived, _ := repo.ListAlertHistory(context.Background(), "sensor_1", 0)
	if len(archived) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(archived))
	}
}

func TestDismissErrors(t *testing.T) {
	repo := newFakeAlertRepo()
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	_, err := store.Dismiss(context.Background(), "missing", "maria", "admin", "", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	alert := &models.Alert{
		Type:     models.AlertTypePH,
		Level:    models.LevelWarning,
		Title:    "pH out of range",
		Message:  "msg",
		SensorID: "sensor_1",
	}
	id, _, _, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Dismiss(context.Background(), id, "maria", "admin", "", time.Now()); err != nil {
		t.Fatalf("first dismiss: %v", err)
	}
	// The alert has been archived out of the active set.
	if _, err := store.Dismiss(context.Background(), id, "maria", "admin", "", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after archive, got %v", err)
	}
}

func TestDismissAlreadyResolved(t *testing.T) {
	repo := newFakeAlertRepo()
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	alert := &models.Alert{
		Type:     models.AlertTypePH,
		Level:    models.LevelWarning,
		Title:    "pH out of range",
		Message:  "msg",
		SensorID: "sensor_1",
	}
	id, _, _, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A resolved alert still present in the active collection (archive
	// pending) must report conflict, not archive twice.
	if err := repo.MarkAlertResolved(context.Background(), id, time.Now()); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}
	if _, err := store.Dismiss(context.Background(), id, "maria", "admin", "", time.Now()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestDismissDurationNeverNegative(t *testing.T) {
	repo := newFakeAlertRepo()
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	alert := &models.Alert{
		Type:      models.AlertTypePH,
		Level:     models.LevelWarning,
		Title:     "pH out of range",
		Message:   "msg",
		SensorID:  "sensor_1",
		CreatedAt: created,
	}
	id, _, _, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A clock-skewed dismissal before the creation timestamp clamps to 0.
	history, err := store.Dismiss(context.Background(), id, "maria", "admin", "", created.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if history.DurationMinutes != 0 {
		t.Fatalf("expected clamped duration 0, got %d", history.DurationMinutes)
	}
}

func TestDismissSystemActorIsAutoResolved(t *testing.T) {
	repo := newFakeAlertRepo()
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	alert := &models.Alert{
		Type:     models.AlertTypeDisconnection,
		Level:    models.LevelCritical,
		Title:    "Sensor sensor_1 disconnected",
		Message:  "msg",
		SensorID: "sensor_1",
		Source:   models.SourceSystem,
	}
	id, _, _, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	history, err := store.Dismiss(context.Background(), id, "system:reconciler", "system", "sensor reconnected", time.Now())
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if history.ResolutionType != models.ResolutionAutoResolved {
		t.Fatalf("expected auto_resolved for system actor, got %s", history.ResolutionType)
	}
}

func TestArchiveAllForSensor(t *testing.T) {
	repo := newFakeAlertRepo()
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	for _, alertType := range []models.AlertType{models.AlertTypePH, models.AlertTypeEC, models.AlertTypeDisconnection} {
		alert := &models.Alert{
			Type:     alertType,
			Level:    models.LevelWarning,
			Title:    "t",
			Message:  "m",
			SensorID: "sensor_1",
		}
		if _, created, _, err := store.CreateIfAdmissible(context.Background(), alert); err != nil || !created {
			t.Fatalf("seed %s: created=%v err=%v", alertType, created, err)
		}
	}
	// Another sensor's alert must survive.
	other := &models.Alert{Type: models.AlertTypePH, Level: models.LevelWarning, Title: "t", Message: "m", SensorID: "sensor_2"}
	if _, _, _, err := store.CreateIfAdmissible(context.Background(), other); err != nil {
		t.Fatalf("seed other sensor: %v", err)
	}

	archived := store.ArchiveAllForSensor(context.Background(), "sensor_1")
	if archived != 3 {
		t.Fatalf("expected 3 archived, got %d", archived)
	}
	if repo.activeCount() != 1 {
		t.Fatalf("expected 1 surviving active alert, got %d", repo.activeCount())
	}
	history, _ := repo.ListAlertHistory(context.Background(), "sensor_1", 0)
	if len(history) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(history))
	}
}

func TestDismissConcurrentDismissalsArchiveOnce(t *testing.T) {
	repo := newFakeAlertRepo()
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	alert := &models.Alert{
		Type:     models.AlertTypePH,
		Level:    models.LevelWarning,
		Title:    "pH out of range",
		Message:  "pH 8.90 is above warning maximum 8.50",
		SensorID: "sensor_1",
	}
	id, created, _, err := store.CreateIfAdmissible(context.Background(), alert)
	if err != nil || !created {
		t.Fatalf("seed create: created=%v err=%v", created, err)
	}

	// An admin dismissal racing the reconciler's system dismissal: both
	// may read the alert as unresolved, but only one can win the resolve
	// transition and archive it.
	actors := []string{"maria", "system:reconciler"}
	errs := make([]error, len(actors))
	var wg sync.WaitGroup
	for i := range actors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Dismiss(context.Background(), id, actors[i], "admin", "resolved", time.Now())
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyResolved):
			losses++
		default:
			t.Fatalf("unexpected dismiss error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one AlreadyResolved, got %d winners / %d losers", wins, losses)
	}
	history, _ := repo.ListAlertHistory(context.Background(), "sensor_1", 0)
	if len(history) != 1 {
		t.Fatalf("expected exactly 1 history record, got %d", len(history))
	}
	if repo.activeCount() != 0 {
		t.Fatalf("active alert should be gone, %d remain", repo.activeCount())
	}
}

func TestGetActiveDegradesToEmpty(t *testing.T) {
	repo := newFakeAlertRepo()
	repo.listErr = errors.New("connection reset")
	store := newTestStore(repo, &fakeOracle{connected: true}, NewAuditService(&fakeAuditRepo{}))

	alerts := store.GetActive(context.Background(), AlertFilter{})
	if alerts == nil || len(alerts) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", alerts)
	}
}
