package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"aquamon/models"
)

// Shared in-memory fakes for the repository and oracle interfaces.

type fakeAlertRepo struct {
	mu      sync.Mutex
	alerts  map[string]*models.Alert
	history []*models.AlertHistory

	listErr error
	findErr error
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[string]*models.Alert)}
}

func (f *fakeAlertRepo) InsertAlert(_ context.Context, alert *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := *alert
	f.alerts[alert.ID] = &a
	return nil
}

func (f *fakeAlertRepo) FindAlertByID(_ context.Context, id string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if a, ok := f.alerts[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (f *fakeAlertRepo) FindActiveAlert(_ context.Context, sensorID string, alertType models.AlertType) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.SensorID == sensorID && a.Type == alertType && !a.IsResolved {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeAlertRepo) ListActiveAlerts(_ context.Context, filter AlertFilter) ([]*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Alert
	for _, a := range f.alerts {
		if a.IsResolved {
			continue
		}
		if filter.SensorID != "" && a.SensorID != filter.SensorID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Level != "" && a.Level != filter.Level {
			continue
		}
		if filter.MeasurementOnly && !a.Type.IsMeasurement() {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeAlertRepo) MarkAlertResolved(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok || a.IsResolved {
		return ErrAlreadyResolved
	}
	a.IsResolved = true
	a.Status = "resolved"
	return nil
}

func (f *fakeAlertRepo) DeleteAlert(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alerts, id)
	return nil
}

func (f *fakeAlertRepo) InsertAlertHistory(_ context.Context, history *models.AlertHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := *history
	f.history = append(f.history, &h)
	return nil
}

func (f *fakeAlertRepo) ListAlertHistory(_ context.Context, sensorID string, limit int) ([]*models.AlertHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AlertHistory
	for _, h := range f.history {
		if sensorID != "" && h.SensorID != sensorID {
			continue
		}
		c := *h
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAlertRepo) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.alerts {
		if !a.IsResolved {
			n++
		}
	}
	return n
}

type fakeOracle struct {
	connected   bool
	err         error
	invalidated []string
}

func (f *fakeOracle) IsConnected(context.Context, string, int) (bool, error) {
	return f.connected, f.err
}

func (f *fakeOracle) InvalidateAlias(sensorID string) {
	f.invalidated = append(f.invalidated, sensorID)
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (f *fakeAuditRepo) InsertAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeConfigRepo struct {
	mu      sync.Mutex
	configs map[string]*models.SensorAlertConfig
	getErr  error
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{configs: make(map[string]*models.SensorAlertConfig)}
}

func (f *fakeConfigRepo) ListEnabledConfigs(context.Context) ([]*models.SensorAlertConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SensorAlertConfig
	for _, c := range f.configs {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConfigRepo) GetConfig(_ context.Context, sensorID string) (*models.SensorAlertConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.configs[sensorID], nil
}

func (f *fakeConfigRepo) UpsertConfig(_ context.Context, cfg *models.SensorAlertConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[cfg.SensorID] = cfg
	return nil
}

type fakeReadingRepo struct {
	reading *models.SensorReading
	err     error
	calls   int
}

func (f *fakeReadingRepo) LatestReading(context.Context, []string) (*models.SensorReading, error) {
	f.calls++
	return f.reading, f.err
}

type fakeDirectory struct {
	scoped map[string][]models.Recipient
	global []models.Recipient
	err    error
}

func (f *fakeDirectory) AdminsForLocation(_ context.Context, location string) ([]models.Recipient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scoped[location], nil
}

func (f *fakeDirectory) Admins(context.Context) ([]models.Recipient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.global, nil
}

type fakeEmailChannel struct {
	mu    sync.Mutex
	sent  []string
	err   error
	avail bool
}

func (f *fakeEmailChannel) Enabled() bool { return f.avail }

func (f *fakeEmailChannel) Send(_ context.Context, address, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, address)
	return nil
}

type fakeWhatsAppChannel struct {
	mu       sync.Mutex
	attempts int
	failures int // fail this many leading attempts
	err      error
	avail    bool
}

func (f *fakeWhatsAppChannel) Enabled() bool { return f.avail }

func (f *fakeWhatsAppChannel) Send(context.Context, string, string) (*WhatsAppReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, errors.New("connection reset")
	}
	return &WhatsAppReceipt{SID: "SM123", Status: "queued"}, nil
}

type fakeBroadcast struct {
	mu    sync.Mutex
	count int
	avail bool
}

func (f *fakeBroadcast) Enabled() bool { return f.avail }

func (f *fakeBroadcast) Broadcast(*models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return nil
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	records []*models.NotificationRecord
}

func (f *fakeNotificationRepo) InsertNotificationRecord(_ context.Context, rec *models.NotificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

// newTestStore builds an AlertStore whose archive tasks run synchronously
// inside Dismiss, keeping test assertions deterministic.
func newTestStore(repo AlertRepository, oracle ConnectivityOracle, audit *AuditService) *AlertStore {
	s := NewAlertStore(repo, oracle, audit, 15)
	s.Stop()
	return s
}

func floatPtr(v float64) *float64 { return &v }
