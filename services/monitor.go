package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"aquamon/models"
)

// SensorMonitor sweeps every enabled sensor on a fixed interval, raises
// disconnection alerts for silent sensors, and evaluates the latest
// reading of connected sensors against their thresholds. A failure on one
// sensor never stops the sweep of the others.
type SensorMonitor struct {
	configs      ConfigRepository
	readings     ReadingRepository
	connectivity *ConnectivityService
	lifecycle    *AlertLifecycleService

	interval         time.Duration
	thresholdMinutes int

	stopChan chan struct{}
	running  bool
}

func NewSensorMonitor(configs ConfigRepository, readings ReadingRepository, connectivity *ConnectivityService, lifecycle *AlertLifecycleService, interval time.Duration, thresholdMinutes int) *SensorMonitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if thresholdMinutes <= 0 {
		thresholdMinutes = 15
	}
	return &SensorMonitor{
		configs:          configs,
		readings:         readings,
		connectivity:     connectivity,
		lifecycle:        lifecycle,
		interval:         interval,
		thresholdMinutes: thresholdMinutes,
		stopChan:         make(chan struct{}),
	}
}

// Start launches the periodic sweep.
func (m *SensorMonitor) Start() {
	if m.running {
		return
	}
	m.running = true

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		log.Printf("SensorMonitor: started (interval %s, connectivity threshold %dm)", m.interval, m.thresholdMinutes)
		m.sweep()

		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stopChan:
				log.Println("SensorMonitor: stopped")
				return
			}
		}
	}()
}

// Stop halts the periodic sweep.
func (m *SensorMonitor) Stop() {
	if !m.running {
		return
	}
	m.running = false
	close(m.stopChan)
}

func (m *SensorMonitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	configs, err := m.configs.ListEnabledConfigs(ctx)
	if err != nil {
		log.Printf("SensorMonitor: failed to list enabled sensors: %v", err)
		return
	}

	for _, cfg := range configs {
		if err := m.checkSensor(ctx, cfg); err != nil {
			log.Printf("SensorMonitor: check failed for %s: %v", cfg.SensorID, err)
		}
	}
}

// checkSensor runs the full evaluation for one sensor. Disconnection is
// checked first; a disconnected sensor's stale reading is never evaluated
// against thresholds.
func (m *SensorMonitor) checkSensor(ctx context.Context, cfg *models.SensorAlertConfig) error {
	connected, err := m.connectivity.IsConnected(ctx, cfg.SensorID, m.thresholdMinutes)
	if err != nil {
		return fmt.Errorf("connectivity check: %w", err)
	}

	if !connected {
		m.raiseDisconnection(ctx, cfg)
		return nil
	}

	aliases, err := m.connectivity.ResolveAliases(ctx, cfg.SensorID)
	if err != nil {
		return fmt.Errorf("alias resolution: %w", err)
	}
	reading, err := m.readings.LatestReading(ctx, aliases)
	if err != nil {
		return fmt.Errorf("latest reading: %w", err)
	}
	if reading == nil {
		return nil
	}

	m.evaluateReading(ctx, cfg, reading)
	return nil
}

func (m *SensorMonitor) raiseDisconnection(ctx context.Context, cfg *models.SensorAlertConfig) {
	alert := &models.Alert{
		Type:     models.AlertTypeDisconnection,
		Level:    models.LevelCritical,
		Title:    fmt.Sprintf("Sensor %s disconnected", cfg.SensorID),
		Message:  fmt.Sprintf("Sensor %s has not reported a reading in over %d minutes", cfg.SensorID, m.thresholdMinutes),
		SensorID: cfg.SensorID,
		Location: cfg.Location,
		Source:   models.SourceSystem,
	}

	_, created, _, err := m.lifecycle.store.CreateIfAdmissible(ctx, alert)
	if err != nil {
		log.Printf("SensorMonitor: disconnection alert for %s failed: %v", cfg.SensorID, err)
		return
	}
	if created {
		log.Printf("SensorMonitor: sensor %s disconnected, alert %s raised", cfg.SensorID, alert.ID)
		m.lifecycle.notifyForAlert(ctx, alert)
	}
}

// evaluateReading checks every present metric against its configured
// thresholds. Absent metrics are skipped; a present zero is evaluated.
func (m *SensorMonitor) evaluateReading(ctx context.Context, cfg *models.SensorAlertConfig, reading *models.SensorReading) {
	for _, metric := range []string{models.MetricPH, models.MetricTemperature, models.MetricEC, models.MetricWaterLevel} {
		value := reading.MetricValue(metric)
		if value == nil {
			continue
		}
		tc, ok := cfg.ThresholdFor(metric)
		if !ok {
			continue
		}

		eval := EvaluateThreshold(metric, *value, tc)
		if !eval.Violated {
			continue
		}

		v := *value
		alert := &models.Alert{
			Type:          models.AlertType(metric),
			Level:         eval.Level,
			Title:         fmt.Sprintf("%s out of range on %s", MetricLabel(metric), cfg.SensorID),
			Message:       eval.Message,
			Value:         &v,
			ThresholdInfo: ThresholdInfo(metric, tc),
			SensorID:      cfg.SensorID,
			Location:      cfg.Location,
			Source:        models.SourceSystem,
		}

		_, created, _, err := m.lifecycle.store.CreateIfAdmissible(ctx, alert)
		if err != nil {
			log.Printf("SensorMonitor: %s alert for %s failed: %v", metric, cfg.SensorID, err)
			continue
		}
		if created {
			log.Printf("SensorMonitor: %s violation on %s: %s", metric, cfg.SensorID, eval.Message)
			m.lifecycle.notifyForAlert(ctx, alert)
		}
	}
}
