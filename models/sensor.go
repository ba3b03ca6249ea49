package models

import (
	"fmt"
	"time"
)

// ThresholdConfig holds the optional evaluation bounds for one metric.
// Each max, when present alongside its min, must exceed it. Critical
// bounds are checked before warning bounds.
type ThresholdConfig struct {
	OptimalMin  *float64 `bson:"optimal_min,omitempty" json:"optimal_min,omitempty"`
	OptimalMax  *float64 `bson:"optimal_max,omitempty" json:"optimal_max,omitempty"`
	WarningMin  *float64 `bson:"warning_min,omitempty" json:"warning_min,omitempty"`
	WarningMax  *float64 `bson:"warning_max,omitempty" json:"warning_max,omitempty"`
	CriticalMin *float64 `bson:"critical_min,omitempty" json:"critical_min,omitempty"`
	CriticalMax *float64 `bson:"critical_max,omitempty" json:"critical_max,omitempty"`
}

// Validate checks the min/max ordering of every populated pair.
func (c ThresholdConfig) Validate() error {
	pairs := []struct {
		name     string
		min, max *float64
	}{
		{"optimal", c.OptimalMin, c.OptimalMax},
		{"warning", c.WarningMin, c.WarningMax},
		{"critical", c.CriticalMin, c.CriticalMax},
	}
	for _, p := range pairs {
		if p.min != nil && p.max != nil && *p.max <= *p.min {
			return fmt.Errorf("%s_max (%.2f) must exceed %s_min (%.2f)", p.name, *p.max, p.name, *p.min)
		}
	}
	return nil
}

// SensorAlertConfig is the per-sensor alerting configuration. Mutated only
// by administrative update; read by the monitor and the evaluator.
type SensorAlertConfig struct {
	SensorID            string                     `bson:"sensor_id" json:"sensor_id"`
	ReservoirID         string                     `bson:"reservoir_id,omitempty" json:"reservoir_id,omitempty"`
	Location            string                     `bson:"location,omitempty" json:"location,omitempty"`
	Enabled             bool                       `bson:"enabled" json:"enabled"`
	Thresholds          map[string]ThresholdConfig `bson:"thresholds" json:"thresholds"`
	NotificationEnabled bool                       `bson:"notification_enabled" json:"notification_enabled"`
	EmailEnabled        bool                       `bson:"email_enabled" json:"email_enabled"`
	WhatsAppEnabled     bool                       `bson:"whatsapp_enabled" json:"whatsapp_enabled"`
	UpdatedAt           time.Time                  `bson:"updated_at" json:"updated_at"`
}

// Validate checks every per-metric threshold block.
func (c *SensorAlertConfig) Validate() error {
	if c.SensorID == "" {
		return fmt.Errorf("sensor_id is required")
	}
	for metric, tc := range c.Thresholds {
		if err := tc.Validate(); err != nil {
			return fmt.Errorf("thresholds[%s]: %w", metric, err)
		}
	}
	return nil
}

// ThresholdFor returns the threshold block for a canonical metric name.
func (c *SensorAlertConfig) ThresholdFor(metric string) (ThresholdConfig, bool) {
	tc, ok := c.Thresholds[metric]
	return tc, ok
}
