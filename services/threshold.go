package services

import (
	"fmt"

	"aquamon/models"
)

// Evaluation is the outcome of checking one metric value against its
// configured bounds.
type Evaluation struct {
	Violated bool
	Level    models.AlertLevel
	Message  string
}

// metricLabels maps canonical metric names to display names used in alert
// titles and messages.
var metricLabels = map[string]string{
	models.MetricPH:          "pH",
	models.MetricTemperature: "Temperature",
	models.MetricEC:          "Conductivity",
	models.MetricWaterLevel:  "Water level",
}

// MetricLabel returns the display name for a canonical metric.
func MetricLabel(metric string) string {
	if label, ok := metricLabels[metric]; ok {
		return label
	}
	return metric
}

// EvaluateThreshold checks a present metric value against its bounds.
// Critical bounds are checked first, then warning bounds. Callers must
// only invoke this for present values: a present zero is evaluated like
// any other number, absence is decided before this call.
func EvaluateThreshold(metric string, value float64, cfg models.ThresholdConfig) Evaluation {
	label := MetricLabel(metric)

	if cfg.CriticalMin != nil && value < *cfg.CriticalMin {
		return Evaluation{
			Violated: true,
			Level:    models.LevelCritical,
			Message:  fmt.Sprintf("%s %.2f is below critical minimum %.2f", label, value, *cfg.CriticalMin),
		}
	}
	if cfg.CriticalMax != nil && value > *cfg.CriticalMax {
		return Evaluation{
			Violated: true,
			Level:    models.LevelCritical,
			Message:  fmt.Sprintf("%s %.2f is above critical maximum %.2f", label, value, *cfg.CriticalMax),
		}
	}
	if cfg.WarningMin != nil && value < *cfg.WarningMin {
		return Evaluation{
			Violated: true,
			Level:    models.LevelWarning,
			Message:  fmt.Sprintf("%s %.2f is below warning minimum %.2f", label, value, *cfg.WarningMin),
		}
	}
	if cfg.WarningMax != nil && value > *cfg.WarningMax {
		return Evaluation{
			Violated: true,
			Level:    models.LevelWarning,
			Message:  fmt.Sprintf("%s %.2f is above warning maximum %.2f", label, value, *cfg.WarningMax),
		}
	}

	return Evaluation{}
}

// ThresholdInfo builds the human explanation of the configured bounds for
// an alert's threshold_info field.
func ThresholdInfo(metric string, cfg models.ThresholdConfig) string {
	label := MetricLabel(metric)
	describe := func(name string, min, max *float64) string {
		switch {
		case min != nil && max != nil:
			return fmt.Sprintf("%s %.2f-%.2f", name, *min, *max)
		case min != nil:
			return fmt.Sprintf("%s min %.2f", name, *min)
		case max != nil:
			return fmt.Sprintf("%s max %.2f", name, *max)
		}
		return ""
	}

	info := label + ":"
	for _, part := range []string{
		describe("optimal", cfg.OptimalMin, cfg.OptimalMax),
		describe("warning", cfg.WarningMin, cfg.WarningMax),
		describe("critical", cfg.CriticalMin, cfg.CriticalMax),
	} {
		if part != "" {
			info += " " + part + ";"
		}
	}
	return info
}
