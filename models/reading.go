package models

import (
	"fmt"
	"time"
)

// Canonical metric names. Stored readings use several historical naming
// conventions for the same metric; NormalizeReading maps them all to these.
const (
	MetricPH          = "ph"
	MetricTemperature = "temperature"
	MetricEC          = "ec"
	MetricWaterLevel  = "water_level"
)

// metricAliases maps every known historical field name to its canonical
// metric. Normalization happens once, at the ingestion boundary.
var metricAliases = map[string]string{
	"ph":                      MetricPH,
	"pH":                      MetricPH,
	"PH":                      MetricPH,
	"temperature":             MetricTemperature,
	"temp":                    MetricTemperature,
	"water_temperature":       MetricTemperature,
	"ec":                      MetricEC,
	"EC":                      MetricEC,
	"conductivity":            MetricEC,
	"electrical_conductivity": MetricEC,
	"water_level":             MetricWaterLevel,
	"level":                   MetricWaterLevel,
	"nivel":                   MetricWaterLevel,
	"nivel_agua":              MetricWaterLevel,
}

var sensorIDAliases = []string{"sensor_id", "device_id", "deviceId", "id_sensor"}
var timestampAliases = []string{"timestamp", "time", "fecha", "created_at"}

// SensorReading is a normalized timestamped measurement. Missing metrics
// are nil, never zero: zero is a valid reading.
type SensorReading struct {
	SensorID    string    `bson:"sensor_id" json:"sensor_id"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	PH          *float64  `bson:"ph,omitempty" json:"ph,omitempty"`
	Temperature *float64  `bson:"temperature,omitempty" json:"temperature,omitempty"`
	EC          *float64  `bson:"ec,omitempty" json:"ec,omitempty"`
	WaterLevel  *float64  `bson:"water_level,omitempty" json:"water_level,omitempty"`
}

// MetricValue returns the value for a canonical metric, nil when absent.
func (r *SensorReading) MetricValue(metric string) *float64 {
	switch metric {
	case MetricPH:
		return r.PH
	case MetricTemperature:
		return r.Temperature
	case MetricEC:
		return r.EC
	case MetricWaterLevel:
		return r.WaterLevel
	}
	return nil
}

// NormalizeReading converts a raw stored document into a SensorReading,
// resolving field-name aliases and timestamp formats. A sensor identifier
// and a timestamp must be resolvable; everything else is optional.
func NormalizeReading(doc map[string]interface{}) (*SensorReading, error) {
	r := &SensorReading{}

	for _, key := range sensorIDAliases {
		if v, ok := doc[key].(string); ok && v != "" {
			r.SensorID = v
			break
		}
	}
	if r.SensorID == "" {
		return nil, fmt.Errorf("reading has no resolvable sensor identifier")
	}

	for _, key := range timestampAliases {
		if v, ok := doc[key]; ok {
			ts, err := ParseTimestamp(v)
			if err != nil {
				continue
			}
			r.Timestamp = ts
			break
		}
	}
	if r.Timestamp.IsZero() {
		return nil, fmt.Errorf("reading for %s has no resolvable timestamp", r.SensorID)
	}

	for key, raw := range doc {
		metric, ok := metricAliases[key]
		if !ok {
			continue
		}
		val, ok := numericValue(raw)
		if !ok {
			continue
		}
		v := val
		switch metric {
		case MetricPH:
			if r.PH == nil {
				r.PH = &v
			}
		case MetricTemperature:
			if r.Temperature == nil {
				r.Temperature = &v
			}
		case MetricEC:
			if r.EC == nil {
				r.EC = &v
			}
		case MetricWaterLevel:
			if r.WaterLevel == nil {
				r.WaterLevel = &v
			}
		}
	}

	return r, nil
}

func numericValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Timestamp layouts seen in historical documents. Layouts without a zone
// are interpreted as UTC: the canonical rule is that every timestamp is
// stored and compared in UTC, converting at the boundary.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp normalizes a stored timestamp value to UTC.
func ParseTimestamp(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", v)
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", raw)
}
