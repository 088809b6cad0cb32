package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smukkama/sensor-pipeline/internal/aggregation"
	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

// EventType identifies the payload of a pipeline event
type EventType string

const (
	EventRunCompleted EventType = "run_completed"
	EventAlertRaised  EventType = "alert_raised"
)

// BaseEvent is the common structure for all events
type BaseEvent struct {
	Type EventType `json:"type"`
}

// RunCompleted is published once per successful pipeline run
type RunCompleted struct {
	Type             EventType               `json:"type"`
	RunID            string                  `json:"run_id"`
	Table            string                  `json:"table"`
	Backend          string                  `json:"backend"`
	StartedAt        time.Time               `json:"started_at"`
	DurationMs       int64                   `json:"duration_ms"`
	RawRows          int                     `json:"raw_rows"`
	MalformedRows    int                     `json:"malformed_rows"`
	Synthetic        bool                    `json:"synthetic"`
	ProcessedRows    int                     `json:"processed_rows"`
	OutliersReplaced int                     `json:"outliers_replaced"`
	Imputed          int                     `json:"imputed"`
	DataQualityScore float64                 `json:"data_quality_score"`
	KPIs             aggregation.KPISnapshot `json:"kpis"`
}

// AlertRaised is published for every alerting column of every processed row
type AlertRaised struct {
	Type      EventType     `json:"type"`
	EventID   string        `json:"event_id"`
	RunID     string        `json:"run_id"`
	Table     string        `json:"table"`
	Column    sensor.Column `json:"column"`
	Level     sensor.Level  `json:"level"`
	Timestamp time.Time     `json:"timestamp"`
	Value     float64       `json:"value"`
	ZScore    float64       `json:"zscore"`
	Threshold float64       `json:"threshold"`
}

// NewAlert builds an AlertRaised event for column of r
func NewAlert(eventID, runID, table string, r *sensor.Reading, column sensor.Column, threshold float64) *AlertRaised {
	a := &AlertRaised{
		Type:      EventAlertRaised,
		EventID:   eventID,
		RunID:     runID,
		Table:     table,
		Column:    column,
		Timestamp: r.Timestamp.UTC(),
		Threshold: threshold,
	}
	switch column {
	case sensor.ColumnTemperature:
		a.Value, a.ZScore, a.Level = r.Temperature, r.TemperatureZScore, r.TemperatureLevel
	case sensor.ColumnPressure:
		a.Value, a.ZScore, a.Level = r.Pressure, r.PressureZScore, r.PressureLevel
	}
	return a
}

// Encode encodes an event to JSON
func Encode(event any) ([]byte, error) {
	return json.Marshal(event)
}

// ParseEvent decodes a JSON payload into *RunCompleted or *AlertRaised
func ParseEvent(data []byte) (any, error) {
	var base BaseEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch base.Type {
	case EventRunCompleted:
		var ev RunCompleted
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("invalid run_completed event: %w", err)
		}
		if ev.RunID == "" {
			return nil, fmt.Errorf("run_id is required")
		}
		return &ev, nil

	case EventAlertRaised:
		var ev AlertRaised
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("invalid alert_raised event: %w", err)
		}
		if err := validateAlert(&ev); err != nil {
			return nil, err
		}
		return &ev, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", base.Type)
	}
}

func validateAlert(ev *AlertRaised) error {
	if ev.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	switch ev.Column {
	case sensor.ColumnTemperature, sensor.ColumnPressure:
	default:
		return fmt.Errorf("invalid alert column %q", ev.Column)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
