package aggregation

import (
	"time"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/internal/stats"
)

// Range is a closed [min, max] interval of observed values
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// KPISnapshot summarizes a set of readings. It is computed per request and
// never stored.
type KPISnapshot struct {
	AvgTemperature    float64   `json:"avg_temp"`
	AvgPressure       float64   `json:"avg_pressure"`
	TemperatureRange  Range     `json:"temperature_range"`
	PressureRange     Range     `json:"pressure_range"`
	AlertCount        int       `json:"alert_count"`
	TemperatureAlerts int       `json:"temperature_alerts"`
	PressureAlerts    int       `json:"pressure_alerts"`
	WarningCount      int       `json:"warning_count"`
	UptimeHours       float64   `json:"uptime_hours"`
	TotalRecords      int       `json:"total_records"`
	DateFilter        *string   `json:"date_filter"`
	NoData            bool      `json:"no_data"`
	ComputedAt        time.Time `json:"timestamp"`
}

// FilterByDate returns the readings that fall on filter's day, in input
// order. A nil filter returns readings unchanged.
func FilterByDate(readings []sensor.Reading, filter *sensor.DateFilter) []sensor.Reading {
	if filter == nil {
		return readings
	}
	out := make([]sensor.Reading, 0, len(readings))
	for _, r := range readings {
		if filter.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	return out
}

// ComputeKPIs aggregates readings restricted to filter. An empty selection
// yields zeroed counts with NoData set, never an error.
func ComputeKPIs(readings []sensor.Reading, filter *sensor.DateFilter) KPISnapshot {
	selected := FilterByDate(readings, filter)

	snap := KPISnapshot{
		TotalRecords: len(selected),
		DateFilter:   filterString(filter),
		ComputedAt:   time.Now().UTC(),
	}

	temps := make([]float64, 0, len(selected))
	pressures := make([]float64, 0, len(selected))
	uptimes := make([]float64, 0, len(selected))

	for i := range selected {
		r := &selected[i]
		if stats.Finite(r.Temperature) {
			temps = append(temps, r.Temperature)
		}
		if stats.Finite(r.Pressure) {
			pressures = append(pressures, r.Pressure)
		}
		if stats.Finite(r.Uptime) {
			uptimes = append(uptimes, r.Uptime)
		}

		if r.Alerting() {
			snap.AlertCount++
		}
		if r.TemperatureAlert {
			snap.TemperatureAlerts++
		}
		if r.PressureAlert {
			snap.PressureAlerts++
		}
		if r.TemperatureLevel == sensor.LevelWarning || r.PressureLevel == sensor.LevelWarning {
			snap.WarningCount++
		}
	}

	avgT, okT := stats.Mean(temps)
	avgP, okP := stats.Mean(pressures)
	snap.AvgTemperature = avgT
	snap.AvgPressure = avgP
	snap.NoData = !okT && !okP

	snap.TemperatureRange.Min, snap.TemperatureRange.Max = stats.MinMax(temps)
	snap.PressureRange.Min, snap.PressureRange.Max = stats.MinMax(pressures)
	_, snap.UptimeHours = stats.MinMax(uptimes)

	return snap
}

func filterString(filter *sensor.DateFilter) *string {
	if filter == nil {
		return nil
	}
	s := filter.String()
	return &s
}
