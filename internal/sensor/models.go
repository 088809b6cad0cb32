package sensor

import (
	"time"
)

// RawReading is one row as extracted from the source. A nil numeric field is
// a missing value (empty cell, NaN or Inf in the source).
type RawReading struct {
	Timestamp   time.Time
	Temperature *float64
	Pressure    *float64
	Uptime      *float64
}

// Reading is a cleaned and enriched reading, the unit persisted by the store
type Reading struct {
	Timestamp         time.Time
	Temperature       float64
	Pressure          float64
	Uptime            float64
	Hour              int
	DayOfWeek         int // 0 = Sunday
	Month             int
	TemperatureZScore float64
	PressureZScore    float64
	TemperatureAlert  bool
	PressureAlert     bool
	TemperatureLevel  Level
	PressureLevel     Level
}

// Alerting reports whether either column raised a z-score alert
func (r *Reading) Alerting() bool {
	return r.TemperatureAlert || r.PressureAlert
}

// Level is the severity assigned to a single column of a reading
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Column names a numeric column of a reading
type Column string

const (
	ColumnTemperature Column = "temperature"
	ColumnPressure    Column = "pressure"
	ColumnUptime      Column = "uptime"
)

// NumericColumns lists the columns subject to cleaning, in export order
var NumericColumns = []Column{ColumnTemperature, ColumnPressure, ColumnUptime}

// Value returns the field for column c
func (r *RawReading) Value(c Column) *float64 {
	switch c {
	case ColumnTemperature:
		return r.Temperature
	case ColumnPressure:
		return r.Pressure
	case ColumnUptime:
		return r.Uptime
	}
	return nil
}

// Set assigns v to the field for column c
func (r *RawReading) Set(c Column, v float64) {
	switch c {
	case ColumnTemperature:
		r.Temperature = Float(v)
	case ColumnPressure:
		r.Pressure = Float(v)
	case ColumnUptime:
		r.Uptime = Float(v)
	}
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// Deref returns *p, or 0 when p is nil
func Deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
