// Package enrich derives calendar features, batch z-scores, alert flags and
// severity levels for cleaned readings.
package enrich

import (
	"math"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/internal/stats"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

// Band is an absolute acceptable range for a column
type Band struct {
	Low  float64
	High float64
}

// Contains reports whether v lies within the band, bounds included
func (b Band) Contains(v float64) bool {
	return v >= b.Low && v <= b.High
}

// Thresholds configures alerting. A z-score strictly above ZScore raises an
// alert; a value outside Range or a z-score above Warning (when Warning > 0)
// marks the column as a warning.
type Thresholds struct {
	Temperature ColumnThresholds
	Pressure    ColumnThresholds
}

type ColumnThresholds struct {
	ZScore  float64
	Warning float64
	Range   Band
}

// DefaultThresholds matches the defaults in pkg/config
func DefaultThresholds() Thresholds {
	return ThresholdsFromConfig(config.Default().Thresholds)
}

// ThresholdsFromConfig converts the configuration section into Thresholds
func ThresholdsFromConfig(c config.ThresholdsConfig) Thresholds {
	return Thresholds{
		Temperature: ColumnThresholds{
			ZScore:  c.ZScoreTemperature,
			Warning: c.WarningZScoreTemperature,
			Range:   Band{Low: c.TemperatureLow, High: c.TemperatureHigh},
		},
		Pressure: ColumnThresholds{
			ZScore:  c.ZScorePressure,
			Warning: c.WarningZScorePressure,
			Range:   Band{Low: c.PressureLow, High: c.PressureHigh},
		},
	}
}

// ColumnStats holds the batch statistics a column was scored against
type ColumnStats struct {
	Mean   float64
	StdDev float64
	Alerts int
}

// Result carries the enriched readings and per-column statistics
type Result struct {
	Readings    []sensor.Reading
	Temperature ColumnStats
	Pressure    ColumnStats
}

// Enrich scores every reading against statistics of the whole batch. Readings
// are expected to be cleaned; a missing value is treated as 0.
// Enrich is a pure function of its input.
func Enrich(raw []sensor.RawReading, th Thresholds) Result {
	temps := make([]float64, len(raw))
	pressures := make([]float64, len(raw))
	for i := range raw {
		temps[i] = sensor.Deref(raw[i].Temperature)
		pressures[i] = sensor.Deref(raw[i].Pressure)
	}

	res := Result{Readings: make([]sensor.Reading, len(raw))}
	res.Temperature.Mean, res.Temperature.StdDev = stats.MeanStdDev(temps)
	res.Pressure.Mean, res.Pressure.StdDev = stats.MeanStdDev(pressures)

	for i := range raw {
		ts := raw[i].Timestamp.UTC()
		r := sensor.Reading{
			Timestamp:   raw[i].Timestamp,
			Temperature: temps[i],
			Pressure:    pressures[i],
			Uptime:      sensor.Deref(raw[i].Uptime),
			Hour:        ts.Hour(),
			DayOfWeek:   int(ts.Weekday()),
			Month:       int(ts.Month()),
		}

		r.TemperatureZScore = stats.ZScore(r.Temperature, res.Temperature.Mean, res.Temperature.StdDev)
		r.PressureZScore = stats.ZScore(r.Pressure, res.Pressure.Mean, res.Pressure.StdDev)

		r.TemperatureAlert = exceeds(r.TemperatureZScore, th.Temperature.ZScore)
		r.PressureAlert = exceeds(r.PressureZScore, th.Pressure.ZScore)

		r.TemperatureLevel = level(r.Temperature, r.TemperatureZScore, r.TemperatureAlert, th.Temperature)
		r.PressureLevel = level(r.Pressure, r.PressureZScore, r.PressureAlert, th.Pressure)

		if r.TemperatureAlert {
			res.Temperature.Alerts++
		}
		if r.PressureAlert {
			res.Pressure.Alerts++
		}

		res.Readings[i] = r
	}

	return res
}

// Strip returns the raw part of enriched readings, used to re-run enrichment
func Strip(readings []sensor.Reading) []sensor.RawReading {
	out := make([]sensor.RawReading, len(readings))
	for i, r := range readings {
		out[i] = sensor.RawReading{
			Timestamp:   r.Timestamp,
			Temperature: sensor.Float(r.Temperature),
			Pressure:    sensor.Float(r.Pressure),
			Uptime:      sensor.Float(r.Uptime),
		}
	}
	return out
}

func exceeds(z, threshold float64) bool {
	return math.Abs(z) > threshold
}

func level(v, z float64, alert bool, th ColumnThresholds) sensor.Level {
	switch {
	case alert:
		return sensor.LevelCritical
	case !th.Range.Contains(v):
		return sensor.LevelWarning
	case th.Warning > 0 && exceeds(z, th.Warning):
		return sensor.LevelWarning
	default:
		return sensor.LevelNormal
	}
}
