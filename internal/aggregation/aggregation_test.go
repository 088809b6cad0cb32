package aggregation

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

var day1 = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func reading(ts time.Time, temp, pressure, uptime float64, tAlert, pAlert bool) sensor.Reading {
	r := sensor.Reading{
		Timestamp:        ts,
		Temperature:      temp,
		Pressure:         pressure,
		Uptime:           uptime,
		TemperatureAlert: tAlert,
		PressureAlert:    pAlert,
		TemperatureLevel: sensor.LevelNormal,
		PressureLevel:    sensor.LevelNormal,
	}
	if tAlert {
		r.TemperatureLevel = sensor.LevelCritical
	}
	if pAlert {
		r.PressureLevel = sensor.LevelCritical
	}
	return r
}

func fixture() []sensor.Reading {
	return []sensor.Reading{
		reading(day1.Add(22*time.Hour), 60, 1000, 22, false, false),
		reading(day1.Add(23*time.Hour), 90, 1010, 23, true, false),
		reading(day1.Add(24*time.Hour), 50, 1100, 24, true, true),
		reading(day1.Add(25*time.Hour), 40, 990, 25, false, true),
	}
}

func TestComputeKPIs_AllRecords(t *testing.T) {
	snap := ComputeKPIs(fixture(), nil)

	assert.Equal(t, 4, snap.TotalRecords)
	assert.Equal(t, 60.0, snap.AvgTemperature)
	assert.Equal(t, 1025.0, snap.AvgPressure)
	assert.Equal(t, Range{Min: 40, Max: 90}, snap.TemperatureRange)
	assert.Equal(t, Range{Min: 990, Max: 1100}, snap.PressureRange)
	assert.Equal(t, 3, snap.AlertCount)
	assert.Equal(t, 2, snap.TemperatureAlerts)
	assert.Equal(t, 2, snap.PressureAlerts)
	assert.Equal(t, 25.0, snap.UptimeHours)
	assert.Nil(t, snap.DateFilter)
	assert.False(t, snap.NoData)
}

func TestComputeKPIs_AlertCountMatchesRecount(t *testing.T) {
	readings := fixture()
	snap := ComputeKPIs(readings, nil)

	want := 0
	for _, r := range readings {
		if r.TemperatureAlert || r.PressureAlert {
			want++
		}
	}
	assert.Equal(t, want, snap.AlertCount)
}

func TestComputeKPIs_DateFilter(t *testing.T) {
	filter, err := sensor.ParseDateFilter("2024-04-02")
	require.NoError(t, err)

	snap := ComputeKPIs(fixture(), filter)

	assert.Equal(t, 2, snap.TotalRecords)
	assert.Equal(t, 45.0, snap.AvgTemperature)
	assert.Equal(t, 2, snap.AlertCount)
	assert.Equal(t, 25.0, snap.UptimeHours)
	require.NotNil(t, snap.DateFilter)
	assert.Equal(t, "2024-04-02", *snap.DateFilter)
}

func TestComputeKPIs_EmptySelection(t *testing.T) {
	filter, _ := sensor.ParseDateFilter("1999-01-01")

	snap := ComputeKPIs(fixture(), filter)

	assert.Equal(t, 0, snap.TotalRecords)
	assert.Equal(t, 0, snap.AlertCount)
	assert.Equal(t, 0.0, snap.AvgTemperature)
	assert.Equal(t, 0.0, snap.UptimeHours)
	assert.True(t, snap.NoData)

	// must encode: NaN would make json.Marshal fail
	_, err := json.Marshal(snap)
	assert.NoError(t, err)
}

func TestComputeKPIs_IgnoresNonFiniteValues(t *testing.T) {
	readings := fixture()
	readings[0].Temperature = math.NaN()

	snap := ComputeKPIs(readings, nil)

	assert.InDelta(t, 60.0, snap.AvgTemperature, 1e-9)
	assert.False(t, math.IsNaN(snap.AvgTemperature))
}

func TestComputeKPIs_WarningCount(t *testing.T) {
	readings := fixture()
	readings[0].PressureLevel = sensor.LevelWarning

	snap := ComputeKPIs(readings, nil)
	assert.Equal(t, 1, snap.WarningCount)
}

func TestPrepareTrend(t *testing.T) {
	readings := fixture()
	// out of order input is sorted ascending
	readings[0], readings[3] = readings[3], readings[0]

	ts := PrepareTrend(readings, nil)

	require.Len(t, ts.Timestamps, 4)
	assert.Len(t, ts.Temperatures, 4)
	assert.Len(t, ts.Pressures, 4)
	assert.Len(t, ts.Uptime, 4)
	assert.Equal(t, 4, ts.RecordCount)
	for i := 1; i < len(ts.Timestamps); i++ {
		assert.True(t, ts.Timestamps[i-1].Before(ts.Timestamps[i]))
	}
	assert.Equal(t, []float64{60, 90, 50, 40}, ts.Temperatures)
	assert.Equal(t, []float64{22, 23, 24, 25}, ts.Uptime)
}

func TestPrepareTrend_EmptySelection(t *testing.T) {
	filter, _ := sensor.ParseDateFilter("2030-01-01")

	ts := PrepareTrend(fixture(), filter)

	assert.NotNil(t, ts.Timestamps)
	assert.Empty(t, ts.Timestamps)
	assert.Equal(t, 0, ts.RecordCount)

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamps":[]`)
}

func TestSummarize(t *testing.T) {
	filter, _ := sensor.ParseDateFilter("2024-04-01")

	s := Summarize(fixture(), filter)

	assert.Equal(t, 2, s.KPIs.TotalRecords)
	assert.Equal(t, 2, s.Trends.RecordCount)
	require.NotNil(t, s.DateRange.Start)
	assert.True(t, s.DateRange.Start.Equal(day1.Add(22*time.Hour)))
	assert.True(t, s.DateRange.End.Equal(day1.Add(23*time.Hour)))

	empty := Summarize(nil, nil)
	assert.Nil(t, empty.DateRange.Start)
}
