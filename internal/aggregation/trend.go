package aggregation

import (
	"sort"
	"time"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

// TrendSeries holds chart-ready parallel arrays of equal length, ordered by
// timestamp ascending
type TrendSeries struct {
	Timestamps   []time.Time `json:"timestamps"`
	Temperatures []float64   `json:"temperatures"`
	Pressures    []float64   `json:"pressures"`
	Uptime       []float64   `json:"uptime_hours"`
	RecordCount  int         `json:"record_count"`
	DateFilter   *string     `json:"date_filter"`
}

// DateRange is the span of timestamps covered by a selection
type DateRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Summary combines the KPI snapshot and the trend series of one selection
type Summary struct {
	KPIs      KPISnapshot `json:"kpis"`
	Trends    TrendSeries `json:"trends"`
	DateRange DateRange   `json:"date_range"`
}

// PrepareTrend builds the trend series for readings restricted to filter.
// Arrays are empty, not nil, when nothing matches.
func PrepareTrend(readings []sensor.Reading, filter *sensor.DateFilter) TrendSeries {
	selected := sortedCopy(FilterByDate(readings, filter))

	ts := TrendSeries{
		Timestamps:   make([]time.Time, len(selected)),
		Temperatures: make([]float64, len(selected)),
		Pressures:    make([]float64, len(selected)),
		Uptime:       make([]float64, len(selected)),
		RecordCount:  len(selected),
		DateFilter:   filterString(filter),
	}
	for i, r := range selected {
		ts.Timestamps[i] = r.Timestamp.UTC()
		ts.Temperatures[i] = r.Temperature
		ts.Pressures[i] = r.Pressure
		ts.Uptime[i] = r.Uptime
	}

	return ts
}

// Summarize returns KPIs, trends and the covered date range for filter
func Summarize(readings []sensor.Reading, filter *sensor.DateFilter) Summary {
	s := Summary{
		KPIs:   ComputeKPIs(readings, filter),
		Trends: PrepareTrend(readings, filter),
	}
	if n := len(s.Trends.Timestamps); n > 0 {
		start, end := s.Trends.Timestamps[0], s.Trends.Timestamps[n-1]
		s.DateRange = DateRange{Start: &start, End: &end}
	}
	return s
}

func sortedCopy(readings []sensor.Reading) []sensor.Reading {
	out := make([]sensor.Reading, len(readings))
	copy(out, readings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
