// Package clean replaces statistical outliers and imputes missing values,
// one numeric column at a time.
package clean

import (
	"fmt"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/internal/stats"
)

const (
	// IQRMultiplier widens the interquartile band used for outlier detection
	IQRMultiplier = 1.5

	// MinSamplesForIQR is the smallest column size for which outlier detection runs
	MinSamplesForIQR = 4
)

// ColumnReport describes what cleaning did to a single column
type ColumnReport struct {
	Column           sensor.Column
	Valid            int
	Imputed          int
	OutliersReplaced int
	IQRApplied       bool
	Lower            float64
	Upper            float64
	Degenerate       bool // no valid values at all; column filled with 0
}

// Report summarizes a cleaning pass
type Report struct {
	Columns  []ColumnReport
	Warnings []string
}

// OutliersReplaced returns the total number of replaced outliers
func (r Report) OutliersReplaced() int {
	n := 0
	for _, c := range r.Columns {
		n += c.OutliersReplaced
	}
	return n
}

// Imputed returns the total number of imputed missing values
func (r Report) Imputed() int {
	n := 0
	for _, c := range r.Columns {
		n += c.Imputed
	}
	return n
}

// Clean returns a copy of readings in which every numeric column is complete
// and free of IQR outliers. The input slice is not modified.
func Clean(readings []sensor.RawReading) ([]sensor.RawReading, Report) {
	out := make([]sensor.RawReading, len(readings))
	copy(out, readings)

	var report Report
	for _, col := range sensor.NumericColumns {
		cr := cleanColumn(out, col)
		if cr.Degenerate && len(out) > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("column %s has no valid values; imputed with 0", col))
		} else if !cr.IQRApplied && len(out) > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("column %s has %d valid values; outlier detection skipped", col, cr.Valid))
		}
		report.Columns = append(report.Columns, cr)
	}

	return out, report
}

func cleanColumn(rows []sensor.RawReading, col sensor.Column) ColumnReport {
	cr := ColumnReport{Column: col}

	valid := make([]float64, 0, len(rows))
	for i := range rows {
		if v := rows[i].Value(col); v != nil && stats.Finite(*v) {
			valid = append(valid, *v)
		}
	}
	cr.Valid = len(valid)

	if len(valid) == 0 {
		cr.Degenerate = true
		for i := range rows {
			rows[i].Set(col, 0)
			cr.Imputed++
		}
		return cr
	}

	// Missing values take the median of all valid values, computed before
	// outliers are replaced.
	fill := stats.Median(valid)

	if len(valid) >= MinSamplesForIQR {
		q1, q3, iqr := stats.Quartiles(valid)
		cr.Lower = q1 - IQRMultiplier*iqr
		cr.Upper = q3 + IQRMultiplier*iqr
		cr.IQRApplied = true

		inBand := make([]float64, 0, len(valid))
		for _, v := range valid {
			if v >= cr.Lower && v <= cr.Upper {
				inBand = append(inBand, v)
			}
		}
		bandMedian := stats.Median(inBand)

		for i := range rows {
			v := rows[i].Value(col)
			if v == nil || !stats.Finite(*v) {
				continue
			}
			if *v < cr.Lower || *v > cr.Upper {
				rows[i].Set(col, bandMedian)
				cr.OutliersReplaced++
			}
		}
	}

	for i := range rows {
		if v := rows[i].Value(col); v == nil || !stats.Finite(*v) {
			rows[i].Set(col, fill)
			cr.Imputed++
		}
	}

	return cr
}
