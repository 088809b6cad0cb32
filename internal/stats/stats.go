// Package stats holds the batch statistics used by the cleaner, the enricher
// and the aggregator. Every function returns a defined value for empty input
// so NaN never leaves this package.
package stats

import (
	"math"
	"sort"
)

// Sorted returns a sorted copy of values
func Sorted(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// Percentile returns the p-th percentile (0-100) of sorted data using linear
// interpolation between closest ranks. It returns 0 for empty input.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := (p / 100) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Median returns the median of values, 0 for empty input
func Median(values []float64) float64 {
	return Percentile(Sorted(values), 50)
}

// Quartiles returns Q1, Q3 and the interquartile range of values
func Quartiles(values []float64) (q1, q3, iqr float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	s := Sorted(values)
	q1 = Percentile(s, 25)
	q3 = Percentile(s, 75)
	return q1, q3, q3 - q1
}

// Mean returns the arithmetic mean and false when values is empty
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// MeanStdDev returns the mean and the population standard deviation.
// A batch whose values are all equal reports a standard deviation of exactly 0.
func MeanStdDev(values []float64) (mean, stdDev float64) {
	if len(values) == 0 {
		return 0, 0
	}

	mean, _ = Mean(values)

	constant := true
	var varianceSum float64
	for _, v := range values {
		if v != values[0] {
			constant = false
		}
		diff := v - mean
		varianceSum += diff * diff
	}
	if constant {
		return values[0], 0
	}

	return mean, math.Sqrt(varianceSum / float64(len(values)))
}

// ZScore returns (v-mean)/stdDev, or 0 when stdDev is 0
func ZScore(v, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (v - mean) / stdDev
}

// MinMax returns the smallest and largest value, zeros for empty input
func MinMax(values []float64) (lo, hi float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Finite reports whether v is neither NaN nor infinite
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
