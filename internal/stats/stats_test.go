package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{25, 3.25},
		{50, 5.5},
		{75, 7.75},
		{100, 10},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, Percentile(sorted, tt.p), 1e-9, "p=%v", tt.p)
	}

	assert.Equal(t, 0.0, Percentile(nil, 50))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 25))
}

func TestQuartiles(t *testing.T) {
	q1, q3, iqr := Quartiles([]float64{10, 1, 9, 2, 8, 3, 7, 4, 6, 5})
	assert.InDelta(t, 3.25, q1, 1e-9)
	assert.InDelta(t, 7.75, q3, 1e-9)
	assert.InDelta(t, 4.5, iqr, 1e-9)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, Median(nil))
}

func TestMean(t *testing.T) {
	m, ok := Mean([]float64{1, 2, 3, 4})
	assert.True(t, ok)
	assert.Equal(t, 2.5, m)

	m, ok = Mean(nil)
	assert.False(t, ok)
	assert.Equal(t, 0.0, m)
}

func TestMeanStdDev_Population(t *testing.T) {
	mean, sd := MeanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 2.0, sd)
}

func TestMeanStdDev_ConstantIsExactlyZero(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = 0.1
	}

	mean, sd := MeanStdDev(values)
	assert.Equal(t, 0.1, mean)
	assert.Equal(t, 0.0, sd)
	assert.Equal(t, 0.0, ZScore(0.1, mean, sd))
}

func TestMinMax(t *testing.T) {
	lo, hi := MinMax([]float64{3, -1, 8, 2})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 8.0, hi)

	lo, hi = MinMax(nil)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 0.0, hi)
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite(1.5))
	assert.False(t, Finite(math.NaN()))
	assert.False(t, Finite(math.Inf(-1)))
}
