package extract

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

var end = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestRead_ValidRows(t *testing.T) {
	input := `uptime,timestamp,pressure,temperature
1,2024-05-10T00:00:00Z,1001.5,55.2
2,2024-05-10 01:00:00,1002,56
3,2024-05-10T02:00:00.250000Z,,NaN
`
	readings, rowErrs, err := Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, readings, 3)

	assert.True(t, readings[0].Timestamp.Equal(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 55.2, *readings[0].Temperature)
	assert.Equal(t, 1001.5, *readings[0].Pressure)
	assert.Equal(t, 1.0, *readings[0].Uptime)

	assert.Equal(t, time.UTC, readings[1].Timestamp.Location())
	assert.Equal(t, 1, readings[1].Timestamp.Hour())

	assert.Equal(t, 250*time.Millisecond, time.Duration(readings[2].Timestamp.Nanosecond()))
	assert.Nil(t, readings[2].Pressure)
	assert.Nil(t, readings[2].Temperature)
	assert.Equal(t, 3.0, *readings[2].Uptime)
}

func TestRead_SkipsMalformedRows(t *testing.T) {
	input := `timestamp,temperature,pressure,uptime
2024-05-10T00:00:00Z,55,1000,1
not-a-time,55,1000,2
2024-05-10T02:00:00Z,hot,1000,3
2024-05-10T03:00:00Z,55
2024-05-10T04:00:00Z,57,1003,5
`
	readings, rowErrs, err := Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	require.Len(t, rowErrs, 3)

	assert.Equal(t, 3, rowErrs[0].Line)
	assert.Contains(t, rowErrs[0].Error(), "invalid timestamp")
	assert.Equal(t, 4, rowErrs[1].Line)
	assert.Contains(t, rowErrs[1].Reason, "invalid temperature")
	assert.Equal(t, 5, rowErrs[2].Line)
	assert.Equal(t, 57.0, *readings[1].Temperature)
}

func TestRead_MalformedLineAfterMultilineField(t *testing.T) {
	input := "timestamp,temperature,pressure,uptime,note\n" +
		"2024-05-10T00:00:00Z,55,1000,1,\"valve\nreplaced\"\n" +
		"not-a-time,55,1000,2,ok\n"

	readings, rowErrs, err := Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	require.Len(t, rowErrs, 1)
	assert.Equal(t, 4, rowErrs[0].Line)
}

func TestParseTimestamp_MicrosecondPrecision(t *testing.T) {
	ts, err := ParseTimestamp("2024-05-10T00:00:00.123456789Z")
	require.NoError(t, err)
	assert.Equal(t, 123456000, ts.Nanosecond())

	ts, err = ParseTimestamp("2024-05-10 00:00:00.5")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()))
}

func TestRead_DuplicatesKeptInOrder(t *testing.T) {
	input := `timestamp,temperature,pressure,uptime
2024-05-10T01:00:00Z,60,1000,1
2024-05-10T00:00:00Z,50,1000,0
2024-05-10T01:00:00Z,60,1000,1
`
	readings, _, err := Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, 60.0, *readings[0].Temperature)
	assert.Equal(t, 50.0, *readings[1].Temperature)
	assert.Equal(t, readings[0], readings[2])
}

func TestRead_UnusableSource(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing column", input: "timestamp,temperature,uptime\n2024-05-10T00:00:00Z,1,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Read(context.Background(), strings.NewReader(tt.input))
			assert.True(t, errors.Is(err, ErrSourceUnavailable), "got %v", err)
		})
	}
}

func TestExtractor_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	content := "timestamp,temperature,pressure,uptime\n2024-05-10T00:00:00Z,55,1000,1\nbad,1,1,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ex := NewExtractor(SyntheticConfig{Rows: 10, Seed: 1, End: end}, true, zap.NewNop())
	readings, st, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Len(t, readings, 1)
	assert.Equal(t, 1, st.Rows)
	assert.Equal(t, 1, st.MalformedRows)
	assert.False(t, st.Synthetic)
}

func TestExtractor_FallsBackToSynthetic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "raw.csv")

	ex := NewExtractor(SyntheticConfig{Rows: 24, Seed: 3, End: end}, true, zap.NewNop())
	readings, st, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Len(t, readings, 24)
	assert.True(t, st.Synthetic)
	assert.Equal(t, 24, st.Rows)

	// the generated batch was persisted and reads back identically
	again, st2, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, st2.Synthetic)
	require.Len(t, again, len(readings))
	for i := range readings {
		assert.True(t, readings[i].Timestamp.Equal(again[i].Timestamp))
		assert.Equal(t, *readings[i].Temperature, *again[i].Temperature)
		assert.Equal(t, *readings[i].Pressure, *again[i].Pressure)
		assert.Equal(t, *readings[i].Uptime, *again[i].Uptime)
	}
}

func TestExtractor_NoPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")

	ex := NewExtractor(SyntheticConfig{Rows: 5, End: end}, false, zap.NewNop())
	_, st, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, st.Synthetic)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSynthesize(t *testing.T) {
	cfg := SyntheticConfig{Rows: 100, Seed: 42, End: end}
	a := Synthesize(cfg)
	b := Synthesize(cfg)

	require.Len(t, a, 100)
	assert.Equal(t, a, b)

	assert.True(t, a[99].Timestamp.Equal(end))
	assert.Equal(t, time.Hour, a[1].Timestamp.Sub(a[0].Timestamp))

	for i, r := range a {
		assert.Equal(t, float64(i), *r.Uptime)
		assert.GreaterOrEqual(t, *r.Temperature, 20.0-30)
		assert.LessOrEqual(t, *r.Temperature, 100.0+30)
		assert.GreaterOrEqual(t, *r.Pressure, 900.0-100)
		assert.LessOrEqual(t, *r.Pressure, 1100.0+100)
	}

	other := Synthesize(SyntheticConfig{Rows: 100, Seed: 43, End: end})
	assert.NotEqual(t, a, other)
	assert.Nil(t, Synthesize(SyntheticConfig{Rows: 0}))
}

func TestWrite_RoundTrip(t *testing.T) {
	in := []sensor.RawReading{
		{Timestamp: end, Temperature: sensor.Float(61.25), Pressure: sensor.Float(1003.5), Uptime: sensor.Float(7)},
		{Timestamp: end.Add(time.Hour), Temperature: nil, Pressure: sensor.Float(999), Uptime: sensor.Float(8)},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in))
	assert.True(t, strings.HasPrefix(buf.String(), "timestamp,temperature,pressure,uptime\n"))

	out, rowErrs, err := Read(context.Background(), &buf)
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, out, 2)
	assert.Equal(t, 61.25, *out[0].Temperature)
	assert.Nil(t, out[1].Temperature)
	assert.True(t, out[1].Timestamp.Equal(end.Add(time.Hour)))
}
