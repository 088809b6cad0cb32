package extract

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

// SyntheticConfig controls the fallback generator
type SyntheticConfig struct {
	Rows     int
	Seed     int64
	Interval time.Duration // default 1h
	End      time.Time     // timestamp of the last row; zero means now
}

const anomalyRate = 0.05

// Synthesize generates cfg.Rows readings that follow a daily temperature cycle
// and a 12-hour pressure cycle with uniform noise and occasional spikes.
// The same seed and end time always produce the same batch.
func Synthesize(cfg SyntheticConfig) []sensor.RawReading {
	if cfg.Rows <= 0 {
		return nil
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	end := cfg.End
	if end.IsZero() {
		end = time.Now()
	}
	end = end.UTC().Truncate(time.Second)
	start := end.Add(-time.Duration(cfg.Rows-1) * interval)

	rng := rand.New(rand.NewSource(cfg.Seed))

	out := make([]sensor.RawReading, cfg.Rows)
	for i := range out {
		fi := float64(i)

		temperature := 60 + 20*math.Sin(2*math.Pi*fi/24) + uniform(rng, -10, 10)
		temperature = clamp(temperature, 20, 100)

		pressure := 1000 + 50*math.Sin(2*math.Pi*fi/12) + uniform(rng, -20, 20)
		pressure = clamp(pressure, 900, 1100)

		if rng.Float64() < anomalyRate {
			if rng.Intn(2) == 0 {
				temperature += spike(rng, 30)
			} else {
				pressure += spike(rng, 100)
			}
		}

		out[i] = sensor.RawReading{
			Timestamp:   start.Add(time.Duration(i) * interval),
			Temperature: sensor.Float(round2(temperature)),
			Pressure:    sensor.Float(round2(pressure)),
			Uptime:      sensor.Float(fi),
		}
	}

	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func spike(rng *rand.Rand, size float64) float64 {
	if rng.Intn(2) == 0 {
		return -size
	}
	return size
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Write encodes readings as a source CSV. Missing values are written as
// empty cells.
func Write(w io.Writer, readings []sensor.RawReading) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	if err := cw.Write(RequiredColumns); err != nil {
		return err
	}
	record := make([]string, len(RequiredColumns))
	for _, r := range readings {
		record[0] = r.Timestamp.UTC().Format(time.RFC3339Nano)
		for i, col := range sensor.NumericColumns {
			record[i+1] = ""
			if v := r.Value(col); v != nil {
				record[i+1] = strconv.FormatFloat(*v, 'f', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile writes readings to path, creating parent directories
func WriteFile(path string, readings []sensor.RawReading) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, readings); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
