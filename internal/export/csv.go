// Package export renders processed readings as CSV or XLSX downloads.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

// Header is the column order of every export
var Header = []string{
	"timestamp",
	"temperature",
	"pressure",
	"uptime",
	"temperature_zscore",
	"pressure_zscore",
	"temperature_alert",
	"pressure_alert",
}

// ErrUnsupportedFormat is returned by ParseFormat for unknown formats
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is a supported download format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" (also the empty default) and "xlsx"
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of f
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Filename returns the attachment name for a download of table
func Filename(table string, filter *sensor.DateFilter, f Format) string {
	if filter != nil {
		return fmt.Sprintf("%s_%s.%s", table, filter.String(), f)
	}
	return fmt.Sprintf("%s.%s", table, f)
}

// WriteCSV writes readings with Header as the first line
func WriteCSV(w io.Writer, readings []sensor.Reading) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range readings {
		if err := cw.Write(record(&readings[i])); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes readings to path, creating parent directories
func WriteCSVFile(path string, readings []sensor.Reading) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteCSV(f, readings); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func record(r *sensor.Reading) []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		formatFloat(r.Temperature),
		formatFloat(r.Pressure),
		formatFloat(r.Uptime),
		formatFloat(r.TemperatureZScore),
		formatFloat(r.PressureZScore),
		strconv.FormatBool(r.TemperatureAlert),
		strconv.FormatBool(r.PressureAlert),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
