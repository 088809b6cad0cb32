package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/internal/stats"
)

// ErrSourceUnavailable is returned when the source file is missing, empty or
// lacks a required column
var ErrSourceUnavailable = errors.New("source unavailable")

// RequiredColumns must all be present in the source header
var RequiredColumns = []string{"timestamp", "temperature", "pressure", "uptime"}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// Stats describes one extraction
type Stats struct {
	Source        string
	Rows          int
	MalformedRows int
	Synthetic     bool
}

// RowError describes a row that could not be parsed
type RowError struct {
	Line   int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Extractor reads raw readings from a CSV source and falls back to synthetic
// data when the source cannot be used
type Extractor struct {
	synth   SyntheticConfig
	persist bool
	logger  *zap.Logger
}

// NewExtractor creates an extractor. When persist is true a synthetic batch
// is written back to the source path so later runs read the same data.
func NewExtractor(synth SyntheticConfig, persist bool, logger *zap.Logger) *Extractor {
	return &Extractor{synth: synth, persist: persist, logger: logger}
}

// Extract returns the readings of source in file order. Synthetic generation
// runs at most once per call.
func (e *Extractor) Extract(ctx context.Context, source string) ([]sensor.RawReading, Stats, error) {
	st := Stats{Source: source}

	readings, rowErrs, err := ReadFile(ctx, source)
	if err == nil {
		for _, re := range rowErrs {
			e.logger.Warn("Skipping malformed row", zap.String("source", source), zap.Int("line", re.Line), zap.String("reason", re.Reason))
		}
		st.Rows = len(readings)
		st.MalformedRows = len(rowErrs)
		e.logger.Info("Extracted readings", zap.String("source", source), zap.Int("rows", st.Rows), zap.Int("malformed_rows", st.MalformedRows))
		return readings, st, nil
	}
	if !errors.Is(err, ErrSourceUnavailable) {
		return nil, st, err
	}

	e.logger.Warn("Source unavailable, generating synthetic data",
		zap.String("source", source), zap.Error(err), zap.Int("rows", e.synth.Rows))

	readings = Synthesize(e.synth)
	st.Rows = len(readings)
	st.Synthetic = true

	if e.persist && source != "" {
		if err := WriteFile(source, readings); err != nil {
			e.logger.Warn("Failed to save synthetic data", zap.String("source", source), zap.Error(err))
		} else {
			e.logger.Info("Synthetic data saved", zap.String("source", source))
		}
	}

	return readings, st, nil
}

// ReadFile opens path and parses it with Read
func ReadFile(ctx context.Context, path string) ([]sensor.RawReading, []*RowError, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("%w: no source path", ErrSourceUnavailable)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	return Read(ctx, f)
}

// Read parses CSV with a header naming at least the required columns, in any
// order. Rows that cannot be parsed are skipped and reported.
func Read(ctx context.Context, r io.Reader) ([]sensor.RawReading, []*RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: empty file", ErrSourceUnavailable)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unreadable header: %v", ErrSourceUnavailable, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: missing columns %s", ErrSourceUnavailable, strings.Join(missing, ","))
	}

	var (
		readings []sensor.RawReading
		rowErrs  []*RowError
	)
	for n := 1; ; n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rowErrs = append(rowErrs, &RowError{Line: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read source: %w", err)
		}

		reading, reason := parseRecord(record, index)
		if reason != "" {
			line, _ := cr.FieldPos(0)
			rowErrs = append(rowErrs, &RowError{Line: line, Reason: reason})
			continue
		}
		readings = append(readings, reading)
	}

	return readings, rowErrs, nil
}

func parseRecord(record []string, index map[string]int) (sensor.RawReading, string) {
	field := func(name string) (string, bool) {
		i := index[name]
		if i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	var r sensor.RawReading

	ts, ok := field("timestamp")
	if !ok {
		return r, "too few fields"
	}
	t, err := ParseTimestamp(ts)
	if err != nil {
		return r, err.Error()
	}
	r.Timestamp = t

	for _, col := range sensor.NumericColumns {
		raw, ok := field(string(col))
		if !ok {
			return r, "too few fields"
		}
		v, missing, err := parseNumber(raw)
		if err != nil {
			return r, fmt.Sprintf("invalid %s %q", col, raw)
		}
		if !missing {
			r.Set(col, v)
		}
	}

	return r, ""
}

func parseNumber(s string) (v float64, missing bool, err error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "null", "none":
		return 0, true, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if !stats.Finite(v) {
		return 0, true, nil
	}
	return v, false, nil
}

// ParseTimestamp accepts RFC3339 and the common naive layouts. Naive
// timestamps are interpreted as UTC. Precision is cut to microseconds, the
// finest unit every store profile keeps.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
