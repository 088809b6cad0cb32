package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

// OpenSQLite opens (creating if needed) the database file at path. The file
// runs in WAL mode so readers keep seeing the last committed table while a
// load is in progress.
func OpenSQLite(ctx context.Context, path string, opts Options, logger *zap.Logger) (Store, error) {
	opts = opts.withDefaults()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StoreError{Op: "connect", Backend: FileEmbedded, Unavailable: true, Err: err}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, opts.ConnectTimeout))
	if err != nil {
		return nil, &StoreError{Op: "connect", Backend: FileEmbedded, Unavailable: true, Err: err}
	}

	s := newSQLStore(db, FileEmbedded, sqliteDialect{}, opts, logger)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to store", zap.String("backend", FileEmbedded.String()), zap.String("path", path))
	return s, nil
}

func sqliteDSN(path string, busyTimeout time.Duration) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

type sqliteDialect struct{}

func (sqliteDialect) types() columnTypes { return sqliteTypes }

func (sqliteDialect) placeholder(int) string { return "?" }

// Timestamps are stored as UTC unix nanoseconds
func (sqliteDialect) timeArg(t time.Time) any { return t.UTC().UnixNano() }

func (sqliteDialect) clear(ctx context.Context, tx *sql.Tx, table string) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM "+quote(table))
	return err
}

func (d sqliteDialect) insert(ctx context.Context, tx *sql.Tx, table string, readings []sensor.Reading) error {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(columns, ", "), marks)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range readings {
		if _, err := stmt.ExecContext(ctx, rowArgs(&readings[i], d.timeArg)...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func (sqliteDialect) isUndefinedTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// rowArgs returns the values of r in column order
func rowArgs(r *sensor.Reading, timeArg func(time.Time) any) []any {
	return []any{
		timeArg(r.Timestamp),
		r.Temperature,
		r.Pressure,
		r.Uptime,
		r.Hour,
		r.DayOfWeek,
		r.Month,
		r.TemperatureZScore,
		r.PressureZScore,
		r.TemperatureAlert,
		r.PressureAlert,
		string(r.TemperatureLevel),
		string(r.PressureLevel),
	}
}
