package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
)

// OpenPostgres connects to a relational or time-series server described by a
// postgres:// URL
func OpenPostgres(ctx context.Context, target Target, opts Options, logger *zap.Logger) (Store, error) {
	opts = opts.withDefaults()

	dsn, err := withConnectTimeout(target.DSN, opts.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid connection target: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &StoreError{Op: "connect", Backend: target.Kind, Unavailable: true, Err: err}
	}

	s := NewPostgres(db, target.Kind, opts, logger)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to store", zap.String("backend", target.Kind.String()), zap.String("target", redact(target.DSN)))
	return s, nil
}

// NewPostgres wraps an open *sql.DB. kind must be RelationalServer or
// TimeSeriesOptimized; the latter declares a hypertable before each load.
func NewPostgres(db *sql.DB, kind Kind, opts Options, logger *zap.Logger) Store {
	s := newSQLStore(db, kind, postgresDialect{}, opts, logger)
	if kind == TimeSeriesOptimized {
		h := &hypertables{db: db, logger: logger}
		s.beforeLoad = h.ensure
	}
	return s
}

// withConnectTimeout adds lib/pq's connect_timeout (whole seconds) unless the
// URL already sets one
func withConnectTimeout(dsn string, timeout time.Duration) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if q.Get("connect_timeout") == "" && timeout > 0 {
		secs := int(timeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type postgresDialect struct{}

func (postgresDialect) types() columnTypes { return postgresTypes }

func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) timeArg(t time.Time) any { return t.UTC() }

// TRUNCATE takes an exclusive lock until commit, so concurrent readers wait
// and then see the new contents
func (postgresDialect) clear(ctx context.Context, tx *sql.Tx, table string) error {
	_, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+quote(table))
	return err
}

// insert streams rows with COPY FROM STDIN
func (d postgresDialect) insert(ctx context.Context, tx *sql.Tx, table string, readings []sensor.Reading) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for i := range readings {
		if _, err := stmt.ExecContext(ctx, rowArgs(&readings[i], d.timeArg)...); err != nil {
			stmt.Close()
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	return stmt.Close()
}

func (postgresDialect) isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}
