// Package store persists enriched readings to one of three backend profiles
// and reads them back ordered by timestamp.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

// Store is implemented by every backend profile. Query, Count and Ping are
// safe for concurrent use, including while a Load is in progress: readers
// observe either the previous or the new table contents.
type Store interface {
	// Load replaces the contents of table with readings in one transaction
	Load(ctx context.Context, table string, readings []sensor.Reading) (LoadResult, error)
	// Query returns the rows of table ordered by timestamp ascending,
	// restricted to the filter's day when filter is not nil
	Query(ctx context.Context, table string, filter *sensor.DateFilter) ([]sensor.Reading, error)
	Count(ctx context.Context, table string) (int, error)
	Ping(ctx context.Context) error
	Kind() Kind
	Close() error
}

// Observer receives the duration and outcome of every store operation
type Observer interface {
	ObserveStoreOp(backend, op string, d time.Duration, err error)
}

// Options tunes a store connection
type Options struct {
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
	MaxOpenConns   int
	MaxIdleConns   int
	Observer       Observer
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 25
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 5
	}
	return o
}

// LoadResult describes a completed replace-load
type LoadResult struct {
	Table      string
	Rows       int
	Backend    Kind
	Hypertable bool
	Duration   time.Duration
}

// Open parses conn and returns the adapter for its backend profile
func Open(ctx context.Context, conn string, opts Options, logger *zap.Logger) (Store, error) {
	target, err := ParseTarget(conn)
	if err != nil {
		return nil, err
	}

	switch target.Kind {
	case FileEmbedded:
		return OpenSQLite(ctx, target.DSN, opts, logger)
	case RelationalServer, TimeSeriesOptimized:
		return OpenPostgres(ctx, target, opts, logger)
	}
	return nil, fmt.Errorf("unsupported backend %s", target.Kind)
}

// dialect captures what differs between the SQL backends
type dialect interface {
	types() columnTypes
	placeholder(n int) string
	timeArg(t time.Time) any
	clear(ctx context.Context, tx *sql.Tx, table string) error
	insert(ctx context.Context, tx *sql.Tx, table string, readings []sensor.Reading) error
	isUndefinedTable(err error) bool
}

// sqlStore implements Store on top of database/sql for any dialect
type sqlStore struct {
	db     *sql.DB
	kind   Kind
	d      dialect
	opts   Options
	logger *zap.Logger

	// beforeLoad runs after the schema exists and before the load
	// transaction starts. It reports whether the table is a hypertable.
	beforeLoad func(ctx context.Context, table string) bool
}

func newSQLStore(db *sql.DB, kind Kind, d dialect, opts Options, logger *zap.Logger) *sqlStore {
	opts = opts.withDefaults()
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	return &sqlStore{db: db, kind: kind, d: d, opts: opts, logger: logger}
}

func (s *sqlStore) Kind() Kind { return s.kind }

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) observe(op string, start time.Time, err error) {
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveStoreOp(s.kind.String(), op, time.Since(start), err)
	}
}

// Ping checks connectivity within the connect timeout
func (s *sqlStore) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.observe("ping", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return &StoreError{Op: "ping", Backend: s.kind, Unavailable: true, Retryable: true, Err: err}
	}
	return nil
}

func (s *sqlStore) ensureSchema(ctx context.Context, table string) error {
	for _, stmt := range schemaStatements(table, s.d.types()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Load(ctx context.Context, table string, readings []sensor.Reading) (res LoadResult, err error) {
	start := time.Now()
	defer func() { s.observe("load", start, err) }()

	if err := ValidateTable(table); err != nil {
		return LoadResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	if err := s.ensureSchema(ctx, table); err != nil {
		return LoadResult{}, wrapErr("load", s.kind, err)
	}

	res = LoadResult{Table: table, Rows: len(readings), Backend: s.kind}
	if s.beforeLoad != nil {
		res.Hypertable = s.beforeLoad(ctx, table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadResult{}, wrapErr("load", s.kind, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Warn("Rollback failed", zap.String("table", table), zap.Error(rbErr))
			}
		}
	}()

	if err = s.d.clear(ctx, tx, table); err != nil {
		return LoadResult{}, wrapErr("load", s.kind, fmt.Errorf("failed to clear table: %w", err))
	}
	if err = s.d.insert(ctx, tx, table, readings); err != nil {
		return LoadResult{}, wrapErr("load", s.kind, fmt.Errorf("failed to insert readings: %w", err))
	}
	if err = tx.Commit(); err != nil {
		return LoadResult{}, wrapErr("load", s.kind, fmt.Errorf("failed to commit: %w", err))
	}

	res.Duration = time.Since(start)
	s.logger.Info("Replaced table contents",
		zap.String("backend", s.kind.String()),
		zap.String("table", table),
		zap.Int("rows", res.Rows),
		zap.Bool("hypertable", res.Hypertable),
		zap.Duration("duration", res.Duration))

	return res, nil
}

func (s *sqlStore) Query(ctx context.Context, table string, filter *sensor.DateFilter) (readings []sensor.Reading, err error) {
	start := time.Now()
	defer func() { s.observe("query", start, err) }()

	if err := ValidateTable(table); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := selectQuery(table, filter != nil, s.d.placeholder)
	var args []any
	if filter != nil {
		from, to := filter.Range()
		args = append(args, s.d.timeArg(from), s.d.timeArg(to))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if s.d.isUndefinedTable(err) {
			return []sensor.Reading{}, nil
		}
		return nil, wrapErr("query", s.kind, err)
	}
	defer rows.Close()

	readings = []sensor.Reading{}
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, wrapErr("query", s.kind, err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("query", s.kind, err)
	}

	return readings, nil
}

func (s *sqlStore) Count(ctx context.Context, table string) (n int, err error) {
	start := time.Now()
	defer func() { s.observe("count", start, err) }()

	if err := ValidateTable(table); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		if s.d.isUndefinedTable(err) {
			return 0, nil
		}
		return 0, wrapErr("count", s.kind, err)
	}
	return n, nil
}

func scanReading(rows *sql.Rows) (sensor.Reading, error) {
	var (
		r          sensor.Reading
		ts         any
		tLvl, pLvl string
	)
	err := rows.Scan(
		&ts,
		&r.Temperature,
		&r.Pressure,
		&r.Uptime,
		&r.Hour,
		&r.DayOfWeek,
		&r.Month,
		&r.TemperatureZScore,
		&r.PressureZScore,
		&r.TemperatureAlert,
		&r.PressureAlert,
		&tLvl,
		&pLvl,
	)
	if err != nil {
		return r, err
	}

	switch v := ts.(type) {
	case time.Time:
		r.Timestamp = v.UTC()
	case int64:
		r.Timestamp = time.Unix(0, v).UTC()
	default:
		return r, fmt.Errorf("unexpected timestamp type %T", ts)
	}
	r.TemperatureLevel = sensor.Level(tLvl)
	r.PressureLevel = sensor.Level(pLvl)

	return r, nil
}

// OptionsFromConfig maps the database section onto Options
func OptionsFromConfig(cfg config.DatabaseConfig, obs Observer) Options {
	return Options{
		ConnectTimeout: cfg.ConnectTimeout,
		QueryTimeout:   cfg.QueryTimeout,
		MaxOpenConns:   cfg.MaxOpenConns,
		MaxIdleConns:   cfg.MaxIdleConns,
		Observer:       obs,
	}
}
