package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// hypertables declares tables as TimescaleDB hypertables partitioned on the
// timestamp column. Failures are logged and the table keeps working as a
// plain relational table.
type hypertables struct {
	db     *sql.DB
	logger *zap.Logger
}

func (h *hypertables) ensure(ctx context.Context, table string) bool {
	ok, err := h.declare(ctx, table)
	if err != nil {
		h.logger.Warn("Hypertable declaration failed, continuing as plain table",
			zap.String("table", table), zap.Error(err))
		return false
	}
	return ok
}

func (h *hypertables) declare(ctx context.Context, table string) (bool, error) {
	if _, err := h.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		return false, fmt.Errorf("failed to enable timescaledb: %w", err)
	}

	var existing int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM timescaledb_information.hypertables WHERE hypertable_name = $1",
		table,
	).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("failed to inspect hypertables: %w", err)
	}
	if existing > 0 {
		return true, nil
	}

	_, err = h.db.ExecContext(ctx,
		"SELECT create_hypertable($1, 'timestamp', if_not_exists => TRUE, migrate_data => TRUE)",
		quote(table),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create hypertable: %w", err)
	}

	h.logger.Info("Created hypertable", zap.String("table", table))
	return true, nil
}
