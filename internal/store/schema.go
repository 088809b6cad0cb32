package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateTable rejects names that are not plain SQL identifiers
func ValidateTable(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}

// columns lists the persisted fields in insert and select order
var columns = []string{
	"timestamp",
	"temperature",
	"pressure",
	"uptime",
	"hour",
	"day_of_week",
	"month",
	"temperature_zscore",
	"pressure_zscore",
	"temperature_alert",
	"pressure_alert",
	"temperature_level",
	"pressure_level",
}

// indexedColumns receive a secondary index
var indexedColumns = []string{"timestamp", "uptime", "temperature_alert", "pressure_alert", "temperature", "pressure"}

// columnTypes maps each column to its type for one backend
type columnTypes struct {
	timestamp string
	float     string
	smallInt  string
	boolean   string
	text      string
}

var (
	sqliteTypes   = columnTypes{timestamp: "INTEGER", float: "REAL", smallInt: "INTEGER", boolean: "INTEGER", text: "TEXT"}
	postgresTypes = columnTypes{timestamp: "TIMESTAMPTZ", float: "DOUBLE PRECISION", smallInt: "SMALLINT", boolean: "BOOLEAN", text: "TEXT"}
)

// schemaStatements returns idempotent DDL creating the table and its indexes
func schemaStatements(table string, ct columnTypes) []string {
	q := quote(table)

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	timestamp          %s NOT NULL,
	temperature        %s NOT NULL,
	pressure           %s NOT NULL,
	uptime             %s NOT NULL,
	hour               %s NOT NULL,
	day_of_week        %s NOT NULL,
	month              %s NOT NULL,
	temperature_zscore %s NOT NULL,
	pressure_zscore    %s NOT NULL,
	temperature_alert  %s NOT NULL,
	pressure_alert     %s NOT NULL,
	temperature_level  %s NOT NULL,
	pressure_level     %s NOT NULL
)`, q,
		ct.timestamp, ct.float, ct.float, ct.float,
		ct.smallInt, ct.smallInt, ct.smallInt,
		ct.float, ct.float,
		ct.boolean, ct.boolean,
		ct.text, ct.text)

	stmts := []string{create}
	for _, col := range indexedColumns {
		idx := quote(fmt.Sprintf("idx_%s_%s", table, col))
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx, q, col))
	}
	return stmts
}

// selectQuery returns the ordered select, with a half-open timestamp range
// predicate when ranged is set. ph renders the n-th placeholder.
func selectQuery(table string, ranged bool, ph func(n int) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(columns, ", "), quote(table))
	if ranged {
		fmt.Fprintf(&b, " WHERE timestamp >= %s AND timestamp < %s", ph(1), ph(2))
	}
	b.WriteString(" ORDER BY timestamp ASC")
	return b.String()
}

func quote(identifier string) string {
	return pq.QuoteIdentifier(identifier)
}
