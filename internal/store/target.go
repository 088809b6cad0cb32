package store

import (
	"fmt"
	"strings"
)

// Kind is the backend profile selected by a connection target
type Kind int

const (
	// FileEmbedded is a single-file engine without a server process
	FileEmbedded Kind = iota + 1
	// RelationalServer is a client/server relational engine
	RelationalServer
	// TimeSeriesOptimized is a relational server with hypertable support
	TimeSeriesOptimized
)

func (k Kind) String() string {
	switch k {
	case FileEmbedded:
		return "sqlite"
	case RelationalServer:
		return "postgres"
	case TimeSeriesOptimized:
		return "timescaledb"
	default:
		return "unknown"
	}
}

// Target is a parsed connection target
type Target struct {
	Kind Kind
	// DSN is the driver-specific data source name: a file path for
	// FileEmbedded and a postgres:// URL otherwise.
	DSN string
}

// ParseTarget selects the backend profile for a connection string. It is the
// only place that inspects the scheme.
func ParseTarget(conn string) (Target, error) {
	conn = strings.TrimSpace(conn)
	lower := strings.ToLower(conn)

	switch {
	case conn == "":
		return Target{}, fmt.Errorf("empty connection target")

	case strings.HasPrefix(lower, "sqlite://"):
		path := conn[len("sqlite://"):]
		if path == "" {
			return Target{}, fmt.Errorf("sqlite target %q has no path", conn)
		}
		return Target{Kind: FileEmbedded, DSN: path}, nil

	case strings.HasPrefix(lower, "file:"):
		path := strings.TrimPrefix(conn[len("file:"):], "//")
		if path == "" {
			return Target{}, fmt.Errorf("file target %q has no path", conn)
		}
		return Target{Kind: FileEmbedded, DSN: path}, nil

	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Target{Kind: RelationalServer, DSN: conn}, nil

	case strings.HasPrefix(lower, "timescaledb://"):
		return Target{Kind: TimeSeriesOptimized, DSN: "postgres://" + conn[len("timescaledb://"):]}, nil

	case strings.HasPrefix(lower, "timescale://"):
		return Target{Kind: TimeSeriesOptimized, DSN: "postgres://" + conn[len("timescale://"):]}, nil

	case !strings.Contains(conn, "://") &&
		(strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") || strings.HasSuffix(lower, ".sqlite3")):
		return Target{Kind: FileEmbedded, DSN: conn}, nil
	}

	return Target{}, fmt.Errorf("unsupported connection target %q", redact(conn))
}

// redact hides the password of a URL-shaped connection string
func redact(conn string) string {
	scheme := strings.Index(conn, "://")
	at := strings.LastIndex(conn, "@")
	if scheme < 0 || at < scheme {
		return conn
	}
	userinfo := conn[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		return conn[:scheme+3] + userinfo[:colon] + ":***" + conn[at:]
	}
	return conn
}
