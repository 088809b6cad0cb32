// Package service answers the read-side queries of the API from the store,
// with an optional response cache in front.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/aggregation"
	"github.com/smukkama/sensor-pipeline/internal/cache"
	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/internal/store"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	DatabaseConnected = "connected"
	DatabaseError     = "error"

	// healthError is reported instead of the driver error, which can carry
	// host names and addresses
	healthError = "database unavailable"
)

// Health reports store connectivity
type Health struct {
	Status      string     `json:"status"`
	Database    string     `json:"database"`
	RecordCount int        `json:"record_count"`
	Timestamp   time.Time  `json:"timestamp"`
	Version     string     `json:"version"`
	Backend     string     `json:"backend"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Healthy reports whether the store answered
func (h *Health) Healthy() bool { return h.Status == StatusHealthy }

// Service computes KPI, trend and summary responses for one table
type Service struct {
	store   store.Store
	cache   *cache.Cache
	table   string
	version string
	nextRun func() (time.Time, bool)
	logger  *zap.Logger
}

// New creates a service. c may be nil to disable caching.
func New(st store.Store, c *cache.Cache, table, version string, logger *zap.Logger) *Service {
	return &Service{store: st, cache: c, table: table, version: version, logger: logger}
}

// Table returns the table the service reads
func (s *Service) Table() string { return s.table }

// SetNextRun makes Health report the time of the next scheduled pipeline run
// as returned by fn
func (s *Service) SetNextRun(fn func() (time.Time, bool)) {
	s.nextRun = fn
}

// generation returns the cache generation to read and write at. The second
// result is false when the cache cannot be trusted for this request.
func (s *Service) generation(ctx context.Context) (int64, bool) {
	gen, err := s.cache.Generation(ctx, s.table)
	if err != nil {
		s.logger.Warn("Cache generation lookup failed, bypassing cache", zap.Error(err))
		return 0, false
	}
	return gen, true
}

// KPIs returns the KPI snapshot for date ("" for all records). A malformed
// date fails with sensor.ErrInvalidFilter.
func (s *Service) KPIs(ctx context.Context, date string) (*aggregation.KPISnapshot, error) {
	filter, err := sensor.ParseDateFilter(date)
	if err != nil {
		return nil, err
	}

	// read the generation before the store so a load committing meanwhile
	// retires whatever this request caches
	gen, cacheable := s.generation(ctx)
	if cacheable {
		if snap, ok, err := s.cache.GetKPIs(ctx, s.table, gen, filter); err != nil {
			s.logger.Warn("Cache lookup failed", zap.String("kind", "kpis"), zap.Error(err))
		} else if ok {
			return snap, nil
		}
	}

	readings, err := s.store.Query(ctx, s.table, filter)
	if err != nil {
		return nil, err
	}

	snap := aggregation.ComputeKPIs(readings, filter)
	if cacheable {
		if err := s.cache.SetKPIs(ctx, s.table, gen, filter, &snap); err != nil {
			s.logger.Warn("Failed to cache KPIs", zap.Error(err))
		}
	}
	return &snap, nil
}

// Trends returns the trend series for date ("" for all records)
func (s *Service) Trends(ctx context.Context, date string) (*aggregation.TrendSeries, error) {
	filter, err := sensor.ParseDateFilter(date)
	if err != nil {
		return nil, err
	}

	gen, cacheable := s.generation(ctx)
	if cacheable {
		if series, ok, err := s.cache.GetTrends(ctx, s.table, gen, filter); err != nil {
			s.logger.Warn("Cache lookup failed", zap.String("kind", "trends"), zap.Error(err))
		} else if ok {
			return series, nil
		}
	}

	readings, err := s.store.Query(ctx, s.table, filter)
	if err != nil {
		return nil, err
	}

	series := aggregation.PrepareTrend(readings, filter)
	if cacheable {
		if err := s.cache.SetTrends(ctx, s.table, gen, filter, &series); err != nil {
			s.logger.Warn("Failed to cache trends", zap.Error(err))
		}
	}
	return &series, nil
}

// Summary returns KPIs, trends and the covered date range for date
func (s *Service) Summary(ctx context.Context, date string) (*aggregation.Summary, error) {
	filter, err := sensor.ParseDateFilter(date)
	if err != nil {
		return nil, err
	}

	gen, cacheable := s.generation(ctx)
	if cacheable {
		if summary, ok, err := s.cache.GetSummary(ctx, s.table, gen, filter); err != nil {
			s.logger.Warn("Cache lookup failed", zap.String("kind", "summary"), zap.Error(err))
		} else if ok {
			return summary, nil
		}
	}

	readings, err := s.store.Query(ctx, s.table, filter)
	if err != nil {
		return nil, err
	}

	summary := aggregation.Summarize(readings, filter)
	if cacheable {
		if err := s.cache.SetSummary(ctx, s.table, gen, filter, &summary); err != nil {
			s.logger.Warn("Failed to cache summary", zap.Error(err))
		}
	}
	return &summary, nil
}

// Readings returns the processed readings for date, uncached, for export
func (s *Service) Readings(ctx context.Context, date string) ([]sensor.Reading, *sensor.DateFilter, error) {
	filter, err := sensor.ParseDateFilter(date)
	if err != nil {
		return nil, nil, err
	}

	readings, err := s.store.Query(ctx, s.table, filter)
	if err != nil {
		return nil, nil, err
	}
	return readings, filter, nil
}

// Health pings the store and counts the table rows
func (s *Service) Health(ctx context.Context) *Health {
	h := &Health{
		Status:    StatusHealthy,
		Database:  DatabaseConnected,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Backend:   s.store.Kind().String(),
	}

	err := s.store.Ping(ctx)
	if err == nil {
		h.RecordCount, err = s.store.Count(ctx, s.table)
	}
	if err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		h.Status = StatusDegraded
		h.Database = DatabaseError
		h.RecordCount = 0
		h.Error = healthError
	}

	if s.nextRun != nil {
		if at, ok := s.nextRun(); ok {
			at = at.UTC()
			h.NextRun = &at
		}
	}

	return h
}
