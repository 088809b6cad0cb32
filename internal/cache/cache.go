// Package cache keeps computed KPI, trend and summary responses in Redis
// until the next load replaces the table they were computed from.
//
// Entries are keyed by a per-table generation. Invalidate bumps the
// generation before deleting, so a reader that queried the old table and
// writes afterwards lands on a key nobody reads again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/sensor-pipeline/internal/aggregation"
	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

const (
	kindKPIs    = "kpis"
	kindTrends  = "trends"
	kindSummary = "summary"

	allDates  = "all"
	scanCount = 100
)

// Cache stores JSON snapshots keyed by table, response kind and date filter.
// A nil *Cache is valid: lookups miss and writes are dropped.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New wraps an existing client
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: client, ttl: ttl}
}

// Connect dials Redis and verifies the connection. An empty address returns
// a nil cache.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return New(client, cfg.TTL), nil
}

// Close releases the client
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.redis.Close()
}

// Key returns the cache key for one response computed at generation gen
func Key(table string, gen int64, kind string, filter *sensor.DateFilter) string {
	date := allDates
	if filter != nil {
		date = filter.String()
	}
	return fmt.Sprintf("etl:%s:v%d:%s:%s", table, gen, kind, date)
}

// GenerationKey returns the key holding the generation counter of table
func GenerationKey(table string) string {
	return fmt.Sprintf("etl:%s:gen", table)
}

// Generation returns the current generation of table. Callers read it
// before querying the store and pass it to the Set methods.
func (c *Cache) Generation(ctx context.Context, table string) (int64, error) {
	if c == nil {
		return 0, nil
	}

	gen, err := c.redis.Get(ctx, GenerationKey(table)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get generation of %s: %w", table, err)
	}
	return gen, nil
}

// GetKPIs returns a cached snapshot and whether one was found
func (c *Cache) GetKPIs(ctx context.Context, table string, gen int64, filter *sensor.DateFilter) (*aggregation.KPISnapshot, bool, error) {
	var snap aggregation.KPISnapshot
	ok, err := c.get(ctx, Key(table, gen, kindKPIs, filter), &snap)
	if !ok || err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *Cache) SetKPIs(ctx context.Context, table string, gen int64, filter *sensor.DateFilter, snap *aggregation.KPISnapshot) error {
	return c.set(ctx, Key(table, gen, kindKPIs, filter), snap)
}

// GetTrends returns a cached trend series and whether one was found
func (c *Cache) GetTrends(ctx context.Context, table string, gen int64, filter *sensor.DateFilter) (*aggregation.TrendSeries, bool, error) {
	var series aggregation.TrendSeries
	ok, err := c.get(ctx, Key(table, gen, kindTrends, filter), &series)
	if !ok || err != nil {
		return nil, false, err
	}
	return &series, true, nil
}

func (c *Cache) SetTrends(ctx context.Context, table string, gen int64, filter *sensor.DateFilter, series *aggregation.TrendSeries) error {
	return c.set(ctx, Key(table, gen, kindTrends, filter), series)
}

// GetSummary returns a cached summary and whether one was found
func (c *Cache) GetSummary(ctx context.Context, table string, gen int64, filter *sensor.DateFilter) (*aggregation.Summary, bool, error) {
	var summary aggregation.Summary
	ok, err := c.get(ctx, Key(table, gen, kindSummary, filter), &summary)
	if !ok || err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *Cache) SetSummary(ctx context.Context, table string, gen int64, filter *sensor.DateFilter, summary *aggregation.Summary) error {
	return c.set(ctx, Key(table, gen, kindSummary, filter), summary)
}

// Invalidate advances the generation of table, then deletes every cached
// response for it and returns the number of keys removed
func (c *Cache) Invalidate(ctx context.Context, table string) (int, error) {
	if c == nil {
		return 0, nil
	}

	if err := c.redis.Incr(ctx, GenerationKey(table)).Err(); err != nil {
		return 0, fmt.Errorf("failed to advance generation of %s: %w", table, err)
	}

	pattern := fmt.Sprintf("etl:%s:v*", table)
	removed := 0

	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.redis.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete cache keys: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (c *Cache) get(ctx context.Context, key string, v any) (bool, error) {
	if c == nil {
		return false, nil
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}
