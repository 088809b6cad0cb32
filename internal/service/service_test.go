package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/cache"
	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/internal/store"
)

var day = time.Date(2024, 7, 1, 20, 0, 0, 0, time.UTC)

// seededStore opens a sqlite store holding 48 hourly readings from day
func seededStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "svc.db"), store.Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	readings := make([]sensor.Reading, 48)
	for i := range readings {
		ts := day.Add(time.Duration(i) * time.Hour)
		readings[i] = sensor.Reading{
			Timestamp:        ts,
			Temperature:      60 + float64(i%5),
			Pressure:         1000,
			Uptime:           float64(i),
			Hour:             ts.Hour(),
			DayOfWeek:        int(ts.Weekday()),
			Month:            int(ts.Month()),
			TemperatureAlert: i == 10,
			TemperatureLevel: sensor.LevelNormal,
			PressureLevel:    sensor.LevelNormal,
		}
	}
	_, err = st.Load(context.Background(), "sensor_data", readings)
	require.NoError(t, err)
	return st
}

// downStore fails every call as an unreachable server would
type downStore struct{ store.Store }

var errDown = &store.StoreError{Op: "query", Backend: store.RelationalServer, Unavailable: true, Retryable: true, Err: errors.New("connection refused")}

func (downStore) Query(context.Context, string, *sensor.DateFilter) ([]sensor.Reading, error) {
	return nil, errDown
}

func (downStore) Ping(context.Context) error { return errDown }

func (downStore) Count(context.Context, string) (int, error) { return 0, errDown }

func (downStore) Kind() store.Kind { return store.RelationalServer }

// gatedStore holds Query results until release is closed, as a reader
// holding an old snapshot would
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Query(ctx context.Context, table string, filter *sensor.DateFilter) ([]sensor.Reading, error) {
	readings, err := g.Store.Query(ctx, table, filter)
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return readings, err
}

func TestService_KPIs(t *testing.T) {
	svc := New(seededStore(t), nil, "sensor_data", "test", zap.NewNop())

	all, err := svc.KPIs(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 48, all.TotalRecords)
	assert.Equal(t, 1, all.AlertCount)
	assert.Nil(t, all.DateFilter)

	d, err := svc.KPIs(context.Background(), "2024-07-02")
	require.NoError(t, err)
	assert.Equal(t, 24, d.TotalRecords)
	require.NotNil(t, d.DateFilter)
	assert.Equal(t, "2024-07-02", *d.DateFilter)
	assert.Equal(t, 27.0, d.UptimeHours)

	empty, err := svc.KPIs(context.Background(), "2030-01-01")
	require.NoError(t, err)
	assert.True(t, empty.NoData)
	assert.Zero(t, empty.TotalRecords)
}

func TestService_InvalidFilter(t *testing.T) {
	svc := New(seededStore(t), nil, "sensor_data", "test", zap.NewNop())

	_, err := svc.KPIs(context.Background(), "07/02/2024")
	assert.True(t, errors.Is(err, sensor.ErrInvalidFilter))

	_, err = svc.Trends(context.Background(), "2024-13-01")
	assert.True(t, errors.Is(err, sensor.ErrInvalidFilter))

	_, _, err = svc.Readings(context.Background(), "yesterday")
	assert.True(t, errors.Is(err, sensor.ErrInvalidFilter))
}

func TestService_TrendsAndSummary(t *testing.T) {
	svc := New(seededStore(t), nil, "sensor_data", "test", zap.NewNop())

	series, err := svc.Trends(context.Background(), "2024-07-02")
	require.NoError(t, err)
	require.Equal(t, 24, series.RecordCount)
	assert.Len(t, series.Temperatures, 24)
	assert.True(t, series.Timestamps[0].Equal(time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)))

	summary, err := svc.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 48, summary.KPIs.TotalRecords)
	require.NotNil(t, summary.DateRange.Start)
	assert.True(t, summary.DateRange.Start.Equal(day))
	assert.True(t, summary.DateRange.End.Equal(day.Add(47*time.Hour)))

	readings, filter, err := svc.Readings(context.Background(), "2024-07-01")
	require.NoError(t, err)
	assert.Len(t, readings, 4)
	assert.Equal(t, "2024-07-01", filter.String())
}

func TestService_UsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := cache.New(client, time.Minute)

	st := seededStore(t)
	svc := New(st, c, "sensor_data", "test", zap.NewNop())
	ctx := context.Background()

	first, err := svc.KPIs(ctx, "")
	require.NoError(t, err)
	assert.True(t, mr.Exists("etl:sensor_data:v0:kpis:all"))

	// replace the table without invalidating: the cached snapshot is served
	_, err = st.Load(ctx, "sensor_data", nil)
	require.NoError(t, err)

	second, err := svc.KPIs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first.TotalRecords, second.TotalRecords)

	_, err = c.Invalidate(ctx, "sensor_data")
	require.NoError(t, err)

	third, err := svc.KPIs(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, third.TotalRecords)
}

func TestService_StaleReaderDoesNotOutliveLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := cache.New(client, time.Minute)
	ctx := context.Background()

	st := seededStore(t)
	gated := &gatedStore{Store: st, entered: make(chan struct{}), release: make(chan struct{})}
	svc := New(gated, c, "sensor_data", "test", zap.NewNop())

	stale := make(chan int, 1)
	go func() {
		snap, err := svc.KPIs(ctx, "")
		if err != nil {
			stale <- -1
			return
		}
		stale <- snap.TotalRecords
	}()
	<-gated.entered

	// the load commits and invalidates while the reader holds the old rows
	fresh := make([]sensor.Reading, 5)
	for i := range fresh {
		fresh[i] = sensor.Reading{
			Timestamp:        day.Add(time.Duration(i) * time.Minute),
			Temperature:      60,
			Pressure:         1000,
			TemperatureLevel: sensor.LevelNormal,
			PressureLevel:    sensor.LevelNormal,
		}
	}
	_, err := st.Load(ctx, "sensor_data", fresh)
	require.NoError(t, err)
	_, err = c.Invalidate(ctx, "sensor_data")
	require.NoError(t, err)

	close(gated.release)
	assert.Equal(t, 48, <-stale)

	snap, err := svc.KPIs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.TotalRecords)
	assert.True(t, mr.Exists("etl:sensor_data:v1:kpis:all"))
}

func TestService_CacheOutageFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	svc := New(seededStore(t), cache.New(client, time.Minute), "sensor_data", "test", zap.NewNop())

	mr.Close()

	snap, err := svc.KPIs(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 48, snap.TotalRecords)
}

func TestService_StoreUnavailable(t *testing.T) {
	svc := New(downStore{}, nil, "sensor_data", "test", zap.NewNop())

	_, err := svc.KPIs(context.Background(), "")
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))

	_, err = svc.Summary(context.Background(), "2024-07-02")
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))
}

func TestService_Health(t *testing.T) {
	healthy := New(seededStore(t), nil, "sensor_data", "1.2.3", zap.NewNop()).Health(context.Background())
	assert.True(t, healthy.Healthy())
	assert.Equal(t, DatabaseConnected, healthy.Database)
	assert.Equal(t, 48, healthy.RecordCount)
	assert.Equal(t, "1.2.3", healthy.Version)
	assert.Equal(t, "sqlite", healthy.Backend)

	degraded := New(downStore{}, nil, "sensor_data", "1.2.3", zap.NewNop()).Health(context.Background())
	assert.False(t, degraded.Healthy())
	assert.Equal(t, StatusDegraded, degraded.Status)
	assert.Equal(t, DatabaseError, degraded.Database)
	assert.Equal(t, "database unavailable", degraded.Error)
	assert.NotContains(t, degraded.Error, "connection refused")
	assert.Nil(t, degraded.NextRun)
}

func TestService_HealthReportsNextRun(t *testing.T) {
	svc := New(seededStore(t), nil, "sensor_data", "test", zap.NewNop())
	next := time.Date(2024, 7, 3, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	svc.SetNextRun(func() (time.Time, bool) { return next, true })
	h := svc.Health(context.Background())
	require.NotNil(t, h.NextRun)
	assert.True(t, h.NextRun.Equal(next))
	assert.Equal(t, time.UTC, h.NextRun.Location())

	// a run in progress has no pending slot
	svc.SetNextRun(func() (time.Time, bool) { return time.Time{}, false })
	assert.Nil(t, svc.Health(context.Background()).NextRun)
}
