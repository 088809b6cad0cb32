// Package pipeline runs one extract, clean, enrich and load pass and
// publishes its outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/aggregation"
	"github.com/smukkama/sensor-pipeline/internal/cache"
	"github.com/smukkama/sensor-pipeline/internal/clean"
	"github.com/smukkama/sensor-pipeline/internal/enrich"
	"github.com/smukkama/sensor-pipeline/internal/export"
	"github.com/smukkama/sensor-pipeline/internal/extract"
	"github.com/smukkama/sensor-pipeline/internal/metrics"
	"github.com/smukkama/sensor-pipeline/internal/protocol"
	"github.com/smukkama/sensor-pipeline/internal/queue"
	"github.com/smukkama/sensor-pipeline/internal/sensor"
	"github.com/smukkama/sensor-pipeline/internal/store"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

// ErrEmptyBatch is returned when a run has no readings to load. The target
// table is left untouched so a broken feed cannot wipe it.
var ErrEmptyBatch = errors.New("no readings to load")

// Options configures a pipeline
type Options struct {
	Source           string
	ProcessedPath    string // empty skips the processed CSV
	Table            string
	Synthetic        extract.SyntheticConfig
	PersistSynthetic bool
	Thresholds       enrich.Thresholds
	LoadAttempts     int
	RetryBackoff     time.Duration
}

// OptionsFromConfig maps the loaded configuration onto pipeline options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Source:        cfg.Pipeline.SourcePath,
		ProcessedPath: cfg.Pipeline.ProcessedPath,
		Table:         cfg.Pipeline.TableName,
		Synthetic: extract.SyntheticConfig{
			Rows: cfg.Pipeline.SyntheticRows,
			Seed: cfg.Pipeline.SyntheticSeed,
		},
		PersistSynthetic: true,
		Thresholds:       enrich.ThresholdsFromConfig(cfg.Thresholds),
		LoadAttempts:     3,
		RetryBackoff:     time.Second,
	}
}

// Result summarizes a completed run
type Result struct {
	RunID            string
	Table            string
	StartedAt        time.Time
	Duration         time.Duration
	Extract          extract.Stats
	Clean            clean.Report
	ProcessedRows    int
	Load             store.LoadResult
	KPIs             aggregation.KPISnapshot
	DataQualityScore float64
}

// Pipeline owns the collaborators of a run. Run is safe to call from several
// goroutines; calls are serialized.
type Pipeline struct {
	opts      Options
	store     store.Store
	cache     *cache.Cache
	events    queue.Publisher
	metrics   *metrics.Metrics
	extractor *extract.Extractor
	logger    *zap.Logger

	mu sync.Mutex
}

// New creates a pipeline. c and m may be nil; events defaults to a no-op
// publisher.
func New(opts Options, st store.Store, c *cache.Cache, events queue.Publisher, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if opts.LoadAttempts <= 0 {
		opts.LoadAttempts = 1
	}
	if events == nil {
		events = queue.Nop{}
	}
	return &Pipeline{
		opts:      opts,
		store:     st,
		cache:     c,
		events:    events,
		metrics:   m,
		extractor: extract.NewExtractor(opts.Synthetic, opts.PersistSynthetic, logger),
		logger:    logger,
	}
}

// Run executes one pass. Extraction and transform problems degrade the
// batch; a store failure fails the run.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res = &Result{
		RunID:     uuid.NewString(),
		Table:     p.opts.Table,
		StartedAt: time.Now().UTC(),
	}
	logger := p.logger.With(zap.String("run_id", res.RunID), zap.String("table", p.opts.Table))
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		p.metrics.ObserveRun(res.Duration, err)
	}()

	logger.Info("Pipeline run started", zap.String("source", p.opts.Source))

	raw, xs, err := p.extractor.Extract(ctx, p.opts.Source)
	if err != nil {
		return res, fmt.Errorf("extract: %w", err)
	}
	res.Extract = xs
	p.metrics.SetStageRows("extract", len(raw))
	p.metrics.AddMalformed(xs.MalformedRows)

	cleaned, report := clean.Clean(raw)
	res.Clean = report
	for _, w := range report.Warnings {
		logger.Warn("Degraded column", zap.String("warning", w))
	}
	for _, c := range report.Columns {
		p.metrics.AddOutliers(string(c.Column), c.OutliersReplaced)
	}
	p.metrics.SetStageRows("clean", len(cleaned))
	logger.Info("Cleaned readings",
		zap.Int("rows", len(cleaned)),
		zap.Int("outliers_replaced", report.OutliersReplaced()),
		zap.Int("imputed", report.Imputed()))

	enriched := enrich.Enrich(cleaned, p.opts.Thresholds)
	res.ProcessedRows = len(enriched.Readings)
	p.metrics.SetStageRows("enrich", res.ProcessedRows)
	p.metrics.SetAlerts(string(sensor.ColumnTemperature), enriched.Temperature.Alerts)
	p.metrics.SetAlerts(string(sensor.ColumnPressure), enriched.Pressure.Alerts)
	logger.Info("Enriched readings",
		zap.Int("temperature_alerts", enriched.Temperature.Alerts),
		zap.Int("pressure_alerts", enriched.Pressure.Alerts))

	if res.ProcessedRows == 0 {
		logger.Error("Refusing to replace table with an empty batch",
			zap.Int("raw_rows", xs.Rows), zap.Int("malformed_rows", xs.MalformedRows))
		return res, fmt.Errorf("load: %w", ErrEmptyBatch)
	}

	load, err := p.load(ctx, logger, enriched.Readings)
	if err != nil {
		logger.Error("Load failed", zap.Error(err), zap.Bool("retryable", store.IsRetryable(err)))
		return res, fmt.Errorf("load: %w", err)
	}
	res.Load = load

	if p.opts.ProcessedPath != "" {
		if err := export.WriteCSVFile(p.opts.ProcessedPath, enriched.Readings); err != nil {
			logger.Warn("Failed to write processed data", zap.String("path", p.opts.ProcessedPath), zap.Error(err))
		}
	}

	if n, err := p.cache.Invalidate(ctx, p.opts.Table); err != nil {
		logger.Warn("Failed to invalidate cache", zap.Error(err))
	} else if n > 0 {
		logger.Debug("Invalidated cached responses", zap.Int("keys", n))
	}

	res.KPIs = aggregation.ComputeKPIs(enriched.Readings, nil)
	res.DataQualityScore = QualityScore(res.ProcessedRows, xs.Rows, xs.MalformedRows)

	p.publish(ctx, logger, res, enriched)

	logger.Info("Pipeline run completed",
		zap.Duration("duration", time.Since(res.StartedAt)),
		zap.Int("raw_rows", xs.Rows),
		zap.Int("malformed_rows", xs.MalformedRows),
		zap.Bool("synthetic", xs.Synthetic),
		zap.Int("processed_rows", res.ProcessedRows),
		zap.Int("alert_count", res.KPIs.AlertCount),
		zap.Float64("data_quality_score", res.DataQualityScore))

	return res, nil
}

// load retries retryable store errors with a linear backoff
func (p *Pipeline) load(ctx context.Context, logger *zap.Logger, readings []sensor.Reading) (store.LoadResult, error) {
	var (
		res store.LoadResult
		err error
	)
	for attempt := 1; attempt <= p.opts.LoadAttempts; attempt++ {
		res, err = p.store.Load(ctx, p.opts.Table, readings)
		if err == nil || !store.IsRetryable(err) || attempt == p.opts.LoadAttempts {
			return res, err
		}

		wait := time.Duration(attempt) * p.opts.RetryBackoff
		logger.Warn("Load failed, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))

		select {
		case <-ctx.Done():
			return res, err
		case <-time.After(wait):
		}
	}
	return res, err
}

// publish emits the run and alert events. The store is the system of record,
// so failures are only logged.
func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, res *Result, enriched enrich.Result) {
	run := &protocol.RunCompleted{
		Type:             protocol.EventRunCompleted,
		RunID:            res.RunID,
		Table:            res.Table,
		Backend:          res.Load.Backend.String(),
		StartedAt:        res.StartedAt,
		DurationMs:       time.Since(res.StartedAt).Milliseconds(),
		RawRows:          res.Extract.Rows,
		MalformedRows:    res.Extract.MalformedRows,
		Synthetic:        res.Extract.Synthetic,
		ProcessedRows:    res.ProcessedRows,
		OutliersReplaced: res.Clean.OutliersReplaced(),
		Imputed:          res.Clean.Imputed(),
		DataQualityScore: res.DataQualityScore,
		KPIs:             res.KPIs,
	}
	if err := p.events.PublishRun(ctx, run); err != nil {
		logger.Warn("Failed to publish run event", zap.Error(err))
	}

	alerts := Alerts(res.RunID, res.Table, enriched.Readings, p.opts.Thresholds)
	if len(alerts) == 0 {
		return
	}
	if err := p.events.PublishAlerts(ctx, alerts); err != nil {
		logger.Warn("Failed to publish alerts", zap.Int("alerts", len(alerts)), zap.Error(err))
	}
}

// Alerts returns one event per alerting column of every reading, in reading
// order
func Alerts(runID, table string, readings []sensor.Reading, th enrich.Thresholds) []*protocol.AlertRaised {
	var out []*protocol.AlertRaised
	for i := range readings {
		r := &readings[i]
		if r.TemperatureAlert {
			out = append(out, protocol.NewAlert(uuid.NewString(), runID, table, r, sensor.ColumnTemperature, th.Temperature.ZScore))
		}
		if r.PressureAlert {
			out = append(out, protocol.NewAlert(uuid.NewString(), runID, table, r, sensor.ColumnPressure, th.Pressure.ZScore))
		}
	}
	return out
}

// QualityScore is the share of source rows that reached the processed batch,
// as a percentage. An empty source scores 0.
func QualityScore(processed, raw, malformed int) float64 {
	total := raw + malformed
	if total == 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}
