package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/cache"
	"github.com/smukkama/sensor-pipeline/internal/logger"
	"github.com/smukkama/sensor-pipeline/internal/pipeline"
	"github.com/smukkama/sensor-pipeline/internal/queue"
	"github.com/smukkama/sensor-pipeline/internal/store"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

func main() {
	fs := pflag.NewFlagSet("pipeline", pflag.ExitOnError)
	configPath := config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	// Load configuration
	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, "sensor-pipeline")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("Pipeline failed", zap.Error(err))
		lg.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	st, err := store.Open(ctx, cfg.Database.URL, store.OptionsFromConfig(cfg.Database, nil), lg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	c, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		lg.Warn("Response cache unavailable, cached responses will not be invalidated", zap.Error(err))
	}
	defer c.Close()

	publisher := queue.NewPublisher(cfg.Kafka, lg)
	defer publisher.Close()

	p := pipeline.New(pipeline.OptionsFromConfig(cfg), st, c, publisher, nil, lg)
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: %d rows loaded into %s (%s), %d alerts, data quality %.1f%%\n",
		res.RunID, res.Load.Rows, res.Table, res.Load.Backend, res.KPIs.AlertCount, res.DataQualityScore)
	return nil
}
