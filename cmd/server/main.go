package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/api"
	"github.com/smukkama/sensor-pipeline/internal/cache"
	"github.com/smukkama/sensor-pipeline/internal/logger"
	"github.com/smukkama/sensor-pipeline/internal/metrics"
	"github.com/smukkama/sensor-pipeline/internal/pipeline"
	"github.com/smukkama/sensor-pipeline/internal/queue"
	"github.com/smukkama/sensor-pipeline/internal/scheduler"
	"github.com/smukkama/sensor-pipeline/internal/service"
	"github.com/smukkama/sensor-pipeline/internal/store"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const pipelineJob = "pipeline"

func main() {
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
	configPath := config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	// Load configuration
	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, "sensor-api")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Starting sensor API", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Connect to store
	st, err := store.Open(ctx, cfg.Database.URL, store.OptionsFromConfig(cfg.Database, m), lg)
	if err != nil {
		lg.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	c, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		lg.Warn("Response cache unavailable, serving from store only", zap.Error(err))
	}
	defer c.Close()

	svc := service.New(st, c, cfg.Pipeline.TableName, version, lg)
	app := api.New(svc, api.OptionsFromConfig(cfg.HTTP, m, reg), lg)

	// Periodic pipeline runs
	sched := scheduler.New()
	sched.Start()
	defer sched.Stop()

	if cfg.Pipeline.Interval > 0 {
		if len(cfg.Kafka.Brokers) > 0 {
			createTopics(ctx, cfg.Kafka, lg)
		}
		publisher := queue.NewPublisher(cfg.Kafka, lg)
		defer publisher.Close()

		p := pipeline.New(pipeline.OptionsFromConfig(cfg), st, c, publisher, m, lg)
		job := func(ctx context.Context) {
			if _, err := p.Run(ctx); err != nil {
				lg.Error("Scheduled pipeline run failed", zap.Error(err))
			}
		}
		if err := scheduler.Every(ctx, sched, pipelineJob, cfg.Pipeline.Interval, job, lg); err != nil {
			lg.Fatal("Failed to schedule pipeline", zap.Error(err))
		}
		svc.SetNextRun(func() (time.Time, bool) { return sched.Next(pipelineJob) })
		lg.Info("Periodic pipeline enabled", zap.Duration("interval", cfg.Pipeline.Interval))
	}

	// Start server in goroutine
	go func() {
		addr := cfg.HTTP.Addr()
		lg.Info("Server listening", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			lg.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	lg.Info("Shutting down server...")

	// Stop scheduling and let a running pipeline finish
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("Server forced to shutdown", zap.Error(err))
	}

	lg.Info("Server exited")
}

func createTopics(ctx context.Context, cfg config.KafkaConfig, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	created, err := queue.EnsureTopics(ctx, cfg.Brokers, 1, cfg.TopicRuns, cfg.TopicAlerts)
	if err != nil {
		lg.Warn("Topic creation failed, relying on broker auto-creation", zap.Error(err))
		return
	}
	if len(created) > 0 {
		lg.Info("Created topics", zap.Strings("topics", created))
	}
}
