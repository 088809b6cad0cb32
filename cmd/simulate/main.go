package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/extract"
	"github.com/smukkama/sensor-pipeline/internal/logger"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

// Sample data producer that writes a synthetic sensor CSV for the pipeline

func main() {
	fs := pflag.NewFlagSet("simulate", pflag.ExitOnError)
	configPath := config.RegisterFlags(fs)
	step := fs.Duration("step", time.Hour, "time between generated readings")
	end := fs.String("end", "", "timestamp of the last reading (RFC3339, default now)")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, "sensor-simulate")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	synth := extract.SyntheticConfig{
		Rows:     cfg.Pipeline.SyntheticRows,
		Seed:     cfg.Pipeline.SyntheticSeed,
		Interval: *step,
	}
	if *end != "" {
		t, err := extract.ParseTimestamp(*end)
		if err != nil {
			lg.Fatal("Invalid --end", zap.String("end", *end), zap.Error(err))
		}
		synth.End = t
	}

	readings := extract.Synthesize(synth)
	if err := extract.WriteFile(cfg.Pipeline.SourcePath, readings); err != nil {
		lg.Fatal("Failed to write source", zap.Error(err))
	}

	lg.Info("Synthetic source written",
		zap.String("path", cfg.Pipeline.SourcePath),
		zap.Int("rows", len(readings)),
		zap.Int64("seed", synth.Seed),
		zap.Time("first", readings[0].Timestamp),
		zap.Time("last", readings[len(readings)-1].Timestamp))
	fmt.Printf("Wrote %d readings to %s\n", len(readings), cfg.Pipeline.SourcePath)
}
