package queue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-pipeline/internal/protocol"
	"github.com/smukkama/sensor-pipeline/pkg/config"
)

// alertBatchSize caps the number of alerts written in one request
const alertBatchSize = 500

// Publisher emits pipeline events
type Publisher interface {
	PublishRun(ctx context.Context, ev *protocol.RunCompleted) error
	PublishAlerts(ctx context.Context, alerts []*protocol.AlertRaised) error
	Close() error
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise
func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("No Kafka brokers configured, event publishing disabled")
		return Nop{}
	}

	logger.Info("Publishing pipeline events",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("runs_topic", cfg.TopicRuns),
		zap.String("alerts_topic", cfg.TopicAlerts))

	return &KafkaPublisher{
		runs:   NewProducer(cfg.Brokers, cfg.TopicRuns, string(protocol.EventRunCompleted)),
		alerts: NewProducer(cfg.Brokers, cfg.TopicAlerts, string(protocol.EventAlertRaised)),
	}
}

// KafkaPublisher writes run events and alerts to separate topics, keyed by
// table so that every event of one table lands on one partition
type KafkaPublisher struct {
	runs   *Producer
	alerts *Producer
}

func (p *KafkaPublisher) PublishRun(ctx context.Context, ev *protocol.RunCompleted) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return fmt.Errorf("failed to encode run event: %w", err)
	}
	return p.runs.Send(ctx, ev.Table, data)
}

// PublishAlerts groups alerts by table and writes each group in chunks of
// alertBatchSize
func (p *KafkaPublisher) PublishAlerts(ctx context.Context, alerts []*protocol.AlertRaised) error {
	var order []string
	byTable := make(map[string][][]byte)

	for _, a := range alerts {
		data, err := protocol.Encode(a)
		if err != nil {
			return fmt.Errorf("failed to encode alert: %w", err)
		}
		if _, ok := byTable[a.Table]; !ok {
			order = append(order, a.Table)
		}
		byTable[a.Table] = append(byTable[a.Table], data)
	}

	for _, table := range order {
		payloads := byTable[table]
		for start := 0; start < len(payloads); start += alertBatchSize {
			end := min(start+alertBatchSize, len(payloads))
			if err := p.alerts.Send(ctx, table, payloads[start:end]...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return errors.Join(p.runs.Close(), p.alerts.Close())
}

// Nop discards every event
type Nop struct{}

func (Nop) PublishRun(context.Context, *protocol.RunCompleted) error { return nil }

func (Nop) PublishAlerts(context.Context, []*protocol.AlertRaised) error { return nil }

func (Nop) Close() error { return nil }
