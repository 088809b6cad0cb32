package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// eventTypeHeader carries the protocol event type so consumers can route
// without decoding the payload
const eventTypeHeader = "event_type"

// messageWriter is the subset of *kafka.Writer a Producer needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events of one type to one topic
type Producer struct {
	writer    messageWriter
	topic     string
	eventType string
}

// NewProducer returns a synchronous producer that hashes message keys onto
// partitions, so events for one table keep their order
func NewProducer(brokers []string, topic, eventType string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
		topic:     topic,
		eventType: eventType,
	}
}

// Send writes payloads keyed by key in a single request. It is a no-op for
// an empty batch.
func (p *Producer) Send(ctx context.Context, key string, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(payloads))
	for i, v := range payloads {
		msgs[i] = kafka.Message{
			Key:     []byte(key),
			Value:   v,
			Headers: []kafka.Header{{Key: eventTypeHeader, Value: []byte(p.eventType)}},
		}
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d message(s) to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// EnsureTopics creates the topics that do not exist yet on the cluster. It
// returns the names it created.
func EnsureTopics(ctx context.Context, brokers []string, partitions int, topics ...string) ([]string, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	existing := make(map[string]bool)
	parts, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	for _, p := range parts {
		existing[p.Topic] = true
	}

	var missing []kafka.TopicConfig
	var created []string
	for _, t := range topics {
		if existing[t] {
			continue
		}
		missing = append(missing, kafka.TopicConfig{Topic: t, NumPartitions: partitions, ReplicationFactor: 1})
		created = append(created, t)
	}
	if len(missing) == 0 {
		return nil, nil
	}

	// topic creation must go through the controller
	controller, err := conn.Controller()
	if err != nil {
		return nil, fmt.Errorf("failed to get controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to dial controller: %w", err)
	}
	defer cc.Close()

	if err := cc.CreateTopics(missing...); err != nil {
		return nil, fmt.Errorf("failed to create topics %v: %w", created, err)
	}
	return created, nil
}
