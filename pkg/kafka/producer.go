package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// Event is one message to publish. Key drives partitioning; Value is
// encoded as JSON.
type Event struct {
	Key   string
	Value any
}

// Producer writes JSON events to a single topic. Writes go through a
// circuit breaker so an unreachable cluster fails fast.
type Producer struct {
	writer  *kafka.Writer
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string, breaker *resilience.CircuitBreaker) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("kafka-"+topic, resilience.BreakerConfig{})
	}
	return &Producer{
		writer:  w,
		breaker: breaker,
		logger:  slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event and writes them in one call. Nothing is
// written if any event fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := Encode(events)
	if err != nil {
		return err
	}
	err = p.breaker.Execute(func() error {
		return p.writer.WriteMessages(ctx, messages...)
	})
	if err != nil {
		return fmt.Errorf("publishing %d messages to %s: %w", len(messages), p.writer.Topic, err)
	}
	p.logger.Debug("messages published", "count", len(messages))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Encode converts events into kafka messages with JSON values.
func Encode(events []Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding event %q: %w", event.Key, err)
		}
		messages = append(messages, kafka.Message{Key: []byte(event.Key), Value: value})
	}
	return messages, nil
}
