package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// KafkaNotifier publishes events to a Kafka topic, keyed by event name.
type KafkaNotifier struct {
	topic string
	p     sarama.SyncProducer
	now   func() time.Time
}

var _ Notifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier dials brokers with a synchronous producer.
func NewKafkaNotifier(brokers []string, topic string, cfg *sarama.Config) (*KafkaNotifier, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic empty")
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers")
	}
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Producer.RequiredAcks = sarama.WaitForLocal
		cfg.Producer.Retry.Max = 3
		cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	}
	// SyncProducer requires both.
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaNotifierWithProducer(p, topic), nil
}

// NewKafkaNotifierWithProducer wraps an existing producer.
func NewKafkaNotifierWithProducer(p sarama.SyncProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{topic: topic, p: p, now: time.Now}
}

// Notify sends one envelope and waits for the broker ack.
func (k *KafkaNotifier) Notify(ctx context.Context, name string, payload any) error {
	// SyncProducer does not take a context.
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := encodeEnvelope(name, payload, k.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	_, _, err = k.p.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(name),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("kafka send %s: %w", name, err)
	}
	return nil
}

// Close closes the producer.
func (k *KafkaNotifier) Close() error {
	if k.p != nil {
		return k.p.Close()
	}
	return nil
}
