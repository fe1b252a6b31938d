package forward

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures the Kafka sink. Records are keyed by task id.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

type kafkaProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Kafka produces result events to a Kafka topic.
type Kafka struct {
	topic string
	cl    kafkaProducer
}

// NewKafka builds a franz-go client for cfg.Brokers.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client init: %w", err)
	}
	return newKafka(cfg.Topic, cl), nil
}

func newKafka(topic string, cl kafkaProducer) *Kafka {
	if topic == "" {
		topic = "fpbridge.events"
	}
	return &Kafka{topic: topic, cl: cl}
}

func (s *Kafka) Send(ctx context.Context, m Message, payload []byte) error {
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(m.TaskID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "command", Value: []byte(m.Command)},
			{Key: "kind", Value: []byte(m.Kind)},
		},
	}
	if err := s.cl.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka publish to %q: %w", s.topic, err)
	}
	return nil
}

func (s *Kafka) Close() error {
	s.cl.Close()
	return nil
}
