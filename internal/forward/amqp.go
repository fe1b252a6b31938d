package forward

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig configures the AMQP sink. Messages are published to a durable
// topic exchange with routing key <RoutingPrefix>.<kind>.
type AMQPConfig struct {
	URL           string
	Exchange      string
	RoutingPrefix string
	ConnTimeout   time.Duration
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes result events to a RabbitMQ exchange.
type AMQP struct {
	cfg  AMQPConfig
	ch   amqpChannel
	conn interface{ Close() error }
}

// NewAMQP dials cfg.URL and declares the exchange.
func NewAMQP(cfg AMQPConfig) (*AMQP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp url required")
	}
	cfg = amqpDefaults(cfg)
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = 5 * time.Second
	}
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Properties: amqp.Table{"product": "fpbridge"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQP{cfg: cfg, ch: ch, conn: conn}, nil
}

func amqpDefaults(cfg AMQPConfig) AMQPConfig {
	if cfg.Exchange == "" {
		cfg.Exchange = "fpbridge"
	}
	if cfg.RoutingPrefix == "" {
		cfg.RoutingPrefix = "events"
	}
	return cfg
}

func (s *AMQP) Send(ctx context.Context, m Message, payload []byte) error {
	return s.ch.PublishWithContext(ctx, s.cfg.Exchange, s.cfg.RoutingPrefix+"."+m.Kind, false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: m.TaskID,
			Timestamp:     time.UnixMilli(m.TimeUnix),
			Headers:       amqp.Table{"command": m.Command},
			Body:          payload,
		})
}

func (s *AMQP) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
