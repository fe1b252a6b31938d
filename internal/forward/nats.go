package forward

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS sink. Messages go to Subject.<kind>.
type NATSConfig struct {
	URL         string
	Name        string
	Subject     string
	ConnTimeout time.Duration
}

type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATS publishes result events on a NATS subject.
type NATS struct {
	subject string
	nc      natsConn
}

// NewNATS connects to cfg.URL.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required")
	}
	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newNATS(cfg.Subject, nc), nil
}

func newNATS(subject string, nc natsConn) *NATS {
	if subject == "" {
		subject = "fpbridge.events"
	}
	return &NATS{subject: subject, nc: nc}
}

func (s *NATS) Send(ctx context.Context, m Message, payload []byte) error {
	msg := &nats.Msg{Subject: s.subject + "." + m.Kind, Data: payload, Header: nats.Header{}}
	msg.Header.Set("Fp-Task-Id", m.TaskID)
	msg.Header.Set("Fp-Command", m.Command)
	if err := s.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return s.nc.FlushWithContext(ctx)
}

func (s *NATS) Close() error { return s.nc.Drain() }
