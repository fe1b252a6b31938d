package forward

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT sink. Messages go to Topic/<kind>.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Retained bool
}

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes result events to an MQTT broker.
type MQTT struct {
	cfg    MQTTConfig
	client mqttClient
}

// NewMQTT connects to cfg.Broker.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	return newMQTT(cfg, cli), nil
}

func newMQTT(cfg MQTTConfig, c mqttClient) *MQTT {
	if cfg.Topic == "" {
		cfg.Topic = "fpbridge/events"
	}
	return &MQTT{cfg: cfg, client: c}
}

func (s *MQTT) Send(ctx context.Context, m Message, payload []byte) error {
	token := s.client.Publish(s.cfg.Topic+"/"+m.Kind, s.cfg.QoS, s.cfg.Retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
}

func (s *MQTT) Close() error {
	s.client.Disconnect(250)
	return nil
}
