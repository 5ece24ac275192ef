package auditsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/authengine"
)

const (
	defaultMQTTTopic      = "authengine/audit"
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// ErrConnectionFailed is returned when a broker or database cannot be
// reached at dial time.
var ErrConnectionFailed = errors.New("auditsink: connection failed")

// Publisher is the subset of a paho client the MQTT sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MQTT publishes audit events as JSON messages.
type MQTT struct {
	pub     Publisher
	topic   string
	qos     byte
	timeout time.Duration
	logger  zerolog.Logger
	close   func()
}

// NewMQTT wraps an already connected publisher.
func NewMQTT(pub Publisher, topic string, qos byte, logger zerolog.Logger) *MQTT {
	if topic == "" {
		topic = defaultMQTTTopic
	}
	return &MQTT{
		pub:     pub,
		topic:   strings.TrimSuffix(topic, "/"),
		qos:     qos,
		timeout: defaultPublishTimeout,
		logger:  logger.With().Str("component", "auditsink.mqtt").Logger(),
	}
}

// DialMQTT connects to cfg.Broker and returns a sink owning the connection.
func DialMQTT(cfg MQTTConfig, logger zerolog.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("%w: mqtt broker is required", ErrConnectionFailed)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "authengine-audit"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	sink := NewMQTT(client, cfg.Topic, cfg.QoS, logger)
	sink.timeout = timeout
	sink.close = func() { client.Disconnect(250) }
	return sink, nil
}

// Emit publishes event on <topic>/<event_type>. Failures are logged and
// never returned to the engine.
func (m *MQTT) Emit(_ context.Context, event authengine.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Error().Err(err).Str("event", event.EventType).Msg("audit event encode failed")
		return
	}

	topic := m.topic + "/" + event.EventType
	token := m.pub.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		m.logger.Warn().Str("topic", topic).Dur("timeout", m.timeout).Msg("audit publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Warn().Err(err).Str("topic", topic).Msg("audit publish failed")
	}
}

// Close disconnects a client opened by DialMQTT.
func (m *MQTT) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}
