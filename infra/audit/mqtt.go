// Package audit implements the MQTT-backed audit sink. Events are
// published fire-and-forget; a broker outage costs audit records, never
// protocol handling.
package audit

import (
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coreaudit "github.com/kilianp07/evcharge/core/audit"
	"github.com/kilianp07/evcharge/infra/logger"
)

// Config defines the connection parameters for the audit broker. An empty
// Broker disables the sink.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "evcharge-central"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "evcharge/audit"
	}
}

// MQTTSink publishes audit events as JSON messages.
type MQTTSink struct {
	cli    paho.Client
	prefix string
	qos    byte
	log    logger.Logger
}

// New connects to the broker. With an empty broker address it returns the
// no-op sink so callers need no special case.
func New(cfg Config) (coreaudit.Sink, error) {
	if cfg.Broker == "" {
		return coreaudit.Nop{}, nil
	}
	cfg.SetDefaults()
	log := logger.New("audit-sink")
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.ConnectTimeout = 5 * time.Second
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warnf("audit broker connection lost: %v", err)
	}
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTSink{cli: cli, prefix: cfg.TopicPrefix, qos: cfg.QoS, log: log}, nil
}

func (s *MQTTSink) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Errorf("encode audit event: %v", err)
		return
	}
	// Fire and forget: the token is not awaited.
	s.cli.Publish(s.prefix+"/"+topic, s.qos, false, payload)
}

// Auth publishes a registration attempt.
func (s *MQTTSink) Auth(ev coreaudit.AuthEvent) { s.publish("auth", ev) }

// Charge publishes a session boundary.
func (s *MQTTSink) Charge(ev coreaudit.ChargeEvent) { s.publish("charge", ev) }

// Fault publishes a charging-point fault.
func (s *MQTTSink) Fault(ev coreaudit.FaultEvent) { s.publish("fault", ev) }

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.cli.Disconnect(250)
	return nil
}
