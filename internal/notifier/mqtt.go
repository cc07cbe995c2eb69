package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

const mqttConnectTimeout = 10 * time.Second

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retained bool
}

// MQTT publishes each message as JSON. It connects on first use and lets
// paho reconnect after that.
type MQTT struct {
	cfg MQTTConfig
	log logx.Logger
	now func() time.Time

	mu     sync.Mutex
	client mqtt.Client
}

type mqttPayload struct {
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Options map[string]string `json:"options,omitempty"`
	At      time.Time         `json:"at"`
}

func NewMQTT(cfg MQTTConfig, log logx.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "gradewatch/notify"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gradewatch"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &MQTT{cfg: cfg, log: log, now: time.Now}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) connect(ctx context.Context) (mqtt.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.log.Warn("mqtt connection lost", logx.Err(err))
		})
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	c := mqtt.NewClient(opts)
	if err := wait(ctx, c.Connect(), mqttConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	m.client = c
	return c, nil
}

func (m *MQTT) Send(ctx context.Context, msg watcher.Message) error {
	payload, err := json.Marshal(mqttPayload{Title: msg.Title, Body: msg.Body, Options: msg.Options, At: m.now().UTC()})
	if err != nil {
		return err
	}
	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	return wait(ctx, c.Publish(m.cfg.Topic, m.cfg.QoS, m.cfg.Retained, payload), mqttConnectTimeout)
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	c := m.client
	m.client = nil
	m.mu.Unlock()
	if c != nil && c.IsConnected() {
		c.Disconnect(250)
	}
	return nil
}

// wait blocks on tok until it completes, ctx ends or limit passes.
func wait(ctx context.Context, tok mqtt.Token, limit time.Duration) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timed out")
	}
}
