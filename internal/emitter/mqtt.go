// Package emitter publishes session telemetry to an MQTT broker. Telemetry
// is strictly one-way; the session cannot be controlled remotely.
package emitter

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/annahadji/beepi/internal/config"
	"github.com/annahadji/beepi/internal/session"
)

// MQTTEmitter publishes session events to a broker. Delivery problems are
// logged and dropped; a flaky broker on a field deployment must never stall
// the recording loop.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	log    *slog.Logger
}

// New creates an emitter for the configured broker.
func New(cfg config.MQTTConfig, clientID string, log *slog.Logger) *MQTTEmitter {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		log.Info("mqtt connection established", "broker", cfg.Broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", cfg.Broker)
	}

	return &MQTTEmitter{
		cfg:    cfg,
		client: mqtt.NewClient(opts),
		log:    log,
	}
}

// Connect establishes the broker connection.
func (e *MQTTEmitter) Connect() error {
	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Emit publishes one session event.
func (e *MQTTEmitter) Emit(ev session.Event) {
	payload, err := ev.ToJSON()
	if err != nil {
		e.log.Warn("failed to marshal session event", "type", ev.Type, "error", err)
		return
	}

	token := e.client.Publish(e.cfg.Topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.log.Warn("session event publish timeout", "type", ev.Type, "topic", e.cfg.Topic)
		return
	}
	if err := token.Error(); err != nil {
		e.log.Warn("session event publish failed", "type", ev.Type, "error", err)
		return
	}

	e.log.Debug("session event published", "type", ev.Type, "topic", e.cfg.Topic, "size", len(payload))
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client.IsConnected() {
		e.client.Disconnect(250)
		e.log.Info("mqtt disconnected")
	}
}
