package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
)

// MQTT publishes records to <prefix>/<kind>/<device>.
type MQTT struct {
	client mqtt.Client
	prefix string
	qos    byte
}

func NewMQTT(cfg config.MQTTRelayConfig) (*MQTT, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("sensorlog-%d", time.Now().UnixNano())
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return newMQTTWithClient(client, cfg), nil
}

func newMQTTWithClient(client mqtt.Client, cfg config.MQTTRelayConfig) *MQTT {
	return &MQTT{client: client, prefix: strings.TrimSuffix(cfg.TopicPrefix, "/"), qos: cfg.QoS}
}

func (m *MQTT) Name() string { return "mqtt" }

// Topic replaces MQTT wildcard and separator characters in the device name.
func (m *MQTT) Topic(rec model.Record) string {
	device := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(rec.Ident().DeviceName)
	return fmt.Sprintf("%s/%s/%s", m.prefix, rec.Kind, device)
}

func (m *MQTT) Send(ctx context.Context, rec model.Record) error {
	payload, err := Encode(rec, true)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.Topic(rec), m.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
