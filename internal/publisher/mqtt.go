package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/pkg/models"
)

const mqttPublishTimeout = 10 * time.Second

// MQTTPublisher sends statistics to an MQTT broker
type MQTTPublisher struct {
	client      mqtt.Client
	topicPrefix string
}

// NewMQTT connects to the configured broker
func NewMQTT(cfg config.MQTTConfig, topicPrefix string) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("linkyscraper")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return newMQTTWithClient(client, topicPrefix), nil
}

func newMQTTWithClient(client mqtt.Client, topicPrefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topicPrefix: topicPrefix}
}

// StatisticsTopic is where the full series is published
func (m *MQTTPublisher) StatisticsTopic(usagePointID string) string {
	return fmt.Sprintf("%s/%s/statistics", m.topicPrefix, usagePointID)
}

// LastTopic is where the newest statistic is published, retained
func (m *MQTTPublisher) LastTopic(usagePointID string) string {
	return fmt.Sprintf("%s/%s/last", m.topicPrefix, usagePointID)
}

// PublishStatistics publishes the series and its last point
func (m *MQTTPublisher) PublishStatistics(usagePointID string, stats []models.StatisticDataPoint) error {
	if len(stats) == 0 {
		return nil
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}
	if err := m.publish(m.StatisticsTopic(usagePointID), false, payload); err != nil {
		return err
	}

	last, err := json.Marshal(stats[len(stats)-1])
	if err != nil {
		return fmt.Errorf("encoding last statistic: %w", err)
	}
	return m.publish(m.LastTopic(usagePointID), true, last)
}

func (m *MQTTPublisher) publish(topic string, retained bool, payload []byte) error {
	token := m.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (m *MQTTPublisher) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
