package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edms/config"
	"edms/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// mqttPublisher is the part of mqtt.Client used by the annunciator
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// AnnunciatorPayload is the retained message read by annunciator panels
type AnnunciatorPayload struct {
	Critical    int                  `json:"critical"`
	Warning     int                  `json:"warning"`
	Total       int                  `json:"total"`
	GeneratedAt time.Time            `json:"generated_at"`
	Items       []models.SummaryItem `json:"items"`
}

// MQTTService publishes the latest summary as a retained message
type MQTTService struct {
	client         mqttPublisher
	topic          string
	publishTimeout time.Duration
	logger         *zap.Logger
	disconnect     func()
}

// NewMQTTService connects to the broker named by MQTT_BROKER (host:port)
func NewMQTTService(cfg *config.Config, logger *zap.Logger) (*MQTTService, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.MQTTBroker))
	opts.SetClientID(fmt.Sprintf("edms-notifier-%d", time.Now().Unix()))
	opts.SetUsername(cfg.MQTTUser)
	opts.SetPassword(cfg.MQTTPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
	}

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(30*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	} else if !client.IsConnected() {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.MQTTBroker)
	}

	svc := newMQTTService(client, cfg.MQTTTopic, logger)
	svc.disconnect = func() { client.Disconnect(250) }
	return svc, nil
}

func newMQTTService(client mqttPublisher, topic string, logger *zap.Logger) *MQTTService {
	return &MQTTService{
		client:         client,
		topic:          topic,
		publishTimeout: 10 * time.Second,
		logger:         logger,
	}
}

func (m *MQTTService) Name() string { return "mqtt" }

// Notify publishes the summary counts and items, retained so new panels see the current state
func (m *MQTTService) Notify(ctx context.Context, summary *models.NotificationSummary) error {
	body, err := json.Marshal(buildAnnunciatorPayload(summary))
	if err != nil {
		return fmt.Errorf("failed to marshal annunciator payload: %w", err)
	}

	token := m.client.Publish(m.topic, 1, true, body)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.publishTimeout):
		return fmt.Errorf("timeout publishing to %s", m.topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", m.topic, err)
	}

	m.logger.Debug("Published annunciator state",
		zap.String("topic", m.topic),
		zap.String("pass_id", summary.PassID),
		zap.Int("items", len(summary.Items)))
	return nil
}

func buildAnnunciatorPayload(summary *models.NotificationSummary) AnnunciatorPayload {
	critical, warning := summary.Counts()
	items := summary.Items
	if items == nil {
		items = []models.SummaryItem{}
	}

	return AnnunciatorPayload{
		Critical:    critical,
		Warning:     warning,
		Total:       len(items),
		GeneratedAt: summary.GeneratedAt,
		Items:       items,
	}
}

// Close disconnects from the broker
func (m *MQTTService) Close() {
	if m.disconnect != nil {
		m.disconnect()
	}
	m.logger.Info("MQTT connection closed")
}
