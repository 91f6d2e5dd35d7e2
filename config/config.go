package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string
	Timezone string

	// EDMS backend
	BackendURL           string
	BackendToken         string
	BackendTimeout       time.Duration
	BackendFetchAttempts int
	BackendHealthTimeout time.Duration

	// Default device filter for scheduled passes
	BuildingCode string
	SiteID       string

	PollInterval      time.Duration
	TransitionWorkers int
	HTTPPort          string

	TelegramBotToken string
	TelegramChatID   string
	AlertCooldown    time.Duration

	HardwareAlertURL string

	MQTTBroker string
	MQTTUser   string
	MQTTPass   string
	MQTTTopic  string

	RabbitMQURL           string
	RabbitMQExchange      string
	RabbitMQRefreshQueue  string
	RabbitMQTransitionKey string

	FirebaseDbUrl              string
	FirebaseServiceAccountJSON string
	FirebaseBatchSize          int
	FirebaseBatchTimeout       int // seconds
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("TIMEZONE", ""),

		BackendURL:           strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:3000"), "/"),
		BackendToken:         getEnv("BACKEND_TOKEN", ""),
		BackendTimeout:       getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
		BackendFetchAttempts: getEnvInt("BACKEND_FETCH_ATTEMPTS", 3),
		BackendHealthTimeout: getEnvDuration("BACKEND_HEALTH_TIMEOUT", 5*time.Minute),

		BuildingCode: getEnv("BUILDING_CODE", ""),
		SiteID:       getEnv("SITE_ID", ""),

		PollInterval:      getEnvDuration("POLL_INTERVAL", 15*time.Minute),
		TransitionWorkers: getEnvInt("TRANSITION_WORKERS", 1),
		HTTPPort:          getEnv("HTTP_PORT", "8085"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertCooldown:    getEnvDuration("ALERT_COOLDOWN", 6*time.Hour),

		HardwareAlertURL: strings.TrimRight(getEnv("HARDWARE_ALERT_URL", ""), "/"),

		MQTTBroker: getEnv("MQTT_BROKER", ""),
		MQTTUser:   getEnv("MQTT_USER", ""),
		MQTTPass:   getEnv("MQTT_PASS", ""),
		MQTTTopic:  getEnv("MQTT_TOPIC", "edms/notifications"),

		RabbitMQURL:           getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:      getEnv("RABBITMQ_EXCHANGE", "edms.events"),
		RabbitMQRefreshQueue:  getEnv("RABBITMQ_REFRESH_QUEUE", "edms.notifications.refresh"),
		RabbitMQTransitionKey: getEnv("RABBITMQ_TRANSITION_KEY", "device.status.changed"),

		FirebaseDbUrl:              getEnv("FIREBASE_DB_URL", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseBatchSize:          getEnvInt("FIREBASE_BATCH_SIZE", 50),
		FirebaseBatchTimeout:       getEnvInt("FIREBASE_BATCH_TIMEOUT", 30),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports missing required settings and half-configured integrations.
func (c *Config) Validate() error {
	var problems []string

	if c.BackendURL == "" {
		problems = append(problems, "BACKEND_URL is required")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		problems = append(problems, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if c.FirebaseDbUrl != "" && c.FirebaseServiceAccountJSON == "" {
		problems = append(problems, "FIREBASE_SERVICE_ACCOUNT_JSON is required when FIREBASE_DB_URL is set")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "POLL_INTERVAL must be positive")
	}
	if c.FirebaseBatchSize <= 0 {
		problems = append(problems, "FIREBASE_BATCH_SIZE must be positive")
	}
	if c.FirebaseBatchTimeout <= 0 {
		problems = append(problems, "FIREBASE_BATCH_TIMEOUT must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) TelegramEnabled() bool { return c.TelegramBotToken != "" }
func (c *Config) FirebaseEnabled() bool { return c.FirebaseDbUrl != "" }
func (c *Config) RabbitMQEnabled() bool { return c.RabbitMQURL != "" }
func (c *Config) MQTTEnabled() bool     { return c.MQTTBroker != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
