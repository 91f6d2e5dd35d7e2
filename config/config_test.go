package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://edms.local:3000/")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	t.Setenv("FIREBASE_DB_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://edms.local:3000", cfg.BackendURL)
	assert.Equal(t, 15*time.Minute, cfg.PollInterval)
	assert.Equal(t, 3, cfg.BackendFetchAttempts)
	assert.Equal(t, "edms/notifications", cfg.MQTTTopic)
	assert.False(t, cfg.TelegramEnabled())
	assert.False(t, cfg.FirebaseEnabled())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://edms.local:3000")
	t.Setenv("POLL_INTERVAL", "90s")
	t.Setenv("TRANSITION_WORKERS", "4")
	t.Setenv("BACKEND_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.PollInterval)
	assert.Equal(t, 4, cfg.TransitionWorkers)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "telegram token without chat",
			mutate:  func(c *Config) { c.TelegramBotToken = "token" },
			wantErr: "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID",
		},
		{
			name:    "firebase without credentials",
			mutate:  func(c *Config) { c.FirebaseDbUrl = "https://edms.firebaseio.com" },
			wantErr: "FIREBASE_SERVICE_ACCOUNT_JSON",
		},
		{
			name:    "missing backend",
			mutate:  func(c *Config) { c.BackendURL = "" },
			wantErr: "BACKEND_URL",
		},
		{
			name:    "zero batch timeout",
			mutate:  func(c *Config) { c.FirebaseBatchTimeout = 0 },
			wantErr: "FIREBASE_BATCH_TIMEOUT",
		},
		{
			name:    "negative batch size",
			mutate:  func(c *Config) { c.FirebaseBatchSize = -1 },
			wantErr: "FIREBASE_BATCH_SIZE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{BackendURL: "http://localhost:3000", PollInterval: time.Minute, FirebaseBatchSize: 50, FirebaseBatchTimeout: 30}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
