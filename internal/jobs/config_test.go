package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:8000/graphql", cfg.APIURL)
	assert.Equal(t, TransportHTTP, cfg.APITransport)
	assert.Equal(t, 10*time.Second, cfg.APITimeout)
	assert.Equal(t, 3, cfg.APIRetries)
	assert.Equal(t, "/tmp", cfg.LogDir)
	assert.Equal(t, 7, cfg.ReminderLookbackDays)
	assert.Equal(t, "*/5 * * * *", cfg.Schedules[JobHeartbeat])
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: http://crm:8000/graphql
api_timeout: 5s
log_dir: /var/log/crm
reminder_lookback_days: 0
schedules:
  report: "0 7 * * 1"
`), 0o644))

	t.Setenv("CRM_LOG_DIR", "/srv/logs")
	t.Setenv("CRM_API_RETRIES", "2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://crm:8000/graphql", cfg.APIURL)
	assert.Equal(t, 5*time.Second, cfg.APITimeout)
	assert.Equal(t, "/srv/logs", cfg.LogDir)
	assert.Equal(t, 2, cfg.APIRetries)
	assert.Equal(t, 0, cfg.ReminderLookbackDays)
	assert.Equal(t, "0 7 * * 1", cfg.Schedules[JobReport])
	assert.Equal(t, "*/5 * * * *", cfg.Schedules[JobHeartbeat])
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad timeout", env: map[string]string{"CRM_API_TIMEOUT": "soon"}},
		{name: "bad retries", env: map[string]string{"CRM_API_RETRIES": "many"}},
		{name: "zero retries", env: map[string]string{"CRM_API_RETRIES": "0"}},
		{name: "unknown transport", env: map[string]string{"CRM_API_TRANSPORT": "smtp"}},
		{name: "negative lookback", env: map[string]string{"CRM_REMINDER_LOOKBACK_DAYS": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_RetryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIRetries = 2
	cfg.APITimeout = time.Second

	rc := cfg.RetryConfig()
	assert.Equal(t, 2, rc.MaxAttempts)
	assert.Equal(t, time.Second, rc.AttemptTimeout)
	assert.Equal(t, 100*time.Millisecond, rc.InitialDelay)
}
