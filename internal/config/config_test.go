package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flinkctl/internal/apperrors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.JobManager.Address)
	assert.Equal(t, 8081, cfg.JobManager.Port)
	assert.Equal(t, 30*time.Second, cfg.JobManager.Timeout)
	assert.Equal(t, 1, cfg.JobManager.Burst)
	assert.Equal(t, 20, cfg.Poll.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Poll.RetrySleep)
	assert.Equal(t, "constant", cfg.Poll.Backoff)
	assert.Equal(t, time.Duration(0), cfg.Deploy.Deadline)
	assert.Equal(t, 8088, cfg.ResourceManager.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 100, cfg.Notify.Buffer)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownDrainWait)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "flinkctl.yaml", `
jobmanager:
  address: flink.internal
  port: 18081
  timeout: 5s
poll:
  max_retries: 3
  retry_sleep: 250ms
  backoff: exponential
deploy:
  deadline: 10m
notify:
  url: https://hooks.example.com/flink
history:
  enabled: false
`)

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "flink.internal", cfg.JobManager.Address)
	assert.Equal(t, 18081, cfg.JobManager.Port)
	assert.Equal(t, 5*time.Second, cfg.JobManager.Timeout)
	assert.Equal(t, 3, cfg.Poll.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.RetrySleep)
	assert.Equal(t, "exponential", cfg.Poll.Backoff)
	assert.Equal(t, 10*time.Minute, cfg.Deploy.Deadline)
	assert.Equal(t, "https://hooks.example.com/flink", cfg.Notify.URL)
	assert.False(t, cfg.History.Enabled)
	// untouched keys keep defaults
	assert.Equal(t, 1, cfg.JobManager.Burst)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "flinkctl.yaml", "jobmanager:\n  port: 18081\n")
	t.Setenv("FLINKCTL_JOBMANAGER_PORT", "28081")
	t.Setenv("FLINKCTL_POLL_RETRY_SLEEP", "1s")
	t.Setenv("FLINKCTL_RESOURCEMANAGER_ADDRESS", "rm.internal")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 28081, cfg.JobManager.Port)
	assert.Equal(t, time.Second, cfg.Poll.RetrySleep)
	assert.Equal(t, "rm.internal", cfg.ResourceManager.Address)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"port out of range", "jobmanager:\n  port: 70000\n", "jobmanager.port"},
		{"unknown backoff", "poll:\n  backoff: fibonacci\n", "poll.backoff"},
		{"zero retries", "poll:\n  max_retries: 0\n", "poll.max_retries"},
		{"unknown log format", "logging:\n  format: xml\n", "logging.format"},
		{"negative deadline", "deploy:\n  deadline: -1s\n", "deploy.deadline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(New(), writeFile(t, "flinkctl.yaml", tt.yaml))

			require.ErrorIs(t, err, apperrors.ErrValidation)
			var appErr *apperrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestGetSecretFile(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GetSecretFile(""))
	assert.Empty(t, GetSecretFile("/nonexistent/path/to/secret"))

	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("  my-secret-value\n"), 0o600))
	assert.Equal(t, "my-secret-value", GetSecretFile(path))
}
