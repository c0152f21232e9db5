package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("NOTRA_DATABASE_URL", "postgres://localhost/notra_test")
	t.Setenv("NOTRA_CALLBACK_URL", "https://notra.example.com/api/workflows/run")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres://localhost/notra_test", cfg.Database.URL)
	assert.Equal(t, "https://qstash.upstash.io", cfg.Scheduler.BaseURL)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Queue.URL)
	assert.Equal(t, "WORKFLOWS", cfg.Queue.Stream)
	assert.False(t, cfg.Queue.Enabled)
	assert.Equal(t, "gpt-4o", cfg.Generation.Model)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9090"
  read_timeout: 5s
database:
  url: postgres://filehost/notra
scheduler:
  callback_url: https://file.example.com/run
  timeout: 3s
queue:
  enabled: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// Environment wins over the file.
	t.Setenv("NOTRA_DATABASE_URL", "postgres://envhost/notra")
	t.Setenv("NOTRA_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres://envhost/notra", cfg.Database.URL)
	assert.Equal(t, "https://file.example.com/run", cfg.Scheduler.CallbackURL)
	assert.Equal(t, 3*time.Second, cfg.Scheduler.Timeout)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_QueueEnabledFromEnv(t *testing.T) {
	t.Setenv("NOTRA_DATABASE_URL", "postgres://localhost/notra_test")
	t.Setenv("NOTRA_CALLBACK_URL", "https://notra.example.com/run")
	t.Setenv("NOTRA_QUEUE_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Queue.Enabled)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	t.Setenv("NOTRA_DATABASE_URL", "")
	t.Setenv("NOTRA_CALLBACK_URL", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")

	t.Setenv("NOTRA_DATABASE_URL", "postgres://localhost/notra_test")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callback_url")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
