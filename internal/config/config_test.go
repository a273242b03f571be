package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.XA.Dialect)
	assert.Equal(t, 50, cfg.XA.MaxOpenConns)
	assert.Equal(t, 10, cfg.XA.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.XA.ConnMaxLifetime)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sqltx.yaml")
	content := []byte(`
xa:
  dialect: mysql
  dsn: "user:pass@tcp(localhost:3306)/app"
  max_open_conns: 5
  cleanup_prefix: "job_"
retry:
  max_retries: 7
  base_backoff: 250ms
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "user:pass@tcp(localhost:3306)/app", cfg.XA.DSN)
	assert.Equal(t, 5, cfg.XA.MaxOpenConns)
	assert.Equal(t, "job_", cfg.XA.CleanupPrefix)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Defaults still fill whatever the file leaves out.
	assert.Equal(t, 10, cfg.XA.MaxIdleConns)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SQLTX_RETRY_MAX_RETRIES", "9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retry.MaxRetries)
}
