package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "redis://redis:6379/0", cfg.Redis.URL)
	assert.Equal(t, 60*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "/app/media", cfg.Paths.MediaRoot)
	assert.Equal(t, 10*time.Second, cfg.Readiness.Interval)
	assert.Equal(t, 5, cfg.Readiness.Retries)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins())
	assert.False(t, cfg.Email.Enabled())
}

func TestFromEnvRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidateNamesKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("WORKER_CONCURRENCY", "0")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_CONCURRENCY")
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", Name: "sentinel", SSLMode: "disable"}
	dsn := db.DSN()
	assert.True(t, strings.HasPrefix(dsn, "postgres://app:p%40ss@db:5432/sentinel"), dsn)
	assert.Contains(t, dsn, "sslmode=disable")

	db.URL = "postgres://override"
	assert.Equal(t, "postgres://override", db.DSN())
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nSERVER_PORT=9001\n"), 0o600))

	t.Setenv(EnvFileVar, path)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("SERVER_PORT", "")
	os.Unsetenv("SERVER_PORT")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret, "existing env wins over the file")
	assert.Equal(t, 9001, cfg.Server.Port)
}

func TestLoadDetectorsOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detectors.yaml")
	doc := `
detectors:
  fall:
    config:
      conf_threshold: 0.5
  smoke_v2:
    model_path: smoke_v2.pt
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	detectors, err := LoadDetectors(path, "/models")
	require.NoError(t, err)

	fall := detectors["fall"]
	assert.Equal(t, 0.5, fall.Config.ConfThreshold)
	assert.Equal(t, 0.37, fall.Config.IOUThreshold)
	assert.Equal(t, 512, fall.Config.ImageSize)

	extra := detectors["smoke_v2"]
	assert.Equal(t, "/models/smoke_v2.pt", extra.ModelPath)
	assert.Equal(t, FallbackDetectorParams, extra.Config)

	assert.Equal(t, []string{"choking", "fall", "fire_smoke", "smoke_v2", "violence"}, DetectorKeys(detectors))
}

func TestLoadDetectorsDefaults(t *testing.T) {
	detectors, err := LoadDetectors("", "/models")
	require.NoError(t, err)
	assert.Len(t, detectors, 4)
	assert.Equal(t, 736, detectors["violence"].Config.ImageSize)
}
