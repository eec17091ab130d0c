package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "safewalk.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/tmp/safewalk", cfg.Data.TempDir)
	assert.Equal(t, "https://opendata.koroad.or.kr/data/rest", cfg.Koroad.BaseURL)
	assert.Equal(t, 30, cfg.Koroad.TimeoutSecs)
	assert.Equal(t, 3, cfg.Koroad.MaxRetries)
	assert.Equal(t, 100, cfg.Koroad.PageSize)
	assert.Equal(t, 10, cfg.Koroad.RequestsPerSecond)
	assert.Equal(t, "Tourism-Safety-Service/1.0", cfg.Koroad.UserAgent)
	assert.Len(t, cfg.Koroad.Years, 7)
	assert.Equal(t, "2017", cfg.Koroad.Years[0])
	assert.Equal(t, DefaultKoroadRegions, cfg.Koroad.Regions)
	assert.Equal(t, "http://localhost:8080/api/v1", cfg.API.BaseURL)
	assert.Equal(t, "adaptive", cfg.Analysis.DefaultMethod)
	assert.Equal(t, "ko", cfg.Analysis.Locale)
	assert.Equal(t, 4, cfg.Analysis.Concurrency)
	assert.Equal(t, 3, cfg.Resilience.MaxAttempts)
	assert.InDelta(t, 2.0, cfg.Resilience.Multiplier, 0.001)
	assert.Equal(t, 120, cfg.Monitoring.SyncStallMins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/safewalk
log:
  level: debug
  format: console
server:
  port: 9090
data:
  sources:
    risk_areas: /data/RiskArea.csv
analysis:
  default_method: quartile
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "quartile", cfg.Analysis.DefaultMethod)
	assert.Equal(t, "/data/RiskArea.csv", cfg.Data.Source("risk_areas", "csv/RiskArea.csv"))
	assert.Equal(t, "csv/Other.csv", cfg.Data.Source("other", "csv/Other.csv"))
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Koroad.PageSize)
	assert.Equal(t, "postgres://localhost/safewalk", cfg.DataDatabaseURL())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("SAFEWALK_STORE_DRIVER", "postgres")
	t.Setenv("SAFEWALK_LOG_LEVEL", "warn")
	t.Setenv("SAFEWALK_KOROAD_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "secret", cfg.Koroad.APIKey)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SAFEWALK_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
