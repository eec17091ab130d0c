package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Server.Port = 8080
	cfg.Analysis.Concurrency = 4
	cfg.Analysis.DefaultMethod = "adaptive"
	cfg.Analysis.Locale = "ko"
	cfg.Koroad.PageSize = 100
	cfg.Koroad.RequestsPerSecond = 10
	cfg.Koroad.Regions = DefaultKoroadRegions
	return cfg
}

func TestValidateAnalyze_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("analyze"))
}

func TestValidateData_DedicatedURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Data.DatabaseURL = "postgres://localhost/accidents"
	assert.NoError(t, cfg.Validate("data"))
}

func TestValidateData_FallsBackToStoreURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/main"
	assert.NoError(t, cfg.Validate("data"))
	assert.Equal(t, "postgres://localhost/main", cfg.DataDatabaseURL())
}

func TestValidateData_NoDB(t *testing.T) {
	err := validDefaults().Validate("data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestValidateCollect(t *testing.T) {
	cfg := validDefaults()
	cfg.Data.DatabaseURL = "postgres://localhost/accidents"

	err := cfg.Validate("collect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "koroad.api_key is required")

	cfg.Koroad.APIKey = "key"
	cfg.Koroad.PageSize = 5000
	cfg.Koroad.Regions = []string{"11680"}
	err = cfg.Validate("collect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "koroad.page_size must be between 1 and 1000")
	assert.Contains(t, err.Error(), `"11680" must be sido:gugun`)

	cfg.Koroad.PageSize = 1000
	cfg.Koroad.Regions = []string{"11:680"}
	assert.NoError(t, cfg.Validate("collect"))
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_SyncSchedule(t *testing.T) {
	cfg := validDefaults()
	cfg.Data.DatabaseURL = "postgres://localhost/accidents"

	cfg.Server.SyncSchedule = "0 3 * * *"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.SyncSchedule = "every night"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.sync_schedule is invalid")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateCommon(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Analysis.Concurrency = 0
	cfg.Analysis.DefaultMethod = "kmeans"
	cfg.Analysis.Locale = "fr"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
	assert.Contains(t, err.Error(), "analysis.concurrency must be between 1 and 32")
	assert.Contains(t, err.Error(), `analysis.default_method "kmeans"`)
	assert.Contains(t, err.Error(), "analysis.locale must be ko or en")

	cfg = validDefaults()
	cfg.Store.Driver = "postgres"
	err = cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateData_Schedules(t *testing.T) {
	cfg := validDefaults()
	cfg.Data.DatabaseURL = "postgres://localhost/accidents"
	cfg.Data.Schedules = map[string]string{"visitor_boom": "0 3 * * 1"}
	assert.NoError(t, cfg.Validate("data"))

	cfg.Data.Schedules["risk_areas"] = "every day"
	err := cfg.Validate("data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.schedules.risk_areas is invalid")
}
