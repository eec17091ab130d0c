package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Koroad     KoroadConfig     `yaml:"koroad" mapstructure:"koroad"`
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where analysis runs are saved.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// DataConfig configures the accident database import.
type DataConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	// DataDir is the base for relative source paths.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
	// Sources overrides the location of a dataset's input, keyed by dataset name.
	Sources map[string]string `yaml:"sources" mapstructure:"sources"`
	// Schedules replaces a dataset's release calendar with a cron spec.
	Schedules map[string]string `yaml:"schedules" mapstructure:"schedules"`
}

// Source returns the configured location for dataset name, or def.
func (d DataConfig) Source(name, def string) string {
	if s, ok := d.Sources[name]; ok && s != "" {
		return s
	}
	return def
}

// KoroadConfig configures the KOROAD open-data API collector.
type KoroadConfig struct {
	APIKey            string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string   `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int      `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayMs      int      `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	PageSize          int      `yaml:"page_size" mapstructure:"page_size"`
	RequestsPerSecond int      `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	UserAgent         string   `yaml:"user_agent" mapstructure:"user_agent"`
	Years             []string `yaml:"years" mapstructure:"years"`
	// Regions are "sido:gugun" code pairs, e.g. "11:680".
	Regions []string `yaml:"regions" mapstructure:"regions"`
}

// APIConfig points at the region API used by the api analysis source.
type APIConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnalysisConfig holds defaults for the analyze command.
type AnalysisConfig struct {
	DefaultMethod string `yaml:"default_method" mapstructure:"default_method"`
	Locale        string `yaml:"locale" mapstructure:"locale"`
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	SyncSchedule string   `yaml:"sync_schedule" mapstructure:"sync_schedule"` // cron spec; empty disables
}

// ResilienceConfig configures retries and circuit breaking for outbound calls.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	// SyncFailureThreshold is the number of failed dataset syncs in the
	// lookback window that raises an alert.
	SyncFailureThreshold int `yaml:"sync_failure_threshold" mapstructure:"sync_failure_threshold"`
	// SyncStallMins is how long a sync may stay running before it is
	// reported as stalled. Zero disables the check.
	SyncStallMins int `yaml:"sync_stall_mins" mapstructure:"sync_stall_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SAFEWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("data.database_url", "")
	v.SetDefault("koroad.api_key", "")
	v.SetDefault("server.sync_schedule", "")
	v.SetDefault("store.sqlite_path", "safewalk.db")
	v.SetDefault("data.temp_dir", "/tmp/safewalk")
	v.SetDefault("data.data_dir", ".")
	v.SetDefault("koroad.base_url", "https://opendata.koroad.or.kr/data/rest")
	v.SetDefault("koroad.timeout_secs", 30)
	v.SetDefault("koroad.max_retries", 3)
	v.SetDefault("koroad.retry_delay_ms", 1000)
	v.SetDefault("koroad.page_size", 100)
	v.SetDefault("koroad.requests_per_second", 10)
	v.SetDefault("koroad.user_agent", "Tourism-Safety-Service/1.0")
	v.SetDefault("koroad.years", []string{"2017", "2018", "2019", "2020", "2021", "2022", "2023"})
	v.SetDefault("koroad.regions", DefaultKoroadRegions)
	v.SetDefault("api.base_url", "http://localhost:8080/api/v1")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("analysis.default_method", "adaptive")
	v.SetDefault("analysis.locale", "ko")
	v.SetDefault("analysis.output_dir", ".")
	v.SetDefault("analysis.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.sync_failure_threshold", 1)
	v.SetDefault("monitoring.sync_stall_mins", 120)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 30000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// DefaultKoroadRegions is a starter set of sido:gugun pairs, at least one per
// metropolitan area and province.
var DefaultKoroadRegions = []string{
	"11:680", "11:740", "11:305", // 서울 강남구 강동구 강북구
	"26:440", "26:410", // 부산 강서구 금정구
	"27:200", "27:290", // 대구 중구 달서구
	"28:185", "28:245", // 인천 계양구 미추홀구
	"29:155", "29:170", // 광주 광산구 남구
	"30:230", "30:200", // 대전 유성구 서구
	"31:200", "31:140", // 울산 중구 남구
	"36:110",           // 세종
	"41:820", "41:280", // 경기 가평군 고양시
	"42:150", "42:820", // 강원 강릉시 고성군
	"47:130",           // 경북 경주시
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
