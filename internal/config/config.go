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
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Client   ClientConfig   `yaml:"client" mapstructure:"client"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// UpstreamConfig configures the open-data API client.
type UpstreamConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SyncConfig configures the scheduled synchronization run.
type SyncConfig struct {
	Schedule       string `yaml:"schedule" mapstructure:"schedule"`
	Timezone       string `yaml:"timezone" mapstructure:"timezone"`
	StalenessHours int    `yaml:"staleness_hours" mapstructure:"staleness_hours"`
}

// ClientConfig configures the read-API client used by the presentation tier.
type ClientConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WORKSTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. The empty api_key default registers the key so the
	// WORKSTAT_UPSTREAM_API_KEY env var is picked up by Unmarshal.
	v.SetDefault("upstream.base_url", "https://api.data.gov.in/resource")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout_secs", 30)
	v.SetDefault("upstream.page_size", 1000)
	v.SetDefault("upstream.rate_per_sec", 5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "workstat.db")
	v.SetDefault("sync.schedule", "0 2 * * *")
	v.SetDefault("sync.timezone", "Asia/Kolkata")
	v.SetDefault("sync.staleness_hours", 24)
	v.SetDefault("client.base_url", "")
	v.SetDefault("client.timeout_secs", 10)
	v.SetDefault("client.max_attempts", 4)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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
