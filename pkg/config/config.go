// Package config loads kinodb settings from defaults, an optional yaml file,
// a .env file and KINODB_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/pager"
	"github.com/ammar0144/kinodb/pkg/redis"
	"github.com/ammar0144/kinodb/pkg/validation"
)

const (
	// EnvPrefix prefixes every environment override, e.g. KINODB_DATABASE_PATH
	EnvPrefix = "KINODB"
	// FileName is the config file looked up when no path is given
	FileName = ".kinodb"
	// DefaultDatabasePath is used when nothing else names a database file
	DefaultDatabasePath = "kinodb.db"
)

// Config is the complete application configuration
type Config struct {
	Database db.Config     `json:"database" yaml:"database" mapstructure:"database"`
	Cache    redis.Config  `json:"cache" yaml:"cache" mapstructure:"cache"`
	UI       UIConfig      `json:"ui" yaml:"ui" mapstructure:"ui"`
	Logging  LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// UIConfig controls the interactive prompts
type UIConfig struct {
	PageSize    int    `json:"page_size" yaml:"page_size" mapstructure:"page_size"`
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	HistoryFile string `json:"history_file" yaml:"history_file" mapstructure:"history_file"`
}

// LoggingConfig controls the application logger
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"` // trace, debug, info, warn, error, off
	JSON  bool   `json:"json" yaml:"json" mapstructure:"json"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Database: *db.DefaultConfig(DefaultDatabasePath),
		Cache:    *redis.DefaultConfig(),
		UI: UIConfig{
			PageSize:    pager.DefaultPageSize,
			MaxAttempts: validation.DefaultMaxAttempts,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c.UI.PageSize < 1 {
		return fmt.Errorf("ui: page_size must be positive, got %d", c.UI.PageSize)
	}
	if c.UI.MaxAttempts < 1 {
		return fmt.Errorf("ui: max_attempts must be positive, got %d", c.UI.MaxAttempts)
	}
	if hclog.LevelFromString(c.Logging.Level) == hclog.NoLevel {
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	return nil
}

// Load reads the configuration. path names a config file that must exist;
// when empty, .kinodb.yaml is looked up in the working and home directories
// and skipped if missing.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading configuration file '%s': %w", path, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading configuration file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the application logger
func (c LoggingConfig) NewLogger(out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "kinodb",
		Level:      hclog.LevelFromString(c.Level),
		Output:     out,
		JSONFormat: c.JSON,
	})
}

// loadDotEnv exports the variables of file, keeping ones already set
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); err != nil {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("error loading %s: %w", file, err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]interface{}{
		"database.path":                         d.Database.Path,
		"database.busy_timeout":                 d.Database.BusyTimeout,
		"database.journal_mode":                 d.Database.JournalMode,
		"database.query_timeout":                d.Database.QueryTimeout,
		"database.logging.level":                d.Database.Logging.Level,
		"database.logging.slow_query_threshold": d.Database.Logging.SlowQueryThreshold,
		"database.logging.log_query_parameters": d.Database.Logging.LogQueryParameters,
		"cache.enabled":                         d.Cache.Enabled,
		"cache.default_ttl":                     d.Cache.DefaultTTL,
		"cache.key_prefix":                      d.Cache.KeyPrefix,
		"cache.host":                            d.Cache.Host,
		"cache.port":                            d.Cache.Port,
		"cache.password":                        d.Cache.Password,
		"cache.database":                        d.Cache.Database,
		"cache.pool_size":                       d.Cache.PoolSize,
		"cache.min_idle_conns":                  d.Cache.MinIdleConns,
		"cache.pool_timeout":                    d.Cache.PoolTimeout,
		"cache.idle_timeout":                    d.Cache.IdleTimeout,
		"cache.read_timeout":                    d.Cache.ReadTimeout,
		"cache.write_timeout":                   d.Cache.WriteTimeout,
		"cache.dial_timeout":                    d.Cache.DialTimeout,
		"cache.logging.log_cache_hits":          d.Cache.Logging.LogCacheHits,
		"cache.logging.log_cache_misses":        d.Cache.Logging.LogCacheMisses,
		"cache.logging.log_invalidations":       d.Cache.Logging.LogInvalidations,
		"ui.page_size":                          d.UI.PageSize,
		"ui.max_attempts":                       d.UI.MaxAttempts,
		"ui.history_file":                       d.UI.HistoryFile,
		"logging.level":                         d.Logging.Level,
		"logging.json":                          d.Logging.JSON,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
