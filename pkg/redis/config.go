package redis

import (
	"fmt"
	"time"
)

// Config holds the optional Redis cache configuration
type Config struct {
	// Cache Strategy
	Enabled    bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix  string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	// Redis Connection
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	Database int    `json:"database" yaml:"database" mapstructure:"database"`

	// Connection Pool
	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `json:"pool_timeout" yaml:"pool_timeout" mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`

	// Performance
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// Cache Logging
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// LoggingConfig controls Redis cache logging behavior
type LoggingConfig struct {
	LogCacheHits     bool `json:"log_cache_hits" yaml:"log_cache_hits" mapstructure:"log_cache_hits"`
	LogCacheMisses   bool `json:"log_cache_misses" yaml:"log_cache_misses" mapstructure:"log_cache_misses"`
	LogInvalidations bool `json:"log_invalidations" yaml:"log_invalidations" mapstructure:"log_invalidations"`
}

// DefaultConfig returns a Redis configuration with sensible defaults.
// The cache is off unless explicitly enabled.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		DefaultTTL:   10 * time.Minute,
		KeyPrefix:    "kinodb",
		Host:         "localhost",
		Port:         6379,
		Database:     0,
		PoolSize:     4,
		MinIdleConns: 1,
		PoolTimeout:  time.Second * 4,
		IdleTimeout:  time.Minute * 5,
		ReadTimeout:  time.Second * 3,
		WriteTimeout: time.Second * 3,
		DialTimeout:  time.Second * 5,
		Logging: LoggingConfig{
			LogCacheHits:     false,
			LogCacheMisses:   false,
			LogInvalidations: true,
		},
	}
}

// Validate checks if the Redis configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // Skip validation if cache is disabled
	}

	if c.Host == "" {
		return fmt.Errorf("redis host is required when cache is enabled")
	}
	if c.Port <= 0 {
		return fmt.Errorf("redis port must be positive")
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive when cache is enabled")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("key_prefix is required when cache is enabled")
	}

	return nil
}

// GetAddr returns the Redis connection address
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
