package db

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// DefaultConfig returns a configuration with sensible defaults for a local file
func DefaultConfig(path string) *Config {
	return &Config{
		Path:         path,
		BusyTimeout:  5 * time.Second,
		QueryTimeout: 30 * time.Second,
		Logging: LoggingConfig{
			Level:              "error",
			SlowQueryThreshold: 200 * time.Millisecond,
		},
	}
}

// Validate checks if the database configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busy_timeout cannot be negative, got %s", c.BusyTimeout)
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout cannot be negative, got %s", c.QueryTimeout)
	}

	switch strings.ToUpper(c.JournalMode) {
	case "", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("unsupported journal_mode %q", c.JournalMode)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "silent", "error", "warn", "info":
	default:
		return fmt.Errorf("unsupported logging level %q", c.Logging.Level)
	}

	return nil
}

// IsMemory reports whether the config points at an in-memory store
func (c *Config) IsMemory() bool {
	return c.Path == MemoryPath
}

// GetDSN returns the go-sqlite3 data source name.
// Foreign keys are switched on here because SQLite leaves them off per connection.
func (c *Config) GetDSN() string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	if c.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" && !c.IsMemory() {
		params.Set("_journal_mode", strings.ToUpper(c.JournalMode))
	}
	return c.Path + "?" + params.Encode()
}
