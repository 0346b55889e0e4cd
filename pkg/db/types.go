package db

import (
	"database/sql"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
)

// Config holds the embedded SQLite/GORM configuration
type Config struct {
	// Path is the database file; ":memory:" opens a private in-memory store
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// SQLite Specific Settings
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`
	JournalMode string        `json:"journal_mode" yaml:"journal_mode" mapstructure:"journal_mode"` // DELETE, WAL, MEMORY

	// Query Settings
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout" mapstructure:"query_timeout"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// LoggingConfig controls how GORM reports statements
type LoggingConfig struct {
	Level              string        `json:"level" yaml:"level" mapstructure:"level"` // silent, error, warn, info
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold" mapstructure:"slow_query_threshold"`
	LogQueryParameters bool          `json:"log_query_parameters" yaml:"log_query_parameters" mapstructure:"log_query_parameters"`
}

// Row is one result row, values in projection order.
// TEXT comes back as string, INTEGER as int64, NULL as nil.
type Row []interface{}

// Manager owns the single connection to the store
type Manager struct {
	config  *Config
	log     hclog.Logger
	storeID string

	sqlDB *sql.DB
	conn  *sql.Conn
	db    *gorm.DB

	mu            sync.Mutex
	closed        bool
	inTx          bool
	savepoints    []string
	functions     map[string]struct{}
	collations    map[string]struct{}
	rollbackHooks []func()
}
