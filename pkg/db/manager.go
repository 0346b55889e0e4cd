package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// driverName is registered by go-sqlite3 on import
	driverName = "sqlite3"

	// savepointPrefix names the savepoints handed out by WithSavepoint
	savepointPrefix = "kinodb_sp"

	// CaseInsensitiveCollation is installed on every connection
	CaseInsensitiveCollation = "CI"

	// CaseFoldFunction lower-cases its argument with Unicode rules, NULL stays NULL
	CaseFoldFunction = "casefold"
)

// memoryStores numbers the private in-memory databases opened by this process
var memoryStores atomic.Uint64

// identifierPattern guards names that end up in SQL text (savepoints, functions, collations)
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewManager opens the store and pins the single connection every other
// component goes through.
func NewManager(ctx context.Context, config *Config, log hclog.Logger) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("db")

	if !config.IsMemory() {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: failed to create database directory: %v", ErrConnection, err)
		}
	}

	sqlDB, err := sql.Open(driverName, config.GetDSN())
	if err != nil {
		log.Error("failed to open database", "path", config.Path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	// One writer, one connection: functions and collations live on it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		_ = sqlDB.Close()
		log.Error("failed to connect to database", "path", config.Path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = sqlDB.Close()
		log.Error("database ping failed", "path", config.Path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	gormDB, err := gorm.Open(sqlite.New(sqlite.Config{Conn: conn}), &gorm.Config{
		// Transactions are driven explicitly through Begin and savepoints.
		SkipDefaultTransaction: true,
		Logger:                 newGormLogger(log, config.Logging),
	})
	if err != nil {
		_ = conn.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	m := &Manager{
		config:     config,
		log:        log,
		storeID:    storeID(config),
		sqlDB:      sqlDB,
		conn:       conn,
		db:         gormDB,
		functions:  make(map[string]struct{}),
		collations: make(map[string]struct{}),
	}

	if err := m.registerBuiltins(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	log.Debug("database opened", "path", config.Path)
	return m, nil
}

// Run opens the store, initializes the schema and runs fn inside the session
// transaction. The session commits when fn returns nil and rolls back when fn
// fails or panics; the connection is closed on every path.
func Run(ctx context.Context, config *Config, log hclog.Logger, fn func(ctx context.Context, m *Manager) error) (err error) {
	m, err := NewManager(ctx, config, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err = m.InitializeSchema(ctx); err != nil {
		return err
	}
	if err = m.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = m.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err = fn(ctx, m); err != nil {
		if rbErr := m.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			m.log.Error("session rollback failed", "error", rbErr)
			return fmt.Errorf("session error: %v, rollback error: %w", err, rbErr)
		}
		m.log.Warn("session rolled back", "error", err)
		return err
	}

	return m.Commit(ctx)
}

// DB returns the GORM database instance bound to the pinned connection
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// StoreID names the database this manager serves. Files are identified by
// their absolute path; every in-memory database gets an id of its own.
func (m *Manager) StoreID() string {
	return m.storeID
}

func storeID(config *Config) string {
	source := config.Path
	if config.IsMemory() {
		source = fmt.Sprintf("memory:%d:%d:%d", os.Getpid(), time.Now().UnixNano(), memoryStores.Add(1))
	} else if abs, err := filepath.Abs(config.Path); err == nil {
		source = abs
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(source))
}

// Logger returns the manager's logger
func (m *Manager) Logger() hclog.Logger {
	return m.log
}

// Close releases the connection. Calling it twice is harmless.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var firstErr error
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			firstErr = err
		}
	}
	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.log.Debug("database connection closed")
	return firstErr
}

// Ping tests the pinned connection
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.conn.PingContext(ctx)
}

// checkOpen is the precondition every statement path goes through
func (m *Manager) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.conn == nil {
		return ErrClosed
	}
	return nil
}

// withQueryTimeout wraps a context with the configured query timeout
func (m *Manager) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config != nil && m.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, m.config.QueryTimeout)
	}
	return ctx, func() {}
}

// ExecuteQuery runs a parameterized statement and returns every row.
// User values must travel in args; query text is trusted.
func (m *Manager) ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := m.withQueryTimeout(ctx)
	defer cancel()

	rows, err := m.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, m.storageFailure("query", query, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, m.storageFailure("scan", query, err)
	}
	return result, nil
}

// Exec runs a parameterized statement that returns no rows
func (m *Manager) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}

	ctx, cancel := m.withQueryTimeout(ctx)
	defer cancel()

	result := m.db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return 0, m.storageFailure("exec", query, result.Error)
	}
	return result.RowsAffected, nil
}

// LastInsertID returns the rowid of the most recent successful INSERT on the connection
func (m *Manager) LastInsertID(ctx context.Context) (int64, error) {
	rows, err := m.ExecuteQuery(ctx, "SELECT last_insert_rowid()")
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, fmt.Errorf("%w: last_insert_rowid returned no row", ErrStorage)
	}
	id, ok := rows[0][0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected rowid type %T", ErrStorage, rows[0][0])
	}
	return id, nil
}

func (m *Manager) storageFailure(op, query string, err error) error {
	wrapped := wrapStorage(op, err)
	m.log.Error("statement failed", "op", op, "query", strings.Join(strings.Fields(query), " "), "error", err)
	return wrapped
}

// scanRows reads every row into Row values, turning []byte into string
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, Row(values))
	}
	return result, rows.Err()
}

// ============================================================================
// TRANSACTIONS AND SAVEPOINTS
// ============================================================================

// Begin opens the session transaction
func (m *Manager) Begin(ctx context.Context) error {
	m.mu.Lock()
	active := m.inTx
	m.mu.Unlock()
	if active {
		return fmt.Errorf("transaction already active")
	}

	if _, err := m.Exec(ctx, "BEGIN"); err != nil {
		return err
	}

	m.mu.Lock()
	m.inTx = true
	m.mu.Unlock()
	return nil
}

// Commit commits the session transaction, releasing any open savepoints with it
func (m *Manager) Commit(ctx context.Context) error {
	m.mu.Lock()
	active := m.inTx
	m.mu.Unlock()
	if !active {
		return nil
	}

	if _, err := m.Exec(ctx, "COMMIT"); err != nil {
		return err
	}

	m.mu.Lock()
	m.inTx = false
	m.savepoints = nil
	m.mu.Unlock()

	m.log.Debug("changes committed")
	return nil
}

// Rollback discards the session transaction
func (m *Manager) Rollback(ctx context.Context) error {
	m.mu.Lock()
	active := m.inTx
	m.mu.Unlock()
	if !active {
		return nil
	}

	if _, err := m.Exec(ctx, "ROLLBACK"); err != nil {
		return err
	}

	m.mu.Lock()
	m.inTx = false
	m.savepoints = nil
	m.mu.Unlock()

	m.runRollbackHooks()
	m.log.Info("transaction rolled back")
	return nil
}

// InTransaction reports whether the session transaction is open
func (m *Manager) InTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inTx
}

// SavepointDepth returns the number of open savepoints
func (m *Manager) SavepointDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.savepoints)
}

// OnRollback registers a hook that runs after a transaction or savepoint rollback
func (m *Manager) OnRollback(hook func()) {
	if hook == nil {
		return
	}
	m.mu.Lock()
	m.rollbackHooks = append(m.rollbackHooks, hook)
	m.mu.Unlock()
}

func (m *Manager) runRollbackHooks() {
	m.mu.Lock()
	hooks := append([]func(){}, m.rollbackHooks...)
	m.mu.Unlock()
	for _, hook := range hooks {
		hook()
	}
}

// StartSavepoint opens a named savepoint
func (m *Manager) StartSavepoint(ctx context.Context, name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}

	if _, err := m.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}

	m.mu.Lock()
	m.savepoints = append(m.savepoints, name)
	m.mu.Unlock()
	return nil
}

// ReleaseSavepoint keeps everything done since the savepoint. Savepoints
// opened after it are released too.
func (m *Manager) ReleaseSavepoint(ctx context.Context, name string) error {
	idx := m.savepointIndex(name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNoSavepoint, name)
	}

	if _, err := m.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return err
	}

	m.mu.Lock()
	m.savepoints = m.savepoints[:idx]
	m.mu.Unlock()
	return nil
}

// RollbackSavepoint undoes everything done since the savepoint. The savepoint
// itself stays open and still has to be released.
func (m *Manager) RollbackSavepoint(ctx context.Context, name string) error {
	idx := m.savepointIndex(name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNoSavepoint, name)
	}

	if _, err := m.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return err
	}

	m.mu.Lock()
	m.savepoints = m.savepoints[:idx+1]
	m.mu.Unlock()

	m.runRollbackHooks()
	m.log.Debug("rolled back to savepoint", "savepoint", name)
	return nil
}

// WithSavepoint runs fn inside a fresh savepoint. On error or panic the
// store is put back exactly as it was before fn started.
func (m *Manager) WithSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	name := fmt.Sprintf("%s_%d", savepointPrefix, m.SavepointDepth()+1)

	if err := m.StartSavepoint(ctx, name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = m.abandonSavepoint(context.WithoutCancel(ctx), name)
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := m.abandonSavepoint(context.WithoutCancel(ctx), name); rbErr != nil {
			return fmt.Errorf("savepoint error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := m.ReleaseSavepoint(ctx, name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (m *Manager) abandonSavepoint(ctx context.Context, name string) error {
	if err := m.RollbackSavepoint(ctx, name); err != nil {
		return err
	}
	return m.ReleaseSavepoint(ctx, name)
}

func (m *Manager) savepointIndex(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.savepoints) - 1; i >= 0; i-- {
		if m.savepoints[i] == name {
			return i
		}
	}
	return -1
}

// ============================================================================
// CUSTOM FUNCTIONS AND COLLATIONS
// ============================================================================

// RegisterFunction exposes a Go function to SQL on the pinned connection.
// A negative arity skips the signature check. Registering a name twice is a no-op.
func (m *Manager) RegisterFunction(ctx context.Context, name string, arity int, fn interface{}) error {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("function %s: implementation must be a func, got %T", name, fn)
	}
	if arity >= 0 && !fnType.IsVariadic() && fnType.NumIn() != arity {
		return fmt.Errorf("function %s: declared arity %d, implementation takes %d", name, arity, fnType.NumIn())
	}
	return m.registerFunc(ctx, name, fn, false)
}

func (m *Manager) registerFunc(ctx context.Context, name string, fn interface{}, pure bool) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid function name %q", name)
	}

	m.mu.Lock()
	_, exists := m.functions[name]
	m.mu.Unlock()
	if exists {
		return nil
	}

	err := m.conn.Raw(func(driverConn interface{}) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return sc.RegisterFunc(name, fn, pure)
	})
	if err != nil {
		m.log.Error("failed to register function", "function", name, "error", err)
		return fmt.Errorf("failed to register function %s: %w", name, err)
	}

	m.mu.Lock()
	m.functions[name] = struct{}{}
	m.mu.Unlock()

	m.log.Debug("custom function registered", "function", name)
	return nil
}

// RegisterCollation installs a comparator usable in COLLATE clauses.
// A collation is installed once per connection; later calls are no-ops.
func (m *Manager) RegisterCollation(ctx context.Context, name string, cmp func(a, b string) int) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid collation name %q", name)
	}
	if cmp == nil {
		return fmt.Errorf("collation %s: comparator cannot be nil", name)
	}

	m.mu.Lock()
	_, exists := m.collations[name]
	m.mu.Unlock()
	if exists {
		return nil
	}

	err := m.conn.Raw(func(driverConn interface{}) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return sc.RegisterCollation(name, cmp)
	})
	if err != nil {
		m.log.Error("failed to register collation", "collation", name, "error", err)
		return fmt.Errorf("failed to register collation %s: %w", name, err)
	}

	m.mu.Lock()
	m.collations[name] = struct{}{}
	m.mu.Unlock()
	return nil
}

// HasFunction reports whether a function was registered on this connection
func (m *Manager) HasFunction(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.functions[name]
	return ok
}

func (m *Manager) registerBuiltins(ctx context.Context) error {
	if err := m.RegisterCollation(ctx, CaseInsensitiveCollation, CompareFold); err != nil {
		return err
	}
	return m.registerFunc(ctx, CaseFoldFunction, foldValue, true)
}

// CompareFold orders strings ignoring case, Unicode aware
func CompareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// foldValue backs the casefold SQL function
func foldValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return strings.ToLower(t)
	case []byte:
		// go-sqlite3 passes SQL NULL as a nil slice
		if t == nil {
			return nil
		}
		return strings.ToLower(string(t))
	default:
		return strings.ToLower(fmt.Sprint(t))
	}
}

// ============================================================================
// INTROSPECTION
// ============================================================================

// Tables lists the user tables, sorted by name
func (m *Manager) Tables(ctx context.Context) ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	tables, err := m.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, wrapStorage("tables", err)
	}
	sort.Strings(tables)
	return tables, nil
}

// Columns lists a table's columns in declaration order
func (m *Manager) Columns(ctx context.Context, table string) ([]string, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if !m.db.WithContext(ctx).Migrator().HasTable(table) {
		return nil, fmt.Errorf("%w: table %s does not exist", ErrStorage, table)
	}

	// table_info rows: cid, name, type, notnull, dflt_value, pk
	rows, err := m.ExecuteQuery(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 1 {
			if name, ok := row[1].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// ForeignKeysEnabled reports the connection's foreign_keys pragma
func (m *Manager) ForeignKeysEnabled(ctx context.Context) (bool, error) {
	rows, err := m.ExecuteQuery(ctx, "PRAGMA foreign_keys")
	if err != nil {
		return false, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return false, nil
	}
	enabled, _ := rows[0][0].(int64)
	return enabled == 1, nil
}

func newGormLogger(log hclog.Logger, cfg LoggingConfig) logger.Interface {
	writer := log.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})
	return logger.New(writer, logger.Config{
		SlowThreshold:             cfg.SlowQueryThreshold,
		LogLevel:                  getLogLevel(cfg.Level),
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      !cfg.LogQueryParameters,
		Colorful:                  false,
	})
}

func getLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error // Default to error
	}
}
