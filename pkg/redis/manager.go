package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const cacheKeySeparator = ":"

// Manager manages the Redis connection and cache operations
type Manager struct {
	config  *Config
	client  redis.UniversalClient
	metrics *Metrics
	log     hclog.Logger
}

// NewManager creates a new Redis cache manager. A disabled config yields a
// manager whose operations return ErrCacheDisabled.
func NewManager(config *Config, log hclog.Logger) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	if log == nil {
		log = hclog.NewNullLogger()
	}

	manager := &Manager{
		config:  config,
		metrics: NewMetrics(),
		log:     log.Named("cache"),
	}

	if config.Enabled {
		manager.client = redis.NewClient(&redis.Options{
			Addr:            config.GetAddr(),
			Password:        config.Password,
			DB:              config.Database,
			PoolSize:        config.PoolSize,
			MinIdleConns:    config.MinIdleConns,
			PoolTimeout:     config.PoolTimeout,
			ConnMaxIdleTime: config.IdleTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
			DialTimeout:     config.DialTimeout,
		})
	}

	return manager, nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Enabled reports whether the cache is switched on
func (m *Manager) Enabled() bool {
	return m != nil && m.config.Enabled && m.client != nil
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
// Returns nil if cache is disabled (not an error condition)
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	if m.client == nil {
		return ErrClientNotInitialized
	}

	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return nil
}

// checkClient validates that cache is enabled and client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// Key joins parts under the configured prefix, e.g. "kinodb:<store>:actors:search:<hash>"
func (m *Manager) Key(parts ...string) string {
	return strings.Join(append([]string{m.config.KeyPrefix}, parts...), cacheKeySeparator)
}

// Get retrieves a raw value from cache
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := m.client.Get(ctx, key).Bytes()
	m.metrics.lookup(time.Since(start))

	if errors.Is(err, redis.Nil) {
		m.metrics.miss()
		if m.config.Logging.LogCacheMisses {
			m.log.Debug("cache miss", "key", key)
		}
		return nil, ErrKeyNotFound
	}

	if err != nil {
		m.metrics.fail()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	m.metrics.hit()
	if m.config.Logging.LogCacheHits {
		m.log.Debug("cache hit", "key", key)
	}
	return data, nil
}

// Set stores a raw value with the default TTL
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	if err := m.client.Set(ctx, key, value, m.config.DefaultTTL).Err(); err != nil {
		m.metrics.fail()
		return fmt.Errorf("redis set error: %w", err)
	}
	m.metrics.stored()
	return nil
}

// SetValue encodes value with msgpack and stores it
func (m *Manager) SetValue(ctx context.Context, key string, value interface{}) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	return m.Set(ctx, key, data)
}

// GetValue loads a msgpack value into target
func (m *Manager) GetValue(ctx context.Context, key string, target interface{}) error {
	data, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	// Loose decoding keeps integers as int64, matching what the store returns.
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(target); err != nil {
		m.metrics.fail()
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return nil
}

// InvalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// SCAN is non-blocking, unlike KEYS which blocks the Redis server
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	var cursor uint64
	const scanBatchSize = 100

	deleted := 0
	for {
		batch, next, err := m.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}

		if len(batch) > 0 {
			if err := m.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
			deleted += len(batch)
			m.metrics.invalidated(len(batch))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if m.config.Logging.LogInvalidations && deleted > 0 {
		m.log.Debug("cache invalidated", "pattern", pattern, "keys", deleted)
	}
	return nil
}

// InvalidateTable drops the cached entries of one table of one store
func (m *Manager) InvalidateTable(ctx context.Context, store, table string) error {
	return m.InvalidatePattern(ctx, m.Key(store, table, "*"))
}

// InvalidateStore drops every cached entry of one store
func (m *Manager) InvalidateStore(ctx context.Context, store string) error {
	return m.InvalidatePattern(ctx, m.Key(store, "*"))
}

// Flush drops every key under the configured prefix
func (m *Manager) Flush(ctx context.Context) error {
	if err := m.InvalidatePattern(ctx, m.Key("*")); err != nil {
		return err
	}
	m.metrics.flush()
	return nil
}

// Stats returns the session's cache counters; zero for a nil manager
func (m *Manager) Stats() Stats {
	if m == nil || m.metrics == nil {
		return Stats{}
	}
	return m.metrics.Stats()
}

// ResetStats zeroes the cache counters
func (m *Manager) ResetStats() {
	if m != nil && m.metrics != nil {
		m.metrics.Reset()
	}
}
