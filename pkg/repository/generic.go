package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/redis"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-hclog"
)

const cacheKeyHashLength = 12 // Balance between uniqueness and key length

// GenericRepository runs inserts and lookups for any model without per-entity code.
// Keyword searches are read through the cache when one is attached.
type GenericRepository[T any] struct {
	exec  Executor
	cache *redis.Manager
	model Model[T]
	info  ModelInfo
	log   hclog.Logger
}

var _ Repository[struct{}] = (*GenericRepository[struct{}])(nil)

// New creates a repository for model. cache may be nil.
func New[T any](exec Executor, model Model[T], cache *redis.Manager) *GenericRepository[T] {
	log := exec.Logger()
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &GenericRepository[T]{
		exec:  exec,
		cache: cache,
		model: model,
		info:  model.Info(),
		log:   log.Named("repository").With("table", model.Table),
	}
}

// Model returns the repository's model metadata
func (r *GenericRepository[T]) Model() ModelInfo {
	return r.info
}

// ============================================================================
// WRITE OPERATIONS
// ============================================================================

// Insert writes all records with one multi-row INSERT. An empty slice is a no-op.
func (r *GenericRepository[T]) Insert(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}

	if len(r.model.Columns) == 0 {
		return fmt.Errorf("%w: model %s has no columns", ErrShapeMismatch, r.info.Name)
	}

	query, expected := db.NewBuilder(r.info.Table).BuildInsert(r.info.Columns, len(records))

	args := make([]interface{}, 0, expected)
	for i, record := range records {
		values, err := r.columnValues(record)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		args = append(args, values...)
	}

	if len(args) != expected {
		return fmt.Errorf("%w: got %d values, statement expects %d", ErrShapeMismatch, len(args), expected)
	}

	if _, err := r.exec.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", r.info.Table, err)
	}

	r.invalidate(ctx)
	return nil
}

// InsertOne inserts a single record and returns its surrogate key
func (r *GenericRepository[T]) InsertOne(ctx context.Context, record T) (int64, error) {
	if err := r.Insert(ctx, []T{record}); err != nil {
		return 0, err
	}
	return r.exec.LastInsertID(ctx)
}

// columnValues reads a record in column order. A panicking accessor is reported as a shape mismatch.
func (r *GenericRepository[T]) columnValues(record T) (values []interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			values = nil
			err = fmt.Errorf("%w: %v", ErrShapeMismatch, p)
		}
	}()

	values = make([]interface{}, len(r.model.Columns))
	for i, col := range r.model.Columns {
		if col.Value == nil {
			return nil, fmt.Errorf("%w: column %s has no accessor", ErrShapeMismatch, col.Name)
		}
		values[i] = col.Value(record)
	}
	return values, nil
}

// ============================================================================
// READ OPERATIONS
// ============================================================================

// GetID looks up the surrogate key by exact match on the identifier column
func (r *GenericRepository[T]) GetID(ctx context.Context, identifier interface{}) (int64, bool, error) {
	return lookupID(ctx, r.exec, r.info, identifier)
}

// FindByKeyword returns the requested columns of rows whose first requested
// column contains keyword, ignoring case. An empty keyword matches every row.
// orderBy, when set, sorts case-insensitively.
func (r *GenericRepository[T]) FindByKeyword(ctx context.Context, keyword string, columns []string, orderBy string) ([]db.Row, error) {
	if len(columns) == 0 {
		columns = r.info.Columns
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: model %s has no columns to project", ErrUnknownColumn, r.info.Name)
	}
	for _, col := range columns {
		if !r.info.HasColumn(col) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, r.info.Table, col)
		}
	}
	if orderBy != "" && !r.info.HasColumn(orderBy) {
		return nil, fmt.Errorf("%w: cannot order %s by %s", ErrUnknownColumn, r.info.Table, orderBy)
	}

	cacheKey := ""
	if r.cacheable() {
		cacheKey = r.generateCacheKey("search", keyword, strings.Join(columns, ","), orderBy)
		var cached []db.Row
		if err := r.cache.GetValue(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		} else if !redis.IsKeyNotFound(err) {
			r.log.Warn("cache read failed", "error", err)
		}
	}

	builder := db.NewBuilder(r.info.Table).Select(columns...)
	if keyword != "" {
		folded := strings.ToLower(keyword)
		builder.Where(fmt.Sprintf("%s(%s)", db.CaseFoldFunction, columns[0]), db.Like, db.ContainsPattern(folded))
	}
	if orderBy != "" {
		builder.OrderByCollate(orderBy, db.CaseInsensitiveCollation, false)
	}

	query, args := builder.BuildSelect()
	rows, err := r.exec.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", r.info.Table, err)
	}

	if cacheKey != "" {
		// Best effort: a cache failure never fails the search.
		if err := r.cache.SetValue(ctx, cacheKey, rows); err != nil {
			r.log.Warn("cache write failed", "error", err)
		}
	}

	return rows, nil
}

// Exists reports whether a row matches every column/value pair in where
func (r *GenericRepository[T]) Exists(ctx context.Context, where map[string]interface{}) (bool, error) {
	if len(where) == 0 {
		return false, fmt.Errorf("%w: exists needs at least one condition", ErrUnknownColumn)
	}

	fields := make([]string, 0, len(where))
	for field := range where {
		if !r.info.HasColumn(field) {
			return false, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, r.info.Table, field)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	builder := db.NewBuilder(r.info.Table).Select("1").Limit(1)
	for _, field := range fields {
		builder.Where(field, db.Equal, where[field])
	}

	query, args := builder.BuildSelect()
	rows, err := r.exec.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", r.info.Table, err)
	}
	return len(rows) > 0, nil
}

// Count counts the table's rows
func (r *GenericRepository[T]) Count(ctx context.Context) (int64, error) {
	query, args := db.NewBuilder(r.info.Table).Select("COUNT(*)").BuildSelect()
	rows, err := r.exec.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.info.Table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	count, _ := rows[0][0].(int64)
	return count, nil
}

// GetNameByID returns the identifier value of the row with the given surrogate key
func GetNameByID(ctx context.Context, exec Executor, registry *Registry, modelName string, id int64) (string, bool, error) {
	info, err := registry.Lookup(modelName)
	if err != nil {
		return "", false, err
	}
	if !info.HasIdentifier() {
		return "", false, fmt.Errorf("%w: %s", ErrNoIdentifier, info.Name)
	}

	query, args := db.NewBuilder(info.Table).
		Select(info.IdentifierColumn).
		Where(info.PrimaryKey, db.Equal, id).
		Limit(1).
		BuildSelect()

	rows, err := exec.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up %s %d: %w", info.Name, id, err)
	}
	if len(rows) == 0 || rows[0][0] == nil {
		return "", false, nil // Not found, not an error
	}
	return fmt.Sprint(rows[0][0]), true, nil
}

func lookupID(ctx context.Context, exec Executor, info ModelInfo, identifier interface{}) (int64, bool, error) {
	if !info.HasIdentifier() {
		return 0, false, fmt.Errorf("%w: %s", ErrNoIdentifier, info.Name)
	}

	query, args := db.NewBuilder(info.Table).
		Select(info.PrimaryKey).
		Where(info.IdentifierColumn, db.Equal, identifier).
		OrderBy(info.PrimaryKey, false).
		Limit(1).
		BuildSelect()

	rows, err := exec.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s: %w", info.Name, err)
	}
	if len(rows) == 0 {
		return 0, false, nil // Not found, not an error
	}

	id, ok := rows[0][0].(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected %s.%s type %T", info.Table, info.PrimaryKey, rows[0][0])
	}
	return id, true, nil
}

// ============================================================================
// CACHE MANAGEMENT
// ============================================================================

// InvalidateCache drops every cached search of this table
func (r *GenericRepository[T]) InvalidateCache(ctx context.Context) error {
	if r.cache == nil || !r.cache.Enabled() {
		return nil
	}
	return r.cache.InvalidateTable(ctx, r.exec.StoreID(), r.info.Table)
}

// cacheable is false while a savepoint is open: its rows may still be rolled back.
func (r *GenericRepository[T]) cacheable() bool {
	return r.cache != nil && r.cache.Enabled() && r.exec.SavepointDepth() == 0
}

func (r *GenericRepository[T]) invalidate(ctx context.Context) {
	if err := r.InvalidateCache(ctx); err != nil {
		r.log.Warn("cache invalidation failed", "error", err)
	}
}

// generateCacheKey hashes the search parameters into a short, stable key
// scoped to the store and table
func (r *GenericRepository[T]) generateCacheKey(operation string, parts ...string) string {
	combined := strings.Join(parts, "\x1f")
	hashStr := fmt.Sprintf("%016x", xxhash.Sum64String(combined))
	return r.cache.Key(r.exec.StoreID(), r.info.Table, operation, hashStr[:cacheKeyHashLength])
}
