package repository

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/ammar0144/kinodb/pkg/db"
)

// Repository defines the entity-agnostic record operations
type Repository[T any] interface {
	// Writes (invalidate cached searches for the table)
	Insert(ctx context.Context, records []T) error
	InsertOne(ctx context.Context, record T) (int64, error)

	// Lookups (not found is a false flag, never an error)
	GetID(ctx context.Context, identifier interface{}) (int64, bool, error)
	FindByKeyword(ctx context.Context, keyword string, columns []string, orderBy string) ([]db.Row, error)
	Exists(ctx context.Context, where map[string]interface{}) (bool, error)
	Count(ctx context.Context) (int64, error)

	// Metadata
	Model() ModelInfo

	// Cache Management
	InvalidateCache(ctx context.Context) error
}

// Executor is the statement surface of the schema manager.
// *db.Manager implements it.
type Executor interface {
	ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]db.Row, error)
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)
	LastInsertID(ctx context.Context) (int64, error)
	SavepointDepth() int
	StoreID() string
	Logger() hclog.Logger
}

var _ Executor = (*db.Manager)(nil)
