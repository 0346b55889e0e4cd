// Package kinodb keeps movies, actors and their casts in SQLite and
// exposes the interactive catalog operations built on top of them.
package kinodb

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/ammar0144/kinodb/pkg/config"
	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/models"
	"github.com/ammar0144/kinodb/pkg/redis"
	"github.com/ammar0144/kinodb/pkg/repository"
	"github.com/ammar0144/kinodb/pkg/service"
)

// Config represents the application configuration
type Config = config.Config

// DatabaseConfig represents the store configuration
type DatabaseConfig = db.Config

// RedisConfig represents the search cache configuration
type RedisConfig = redis.Config

// Catalog exposes the movie, actor and genre operations
type Catalog = service.Catalog

// CatalogOptions configures a Catalog
type CatalogOptions = service.Options

// Repository provides the generic record operations
type Repository[T any] interface {
	repository.Repository[T]
}

// LoadConfig reads configuration from file, .env and environment
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// NewManager opens the store on a single pinned connection
func NewManager(ctx context.Context, cfg *DatabaseConfig, log hclog.Logger) (*db.Manager, error) {
	return db.NewManager(ctx, cfg, log)
}

// NewRedisManager creates the optional search cache
func NewRedisManager(cfg *RedisConfig, log hclog.Logger) (*redis.Manager, error) {
	return redis.NewManager(cfg, log)
}

// NewCatalog wires the interactive operations around manager
func NewCatalog(manager *db.Manager, opts CatalogOptions) *Catalog {
	return service.New(manager, opts)
}

// NewMovieRepository returns a repository over the movies table.
// If cache is nil, operates in database-only mode.
func NewMovieRepository(manager *db.Manager, cache *redis.Manager) Repository[models.Movie] {
	return repository.New(manager, models.Movies, cache)
}

// NewActorRepository returns a repository over the actors table
func NewActorRepository(manager *db.Manager, cache *redis.Manager) Repository[models.Actor] {
	return repository.New(manager, models.Actors, cache)
}
