package db

import (
	"context"
	"fmt"
)

// Table names of the persisted layout
const (
	MoviesTable    = "movies"
	ActorsTable    = "actors"
	MovieCastTable = "movie_cast"
)

// schemaStatements create the store. AUTOINCREMENT keeps surrogate keys from being reused.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS movies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		release_year INTEGER NOT NULL,
		genre TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS actors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		birth_year INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS movie_cast (
		movie_id INTEGER NOT NULL,
		actor_id INTEGER NOT NULL,
		PRIMARY KEY (movie_id, actor_id),
		FOREIGN KEY (movie_id) REFERENCES movies (id) ON DELETE CASCADE,
		FOREIGN KEY (actor_id) REFERENCES actors (id) ON DELETE CASCADE
	)`,
}

// InitializeSchema enables foreign keys and creates the tables if absent.
// Safe to call on every startup.
func (m *Manager) InitializeSchema(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	if _, err := m.Exec(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("%w: enabling foreign keys: %w", ErrSchema, err)
	}

	for _, stmt := range schemaStatements {
		if _, err := m.Exec(ctx, stmt); err != nil {
			m.log.Error("schema statement failed", "error", err)
			return fmt.Errorf("%w: %w", ErrSchema, err)
		}
	}

	m.log.Debug("schema initialized", "tables", []string{MoviesTable, ActorsTable, MovieCastTable})
	return nil
}
