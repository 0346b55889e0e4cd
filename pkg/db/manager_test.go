package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ctx := context.Background()

	m, err := NewManager(ctx, DefaultConfig(MemoryPath), hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.InitializeSchema(ctx))
	return m
}

func countRows(t *testing.T, m *Manager, table string) int64 {
	t.Helper()
	rows, err := m.ExecuteQuery(context.Background(), "SELECT COUNT(*) FROM "+table)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0][0].(int64)
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	_, err := NewManager(context.Background(), nil, nil)
	require.Error(t, err)

	_, err = NewManager(context.Background(), &Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestInitializeSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	tables, err := m.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"actors", "movie_cast", "movies"}, tables)

	columns := map[string][]string{}
	for _, table := range tables {
		cols, err := m.Columns(ctx, table)
		require.NoError(t, err)
		columns[table] = cols
	}
	assert.Equal(t, []string{"id", "title", "release_year", "genre"}, columns["movies"])
	assert.Equal(t, []string{"id", "name", "birth_year"}, columns["actors"])
	assert.Equal(t, []string{"movie_id", "actor_id"}, columns["movie_cast"])

	require.NoError(t, m.InitializeSchema(ctx))

	again, err := m.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, tables, again)
	for _, table := range again {
		cols, err := m.Columns(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, columns[table], cols)
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	m := newTestManager(t)

	enabled, err := m.ForeignKeysEnabled(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestCascadeDeleteRemovesLinks(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Exec(ctx, "INSERT INTO movies (title, release_year, genre) VALUES (?, ?, ?), (?, ?, ?)",
		"Inception", 2010, "Sci-Fi", "Titanic", 1997, "Drama")
	require.NoError(t, err)
	_, err = m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Leonardo DiCaprio", 1974)
	require.NoError(t, err)
	_, err = m.Exec(ctx, "INSERT INTO movie_cast (movie_id, actor_id) VALUES (1, 1), (2, 1)")
	require.NoError(t, err)

	affected, err := m.Exec(ctx, "DELETE FROM movies WHERE id = ?", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rows, err := m.ExecuteQuery(ctx, "SELECT movie_id, actor_id FROM movie_cast")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{int64(2), int64(1)}, rows[0])
	assert.Equal(t, int64(1), countRows(t, m, ActorsTable))
}

func TestConstraintViolationIsDistinguishable(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Exec(context.Background(), "INSERT INTO movie_cast (movie_id, actor_id) VALUES (?, ?)", 42, 7)
	require.Error(t, err)
	assert.True(t, IsStorage(err))
	assert.True(t, IsConstraint(err))
	assert.False(t, IsConnection(err))
}

func TestSyntaxErrorIsStorageButNotConstraint(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ExecuteQuery(context.Background(), "SELECT nope FROM movies")
	require.Error(t, err)
	assert.True(t, IsStorage(err))
	assert.False(t, IsConstraint(err))
}

func TestExecuteQueryNormalizesText(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Exec(ctx, "INSERT INTO movies (title, release_year) VALUES (?, ?)", "Solaris", 1972)
	require.NoError(t, err)

	id, err := m.LastInsertID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	rows, err := m.ExecuteQuery(ctx, "SELECT title, release_year, genre FROM movies WHERE id = ?", id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{"Solaris", int64(1972), nil}, rows[0])
}

func TestWithSavepointRollsBackOnLinkFailure(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	err := m.WithSavepoint(ctx, func(ctx context.Context) error {
		if _, err := m.Exec(ctx, "INSERT INTO movies (title, release_year) VALUES (?, ?)", "Inception", 2010); err != nil {
			return err
		}
		movieID, err := m.LastInsertID(ctx)
		if err != nil {
			return err
		}
		_, err = m.Exec(ctx, "INSERT INTO movie_cast (movie_id, actor_id) VALUES (?, ?)", movieID, 999)
		return err
	})
	require.Error(t, err)
	assert.True(t, IsConstraint(err))

	assert.Equal(t, int64(0), countRows(t, m, MoviesTable))
	assert.Equal(t, 0, m.SavepointDepth())
}

func TestWithSavepointReleasesOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	require.NoError(t, m.Begin(ctx))

	err := m.WithSavepoint(ctx, func(ctx context.Context) error {
		assert.Equal(t, 1, m.SavepointDepth())
		_, err := m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Anna Karina", 1940)
		if err != nil {
			return err
		}
		return m.WithSavepoint(ctx, func(ctx context.Context) error {
			assert.Equal(t, 2, m.SavepointDepth())
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 0, m.SavepointDepth())

	require.NoError(t, m.Commit(ctx))
	assert.Equal(t, int64(1), countRows(t, m, ActorsTable))
}

func TestNestedSavepointRollbackKeepsOuterWork(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sentinel := errors.New("inner failure")
	err := m.WithSavepoint(ctx, func(ctx context.Context) error {
		if _, err := m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Outer", 1950); err != nil {
			return err
		}
		innerErr := m.WithSavepoint(ctx, func(ctx context.Context) error {
			if _, err := m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Inner", 1960); err != nil {
				return err
			}
			return sentinel
		})
		assert.ErrorIs(t, innerErr, sentinel)
		return nil
	})
	require.NoError(t, err)

	rows, err := m.ExecuteQuery(ctx, "SELECT name FROM actors")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Outer", rows[0][0])
}

func TestWithSavepointRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = m.WithSavepoint(ctx, func(ctx context.Context) error {
			_, _ = m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Ghost", 1900)
			panic("boom")
		})
	})

	assert.Equal(t, int64(0), countRows(t, m, ActorsTable))
	assert.Equal(t, 0, m.SavepointDepth())
}

func TestSavepointPrimitives(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.Error(t, m.StartSavepoint(ctx, "bad name;"))
	assert.ErrorIs(t, m.ReleaseSavepoint(ctx, "missing"), ErrNoSavepoint)
	assert.ErrorIs(t, m.RollbackSavepoint(ctx, "missing"), ErrNoSavepoint)

	require.NoError(t, m.StartSavepoint(ctx, "batch"))
	_, err := m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Temp", 1970)
	require.NoError(t, err)

	require.NoError(t, m.RollbackSavepoint(ctx, "batch"))
	assert.Equal(t, 1, m.SavepointDepth())
	require.NoError(t, m.ReleaseSavepoint(ctx, "batch"))
	assert.Equal(t, 0, m.SavepointDepth())

	assert.Equal(t, int64(0), countRows(t, m, ActorsTable))
}

func TestRollbackHooksRun(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	calls := 0
	m.OnRollback(func() { calls++ })

	_ = m.WithSavepoint(ctx, func(ctx context.Context) error {
		return errors.New("discard")
	})
	assert.Equal(t, 1, calls)

	require.NoError(t, m.Begin(ctx))
	require.NoError(t, m.Rollback(ctx))
	assert.Equal(t, 2, calls)
	assert.False(t, m.InTransaction())
}

func TestRegisterFunctionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	double := func(v int64) int64 { return v * 2 }
	require.NoError(t, m.RegisterFunction(ctx, "double_it", 1, double))
	require.NoError(t, m.RegisterFunction(ctx, "double_it", 1, double))
	assert.True(t, m.HasFunction("double_it"))

	rows, err := m.ExecuteQuery(ctx, "SELECT double_it(?)", 21)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rows[0][0])
}

func TestRegisterFunctionChecksSignature(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	err := m.RegisterFunction(ctx, "pair", 2, func(v int64) int64 { return v })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared arity 2")

	require.Error(t, m.RegisterFunction(ctx, "not_a_func", 0, 42))
	require.Error(t, m.RegisterFunction(ctx, "drop table", 0, func() int64 { return 0 }))
	assert.False(t, m.HasFunction("pair"))
}

func TestCaseFoldAndCollation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	rows, err := m.ExecuteQuery(ctx, "SELECT casefold(?), casefold(NULL)", "АННА Karina")
	require.NoError(t, err)
	assert.Equal(t, Row{"анна karina", nil}, rows[0])

	require.NoError(t, m.RegisterCollation(ctx, CaseInsensitiveCollation, CompareFold))

	_, err = m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?), (?, ?), (?, ?)",
		"bob", 1950, "Alice", 1960, "Carol", 1970)
	require.NoError(t, err)

	rows, err = m.ExecuteQuery(ctx, "SELECT name FROM actors ORDER BY name COLLATE CI")
	require.NoError(t, err)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row[0].(string))
	}
	assert.Equal(t, []string{"Alice", "bob", "Carol"}, names)
}

func TestClosedManagerRejectsStatements(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.ExecuteQuery(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.RegisterFunction(ctx, "late", 0, func() int64 { return 1 }), ErrClosed)
}

func TestRunCommitsOrRollsBack(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "kino.db"))
	log := hclog.NewNullLogger()

	err := Run(ctx, cfg, log, func(ctx context.Context, m *Manager) error {
		_, err := m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Kept", 1980)
		return err
	})
	require.NoError(t, err)

	failure := errors.New("abort session")
	err = Run(ctx, cfg, log, func(ctx context.Context, m *Manager) error {
		_, err := m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Dropped", 1981)
		require.NoError(t, err)
		return failure
	})
	assert.ErrorIs(t, err, failure)

	assert.Panics(t, func() {
		_ = Run(ctx, cfg, log, func(ctx context.Context, m *Manager) error {
			_, _ = m.Exec(ctx, "INSERT INTO actors (name, birth_year) VALUES (?, ?)", "Panicked", 1982)
			panic("crash")
		})
	})

	err = Run(ctx, cfg, log, func(ctx context.Context, m *Manager) error {
		rows, err := m.ExecuteQuery(ctx, "SELECT name FROM actors")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Kept", rows[0][0])
		return nil
	})
	require.NoError(t, err)
}
