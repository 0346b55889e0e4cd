package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/models"
	"github.com/ammar0144/kinodb/pkg/prompt"
)

type fixture struct {
	manager *db.Manager
	catalog *Catalog
	prompts *prompt.Scripted
	out     *bytes.Buffer
}

func newFixture(t *testing.T, answers ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	m, err := db.NewManager(ctx, db.DefaultConfig(db.MemoryPath), hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.InitializeSchema(ctx))

	p := prompt.NewScripted(answers...)
	out := &bytes.Buffer{}
	c := New(m, Options{
		Prompter: p,
		Out:      out,
		Now:      func() time.Time { return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC) },
	})
	return &fixture{manager: m, catalog: c, prompts: p, out: out}
}

// answer replaces the scripted answers for the next operation
func (f *fixture) answer(answers ...string) {
	f.prompts = prompt.NewScripted(answers...)
	f.catalog.prompter = f.prompts
	f.catalog.validator.Prompter = f.prompts
	f.catalog.browser.Prompter = f.prompts
	f.catalog.linker.prompter = f.prompts
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	rows, err := f.manager.ExecuteQuery(context.Background(), "SELECT COUNT(*) FROM "+table)
	require.NoError(t, err)
	return rows[0][0].(int64)
}

func (f *fixture) seedMovie(t *testing.T, title string, year int, genre string) int64 {
	t.Helper()
	id, err := f.catalog.movies.InsertOne(context.Background(), models.Movie{Title: title, ReleaseYear: year, Genre: models.StringPtr(genre)})
	require.NoError(t, err)
	return id
}

func (f *fixture) seedActor(t *testing.T, name string, year int) int64 {
	t.Helper()
	id, err := f.catalog.actors.InsertOne(context.Background(), models.Actor{Name: name, BirthYear: year})
	require.NoError(t, err)
	return id
}

func (f *fixture) seedCast(t *testing.T, movieID, actorID int64) {
	t.Helper()
	require.NoError(t, f.catalog.casts.Insert(context.Background(), []models.MovieCast{{MovieID: movieID, ActorID: actorID}}))
}

func TestInsertMovieDetectsExisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "2010", "Sci-Fi", "n")

	first, err := f.catalog.InsertMovie(ctx, "Inception")
	require.NoError(t, err)
	assert.Equal(t, StateDone, first.State)
	assert.True(t, first.Created)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, []State{
		StateCollectingPrimary, StateCreatingNew, StateReferenceOffer, StateDeclined, StateDone,
	}, first.Trail)

	f.answer("n")
	second, err := f.catalog.InsertMovie(ctx, "Inception")
	require.NoError(t, err)
	assert.Equal(t, StateDone, second.State)
	assert.False(t, second.Created)
	assert.Equal(t, int64(1), second.ID)
	assert.Contains(t, second.Trail, StateFoundExisting)
	assert.Contains(t, f.out.String(), "Movie 'Inception' already exists. Not adding a duplicate.")

	assert.Equal(t, int64(1), f.count(t, db.MoviesTable))

	rows, err := f.manager.ExecuteQuery(ctx, "SELECT title, release_year, genre FROM movies")
	require.NoError(t, err)
	assert.Equal(t, db.Row{"Inception", int64(2010), "Sci-Fi"}, rows[0])
}

func TestInsertActorLinksOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1974")
	movieID := f.seedMovie(t, "Inception", 2010, "Sci-Fi")

	first, err := f.catalog.InsertActor(ctx, "Leonardo DiCaprio", "Inception")
	require.NoError(t, err)
	assert.Equal(t, StateDone, first.State)
	assert.True(t, first.Created)
	assert.True(t, first.Linked)
	assert.Equal(t, movieID, first.CounterpartID)
	assert.Equal(t, []State{
		StateCollectingPrimary, StateCreatingNew, StateCounterpartSearch,
		StateCounterpartResolved, StateLinking, StateDone,
	}, first.Trail)

	rows, err := f.manager.ExecuteQuery(ctx, "SELECT movie_id, actor_id FROM movie_cast")
	require.NoError(t, err)
	assert.Equal(t, []db.Row{{movieID, first.ID}}, rows)

	f.answer()
	second, err := f.catalog.InsertActor(ctx, "Leonardo DiCaprio", "Inception")
	require.NoError(t, err)
	assert.Equal(t, StateDone, second.State)
	assert.False(t, second.Linked)
	assert.True(t, second.AlreadyLinked)
	assert.Contains(t, f.out.String(), "already linked")

	assert.Equal(t, int64(1), f.count(t, db.MovieCastTable))
	assert.Equal(t, int64(1), f.count(t, db.ActorsTable))
}

func TestLinkFailureRollsBackNewMovie(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1979", "", "y", "Solonitsyn")
	f.seedActor(t, "Anatoly Solonitsyn", 1934)

	_, err := f.manager.Exec(ctx, `CREATE TRIGGER cast_locked BEFORE INSERT ON movie_cast
BEGIN SELECT RAISE(ABORT, 'cast is locked'); END`)
	require.NoError(t, err)

	outcome, err := f.catalog.InsertMovie(ctx, "Stalker")
	require.Error(t, err)
	assert.True(t, db.IsStorage(err))
	assert.Equal(t, StateAborted, outcome.State)
	assert.Contains(t, f.out.String(), "Nothing was changed.")

	assert.Zero(t, f.count(t, db.MoviesTable))
	assert.Zero(t, f.count(t, db.MovieCastTable))
	assert.Equal(t, int64(1), f.count(t, db.ActorsTable))
	assert.Zero(t, f.manager.SavepointDepth())
}

func TestCounterpartCreatedWhenMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1972", "Drama", "y", "Donatas Banionis", "yes", "1924")

	outcome, err := f.catalog.InsertMovie(ctx, "Solaris")
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	assert.True(t, outcome.Linked)
	assert.Equal(t, "Donatas Banionis", outcome.CounterpartKey)

	actorID, found, err := f.catalog.actors.GetID(ctx, "Donatas Banionis")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, outcome.CounterpartID, actorID)
	assert.Equal(t, int64(1), f.count(t, db.MovieCastTable))
}

func TestCounterpartDeclined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1972", "", "y", "Banionis", "n")

	outcome, err := f.catalog.InsertMovie(ctx, "Solaris")
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	assert.Contains(t, outcome.Trail, StateDeclined)
	assert.False(t, outcome.Linked)
	assert.Contains(t, f.out.String(), "Actor was not added. Movie remains unlinked.")

	assert.Equal(t, int64(1), f.count(t, db.MoviesTable))
	assert.Zero(t, f.count(t, db.ActorsTable))
}

func TestCounterpartChosenFromSeveralMatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "y", "anna", "2")
	f.seedMovie(t, "Rome Open City", 1945, "Drama")
	f.seedActor(t, "Anna Karina", 1940)
	magnani := f.seedActor(t, "Anna Magnani", 1908)

	outcome, err := f.catalog.InsertMovie(ctx, "Rome Open City")
	require.NoError(t, err)
	assert.True(t, outcome.Linked)
	assert.Equal(t, "Anna Magnani", outcome.CounterpartKey)
	assert.Equal(t, magnani, outcome.CounterpartID)
}

func TestDuplicateGuardOffersReuse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "y", "n")
	alien := f.seedMovie(t, "Alien", 1979, "Horror")

	outcome, err := f.catalog.InsertMovie(ctx, "alien")
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	assert.False(t, outcome.Created)
	assert.Equal(t, alien, outcome.ID)
	assert.Equal(t, "Alien", outcome.Key)
	assert.Equal(t, int64(1), f.count(t, db.MoviesTable))
}

func TestInvalidGenreIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1982", "S", "F", "X", "n")

	outcome, err := f.catalog.InsertMovie(ctx, "Blade Runner")
	require.NoError(t, err)
	assert.True(t, outcome.Created)
	assert.Contains(t, f.out.String(), "no genre is added")

	rows, err := f.manager.ExecuteQuery(ctx, "SELECT genre FROM movies")
	require.NoError(t, err)
	assert.Nil(t, rows[0][0])
}

func TestInsertAbortsOnExit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "q")

	outcome, err := f.catalog.InsertMovie(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, StateAborted, outcome.State)
	assert.Zero(t, f.count(t, db.MoviesTable))

	f.answer("1700", "1800", "1850")
	outcome, err = f.catalog.InsertActor(ctx, "Max von Sydow", "")
	require.NoError(t, err)
	assert.Equal(t, StateAborted, outcome.State)
	assert.Equal(t, []State{StateCollectingPrimary, StateCreatingNew, StateAborted}, outcome.Trail)
	assert.Zero(t, f.count(t, db.ActorsTable))
}

func TestSearchMovieInteractive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "INCEP", "1")
	f.seedMovie(t, "Inception", 2010, "Sci-Fi")

	title, err := f.catalog.SearchMovieInteractive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Inception", title)
	assert.Contains(t, f.out.String(), "Inception (2010)")

	f.answer("Matrix", "3")
	title, err = f.catalog.SearchMovieInteractive(ctx)
	require.NoError(t, err)
	assert.Empty(t, title)
	assert.Contains(t, f.out.String(), "No movie found with that search.")

	f.answer("Matrix", "7", "1", "Incep", "1")
	title, err = f.catalog.SearchMovieInteractive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Inception", title)
	assert.Contains(t, f.out.String(), "Invalid option. Please select 1, 2, or 3.")
}

func TestMoviesWithCast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "q")
	inception := f.seedMovie(t, "Inception", 2010, "Sci-Fi")
	f.seedMovie(t, "Mirror", 1975, "")
	f.seedCast(t, inception, f.seedActor(t, "Leonardo DiCaprio", 1974))

	movies, err := f.catalog.MoviesWithCast(ctx)
	require.NoError(t, err)
	assert.Equal(t, []MovieWithCast{
		{Title: "Inception", Actors: "Leonardo DiCaprio"},
		{Title: "Mirror", Actors: "No actors listed"},
	}, movies)

	require.NoError(t, f.catalog.ShowAllMoviesPaginated(ctx))
	assert.Contains(t, f.out.String(), `1. Movie: "Inception"`)
	assert.Contains(t, f.out.String(), "Actors: No actors listed")
}

func TestGenres(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedMovie(t, "Inception", 2010, "Sci-Fi")
	f.seedMovie(t, "Solaris", 1972, "drama")
	f.seedMovie(t, "Mirror", 1975, "Drama")
	f.seedMovie(t, "Stalker", 1979, "Drama")
	f.seedMovie(t, "Untitled", 2001, "")

	genres, err := f.catalog.Genres(ctx)
	require.NoError(t, err)
	require.Len(t, genres, 3)
	assert.Equal(t, "Sci-Fi", genres[2])

	found, err := f.catalog.FindGenres(ctx, "DRA")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Drama", "drama"}, found)

	assert.Equal(t, []string{"Drama", "drama", "Sci-Fi"}, genres)

	counts, err := f.catalog.MovieCountByGenre(ctx)
	require.NoError(t, err)
	assert.Equal(t, []GenreCount{
		{Genre: "Drama", Movies: 2},
		{Genre: "drama", Movies: 1},
		{Genre: "Sci-Fi", Movies: 1},
	}, counts, "same genres as the genre list, empty genre left out")

	require.NoError(t, f.catalog.ShowMovieCountByGenre(ctx))
	assert.Contains(t, f.out.String(), "2 movies")
	assert.Contains(t, f.out.String(), "1 movie")

	f.answer("sci", "q")
	genre, err := f.catalog.ShowGenres(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, genre, "leaving the pager selects nothing")

	f.answer("3")
	genre, err = f.catalog.ShowGenres(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "Sci-Fi", genre)
}

func TestAverageBirthYearInGenre(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "sci", "1")
	inception := f.seedMovie(t, "Inception", 2010, "Sci-Fi")
	f.seedMovie(t, "Mirror", 1975, "Drama")
	f.seedCast(t, inception, f.seedActor(t, "Leonardo DiCaprio", 1974))
	f.seedCast(t, inception, f.seedActor(t, "Elliot Page", 1986))

	avg, found, err := f.catalog.AverageBirthYear(ctx, "Sci-Fi")
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 1980.0, avg, 0.001)

	_, found, err = f.catalog.AverageBirthYear(ctx, "Drama")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, f.catalog.AverageBirthYearInGenre(ctx))
	assert.Contains(t, f.out.String(), "Average birth year of actors in movies of genre 'Sci-Fi' is 1980")
}

func TestMoviesWithAge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedMovie(t, "Inception", 2010, "Sci-Fi")
	f.seedMovie(t, "Brand New", 2025, "")

	movies, err := f.catalog.MoviesWithAge(ctx)
	require.NoError(t, err)
	assert.Equal(t, []MovieAge{
		{Title: "Inception", ReleaseYear: 2010, Age: 16},
		{Title: "Brand New", ReleaseYear: 2025, Age: 1},
	}, movies)
	assert.True(t, f.manager.HasFunction(movieAgeFunction))

	// Registering again on the same connection is harmless
	_, err = f.catalog.MoviesWithAge(ctx)
	require.NoError(t, err)

	require.NoError(t, f.catalog.ShowMoviesWithAge(ctx))
	assert.Contains(t, f.out.String(), "16 years")
	assert.Contains(t, f.out.String(), "1 year")
}

func TestShowActorsAndMovies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "q")
	f.seedMovie(t, "Inception", 2010, "Sci-Fi")
	f.seedActor(t, "Leonardo DiCaprio", 1974)

	require.NoError(t, f.catalog.ShowActorsAndMovies(ctx))
	out := f.out.String()
	assert.Contains(t, out, "1. Actor: Leonardo DiCaprio (1974)")
	assert.Contains(t, out, "2. Film: Inception (2010)")
}
