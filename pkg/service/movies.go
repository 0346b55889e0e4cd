package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/models"
	"github.com/ammar0144/kinodb/pkg/validation"
)

const movieAgeFunction = "movie_age"

// MovieWithCast is one movie and its comma separated actor names
type MovieWithCast struct {
	Title  string
	Actors string
}

// MovieAge is one movie with the years since its release
type MovieAge struct {
	Title       string
	ReleaseYear int
	Age         int
}

func (c *Catalog) movieHandler() *EntityHandler {
	return &EntityHandler{
		Name:       models.MovieModel,
		KeyPrompt:  "Please enter the movie title to add: ",
		Kind:       validation.KindTitle,
		LinkColumn: "movie_id",
		Bind:       func(link *models.MovieCast, id int64) { link.MovieID = id },
		Lookup: func(ctx context.Context, title string) (int64, bool, error) {
			return c.movies.GetID(ctx, title)
		},
		Search: func(ctx context.Context, keyword string) ([]string, error) {
			rows, err := c.movies.FindByKeyword(ctx, keyword, []string{"title"}, "title")
			if err != nil {
				return nil, err
			}
			return firstColumn(rows), nil
		},
		Create: c.createMovie,
		Guard:  c.guardMovie,
	}
}

// InsertMovie adds a movie, or finds the existing one, and offers to link an
// actor. An empty title is prompted for.
func (c *Catalog) InsertMovie(ctx context.Context, title string) (Outcome, error) {
	return c.linker.Run(ctx, Request{
		Side:        c.movieSide,
		Counterpart: c.actorSide,
		Key:         title,
	})
}

// createMovie asks for the release year and the optional genre, then stores the movie
func (c *Catalog) createMovie(ctx context.Context, title string) (int64, bool, error) {
	ok, year, err := c.validator.PromptYear("To add the movie to the database, please enter its release year: ", validation.YearRelease)
	if err != nil || !ok {
		return 0, false, err
	}

	genre, err := c.ask("Enter the movie genre (leave empty to skip): ")
	if err != nil {
		return 0, false, err
	}
	if genre != "" {
		valid, checked, err := c.validator.ValidateText(genre, validation.KindNameOrGenre)
		if err != nil {
			return 0, false, err
		}
		if valid {
			genre = checked
		} else {
			warning.Fprintf(c.out, "The genre %q does not meet the requirements, so no genre is added to the movie '%s'.\n", checked, title)
			genre = ""
		}
	}

	id, err := c.movies.InsertOne(ctx, models.Movie{Title: title, ReleaseYear: year, Genre: models.StringPtr(genre)})
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// guardMovie looks for titles that contain the new one, ignoring case, and
// offers to reuse one of them
func (c *Catalog) guardMovie(ctx context.Context, title string) (int64, string, bool, error) {
	similar, err := c.movieSide.Search(ctx, title)
	if err != nil || len(similar) == 0 {
		return 0, "", false, err
	}

	warning.Fprintf(c.out, "Movies similar to '%s' already exist: %s\n", title, strings.Join(similar, ", "))
	reuse, err := confirm(c.prompter, "Would you like to use an existing movie instead? [yes, y, 1]: ")
	if err != nil || !reuse {
		return 0, "", false, err
	}

	chosen := similar[0]
	if len(similar) > 1 {
		result, err := c.browser.Browse(similar, "existing movie", true)
		if err != nil || result.Exit {
			return 0, "", false, err
		}
		chosen = result.Item
	}

	id, found, err := c.movies.GetID(ctx, chosen)
	if err != nil || !found {
		return 0, "", false, err
	}
	return id, chosen, true, nil
}

// SearchMovieInteractive asks for part of a title and lets the user pick one
// of the matching movies. It returns the chosen title, or "" when none was.
func (c *Catalog) SearchMovieInteractive(ctx context.Context) (string, error) {
	ok, keyword, err := c.validator.PromptText("Enter the movie title to search: ", validation.KindTitle)
	if err != nil || !ok {
		return "", err
	}

	rows, err := c.movies.FindByKeyword(ctx, keyword, []string{"title", "release_year"}, "title")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return c.handleNoItemsFound(ctx, "movie", c.ShowAllMoviesPaginated, c.SearchMovieInteractive)
	}

	items := make([]string, len(rows))
	for i, row := range rows {
		items[i] = fmt.Sprintf("%v (%v)", row[0], row[1])
	}

	result, err := c.browser.Browse(items, "found movie", true)
	if err != nil || result.Exit {
		return "", err
	}
	title := fmt.Sprint(rows[result.Index][0])
	success.Fprintf(c.out, "You selected '%s'.\n", title)
	return title, nil
}

// MoviesWithCast lists every movie in insertion order with its actors
func (c *Catalog) MoviesWithCast(ctx context.Context) ([]MovieWithCast, error) {
	query, args := db.NewBuilder(db.MoviesTable+" m").
		Select("m.title", "COALESCE(GROUP_CONCAT(a.name, ', '), 'No actors listed')").
		LeftJoin(db.MovieCastTable+" mc", "m.id = mc.movie_id").
		LeftJoin(db.ActorsTable+" a", "mc.actor_id = a.id").
		GroupBy("m.id").
		OrderBy("m.id", false).
		BuildSelect()

	rows, err := c.manager.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies with actors: %w", err)
	}

	movies := make([]MovieWithCast, len(rows))
	for i, row := range rows {
		movies[i] = MovieWithCast{Title: fmt.Sprint(row[0]), Actors: fmt.Sprint(row[1])}
	}
	return movies, nil
}

// ShowAllMoviesPaginated browses every movie together with its actors
func (c *Catalog) ShowAllMoviesPaginated(ctx context.Context) error {
	movies, err := c.MoviesWithCast(ctx)
	if err != nil {
		return err
	}
	if len(movies) == 0 {
		warning.Fprintln(c.out, "No movies found.")
		return nil
	}

	width := 0
	for _, m := range movies {
		if n := utf8.RuneCountInString(m.Title); n > width {
			width = n
		}
	}

	items := make([]string, len(movies))
	for i, m := range movies {
		padding := strings.Repeat(" ", width-utf8.RuneCountInString(m.Title)+2)
		items[i] = fmt.Sprintf("Movie: %q%sActors: %s", m.Title, padding, m.Actors)
	}

	_, err = c.browser.Browse(items, "movie", false)
	return err
}

// MoviesWithAge lists every movie with its age, computed in SQL by a function
// registered on first use
func (c *Catalog) MoviesWithAge(ctx context.Context) ([]MovieAge, error) {
	if err := c.manager.RegisterFunction(ctx, movieAgeFunction, 1, c.movieAge); err != nil {
		return nil, err
	}

	query, args := db.NewBuilder(db.MoviesTable).
		Select("title", "release_year", movieAgeFunction+"(release_year)").
		OrderBy("id", false).
		BuildSelect()

	rows, err := c.manager.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movie ages: %w", err)
	}

	movies := make([]MovieAge, len(rows))
	for i, row := range rows {
		year, _ := row[1].(int64)
		age, _ := row[2].(int64)
		movies[i] = MovieAge{Title: fmt.Sprint(row[0]), ReleaseYear: int(year), Age: int(age)}
	}
	return movies, nil
}

func (c *Catalog) movieAge(releaseYear int64) int64 {
	return int64(c.now().Year()) - releaseYear
}

// ShowMoviesWithAge prints every movie with the years since its release
func (c *Catalog) ShowMoviesWithAge(ctx context.Context) error {
	movies, err := c.MoviesWithAge(ctx)
	if err != nil {
		return err
	}
	if len(movies) == 0 {
		warning.Fprintln(c.out, "No movies found.")
		return nil
	}

	fmt.Fprintln(c.out, "Movies and their age:")
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Movie", "Released", "Age"})
	for i, m := range movies {
		t.AppendRow(table.Row{i + 1, m.Title, m.ReleaseYear, pluralize(int64(m.Age), "year")})
	}
	t.Render()
	return nil
}

// ShowActorsAndMovies browses actor names and movie titles together, actors first
func (c *Catalog) ShowActorsAndMovies(ctx context.Context) error {
	const query = `SELECT name AS result, birth_year AS year, 'Actor' AS type FROM actors
UNION
SELECT title AS result, release_year AS year, 'Film' AS type FROM movies
ORDER BY type, result COLLATE CI, year`

	rows, err := c.manager.ExecuteQuery(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to list actors and movies: %w", err)
	}
	if len(rows) == 0 {
		warning.Fprintln(c.out, "There are no actors or movies yet.")
		return nil
	}

	items := make([]string, len(rows))
	for i, row := range rows {
		items[i] = fmt.Sprintf("%v: %v (%v)", row[2], row[0], row[1])
	}
	_, err = c.browser.Browse(items, "record", false)
	return err
}

func firstColumn(rows []db.Row) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 && row[0] != nil {
			values = append(values, fmt.Sprint(row[0]))
		}
	}
	return values
}
