package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/models"
	"github.com/ammar0144/kinodb/pkg/validation"
)

// GenreCount is the number of movies tagged with one genre
type GenreCount struct {
	Genre  string
	Movies int64
}

// Genres returns the distinct genres, sorted ignoring case. Movies without a
// genre are left out.
func (c *Catalog) Genres(ctx context.Context) ([]string, error) {
	var genres []string
	err := c.manager.DB().WithContext(ctx).
		Model(&models.Movie{}).
		Where("genre IS NOT NULL AND genre <> ''").
		Distinct().
		Order("genre COLLATE " + db.CaseInsensitiveCollation).
		Order("genre").
		Pluck("genre", &genres).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	return genres, nil
}

// ShowGenres browses the genres. With selectable set the chosen genre is
// returned; "" means the user left without choosing.
func (c *Catalog) ShowGenres(ctx context.Context, selectable bool) (string, error) {
	genres, err := c.Genres(ctx)
	if err != nil {
		return "", err
	}
	if len(genres) == 0 {
		warning.Fprintln(c.out, "No genres found.")
		return "", nil
	}

	result, err := c.browser.Browse(genres, "genre", selectable)
	if err != nil || result.Exit {
		return "", err
	}
	return result.Item, nil
}

// FindGenres returns the distinct genres containing part, ignoring case
func (c *Catalog) FindGenres(ctx context.Context, part string) ([]string, error) {
	query, args := db.NewBuilder(db.MoviesTable).
		Select("genre").
		Distinct().
		Where(fmt.Sprintf("%s(genre)", db.CaseFoldFunction), db.Like, db.ContainsPattern(strings.ToLower(part))).
		OrderByCollate("genre", db.CaseInsensitiveCollation, false).
		BuildSelect()

	rows, err := c.manager.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search genres: %w", err)
	}
	return firstColumn(rows), nil
}

// SearchGenreByPart asks for part of a genre name and lets the user pick one
// of the matching genres
func (c *Catalog) SearchGenreByPart(ctx context.Context) (string, error) {
	ok, part, err := c.validator.PromptText(
		"Enter part of the genre name to search for (or 'exit'/'q' to return to the main menu): ",
		validation.KindNameOrGenre)
	if err != nil || !ok {
		return "", err
	}

	genres, err := c.FindGenres(ctx, part)
	if err != nil {
		return "", err
	}
	if len(genres) == 0 {
		showAll := func(ctx context.Context) error {
			_, err := c.ShowGenres(ctx, false)
			return err
		}
		return c.handleNoItemsFound(ctx, "genre", showAll, c.SearchGenreByPart)
	}

	result, err := c.browser.Browse(genres, "genre", true)
	if err != nil || result.Exit {
		return "", err
	}
	success.Fprintf(c.out, "You selected the %s genre.\n", result.Item)
	return result.Item, nil
}

// MovieCountByGenre counts the movies of each genre. Genres are the same
// distinct values Genres lists, so "Drama" and "drama" are counted apart;
// only the ordering ignores case.
func (c *Catalog) MovieCountByGenre(ctx context.Context) ([]GenreCount, error) {
	query, args := db.NewBuilder(db.MoviesTable).
		Select("genre", "COUNT(*)").
		Where("genre", db.IsNotNull, nil).
		Where("genre", db.NotEqual, "").
		GroupBy("genre").
		OrderByCollate("genre", db.CaseInsensitiveCollation, false).
		OrderBy("genre", false).
		BuildSelect()

	rows, err := c.manager.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count movies by genre: %w", err)
	}

	counts := make([]GenreCount, len(rows))
	for i, row := range rows {
		n, _ := row[1].(int64)
		counts[i] = GenreCount{Genre: fmt.Sprint(row[0]), Movies: n}
	}
	return counts, nil
}

// ShowMovieCountByGenre prints a table of movie counts per genre
func (c *Catalog) ShowMovieCountByGenre(ctx context.Context) error {
	counts, err := c.MovieCountByGenre(ctx)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		warning.Fprintln(c.out, "No genres found.")
		return nil
	}

	fmt.Fprintln(c.out, "Movie count by genre:")
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"Genre", "Movies"})
	for _, gc := range counts {
		t.AppendRow(table.Row{gc.Genre, pluralize(gc.Movies, "movie")})
	}
	t.Render()
	return nil
}

// AverageBirthYear averages the birth years of actors cast in movies of
// genre. found is false when no such actor exists.
func (c *Catalog) AverageBirthYear(ctx context.Context, genre string) (float64, bool, error) {
	query, args := db.NewBuilder(db.ActorsTable+" a").
		Select("AVG(a.birth_year)").
		InnerJoin(db.MovieCastTable+" mc", "a.id = mc.actor_id").
		InnerJoin(db.MoviesTable+" m", "mc.movie_id = m.id").
		Where("m.genre", db.Equal, genre).
		BuildSelect()

	rows, err := c.manager.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return 0, false, fmt.Errorf("failed to average birth years: %w", err)
	}
	if len(rows) == 0 || rows[0][0] == nil {
		return 0, false, nil
	}

	switch avg := rows[0][0].(type) {
	case float64:
		return avg, true, nil
	case int64:
		return float64(avg), true, nil
	default:
		return 0, false, fmt.Errorf("unexpected average type %T", avg)
	}
}

// AverageBirthYearInGenre lets the user pick a genre and prints the average
// birth year of the actors in its movies
func (c *Catalog) AverageBirthYearInGenre(ctx context.Context) error {
	genre, err := c.SearchGenreByPart(ctx)
	if err != nil || genre == "" {
		return err
	}

	avg, found, err := c.AverageBirthYear(ctx, genre)
	if err != nil {
		return err
	}
	if !found {
		warning.Fprintf(c.out, "No actors found for genre: %s\n", genre)
		return nil
	}
	success.Fprintf(c.out, "Average birth year of actors in movies of genre '%s' is %.0f\n", genre, avg)
	return nil
}
