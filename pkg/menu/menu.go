// Package menu runs the numbered main menu on top of a service.Catalog.
package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"

	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/prompt"
	"github.com/ammar0144/kinodb/pkg/service"
)

const (
	greeting = "Hello! Welcome to the movie database menu. How would you like to proceed?"
	choose   = "Choose an option: "
)

// Option is one numbered menu entry
type Option struct {
	Key    string
	Label  string
	Action func(ctx context.Context) error
}

// Menu dispatches numbered choices to catalog operations until the user exits
type Menu struct {
	options  []Option
	prompter prompt.Prompter
	out      io.Writer
	log      hclog.Logger
}

// New builds the main menu for catalog
func New(catalog *service.Catalog, p prompt.Prompter, out io.Writer, log hclog.Logger) *Menu {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	return &Menu{
		prompter: p,
		out:      out,
		log:      log.Named("menu"),
		options: []Option{
			{"1", "Add Movie", func(ctx context.Context) error {
				_, err := catalog.InsertMovie(ctx, "")
				return err
			}},
			{"2", "Add Actor", func(ctx context.Context) error {
				_, err := catalog.InsertActor(ctx, "", "")
				return err
			}},
			{"3", "Search Movie by keyword", func(ctx context.Context) error {
				_, err := catalog.SearchMovieInteractive(ctx)
				return err
			}},
			{"4", "Show all movies with actors (with pagination)", catalog.ShowAllMoviesPaginated},
			{"5", "Show all genres", func(ctx context.Context) error {
				_, err := catalog.ShowGenres(ctx, false)
				return err
			}},
			{"6", "Show movie count by genre", catalog.ShowMovieCountByGenre},
			{"7", "Show movies with age", catalog.ShowMoviesWithAge},
			{"8", "Search genre by part name", func(ctx context.Context) error {
				_, err := catalog.SearchGenreByPart(ctx)
				return err
			}},
			{"9", "Show average birth year of actors in genre", catalog.AverageBirthYearInGenre},
			{"10", "Show names of all actors and titles of all movies", catalog.ShowActorsAndMovies},
		},
	}
}

// Options returns the numbered entries in display order
func (m *Menu) Options() []Option {
	return m.options
}

// Run shows the menu until the user picks 0 or input ends. A storage failure
// inside an operation is reported and the menu is shown again; any other
// error stops the loop.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.render()
		choice, err := m.prompter.Prompt(choose)
		if isEndOfInput(err) {
			fmt.Fprintln(m.out, "Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}

		choice = strings.TrimSpace(choice)
		if choice == "0" || strings.EqualFold(choice, "exit") {
			fmt.Fprintln(m.out, "Goodbye!")
			return nil
		}

		option, ok := m.lookup(choice)
		if !ok {
			color.New(color.FgYellow).Fprintln(m.out, "Invalid choice. Try again.")
			continue
		}

		m.log.Debug("menu option selected", "option", option.Key, "label", option.Label)
		err = option.Action(ctx)
		switch {
		case err == nil:
		case isEndOfInput(err):
			fmt.Fprintln(m.out, "Goodbye!")
			return nil
		case db.IsStorage(err):
			m.log.Error("operation failed", "option", option.Key, "error", err)
			color.New(color.FgRed).Fprintf(m.out, "Operation failed: %v\n", err)
		default:
			return fmt.Errorf("%s: %w", strings.ToLower(option.Label), err)
		}
		fmt.Fprintln(m.out, "Returning to the main menu...")
	}
}

func (m *Menu) render() {
	fmt.Fprintln(m.out, greeting)
	fmt.Fprintln(m.out)
	for _, o := range m.options {
		fmt.Fprintf(m.out, "%s. %s\n", o.Key, o.Label)
	}
	fmt.Fprintln(m.out, "0. Exit")
}

func (m *Menu) lookup(key string) (Option, bool) {
	for _, o := range m.options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

func isEndOfInput(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, prompt.ErrInterrupted)
}
