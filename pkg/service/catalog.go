// Package service implements the interactive movie, actor and genre
// operations on top of the repositories, the validator and the pager.
package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"

	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/models"
	"github.com/ammar0144/kinodb/pkg/pager"
	"github.com/ammar0144/kinodb/pkg/prompt"
	"github.com/ammar0144/kinodb/pkg/redis"
	"github.com/ammar0144/kinodb/pkg/repository"
	"github.com/ammar0144/kinodb/pkg/validation"
)

var (
	success = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
)

// Options configures a Catalog. Zero values get defaults.
type Options struct {
	Prompter    prompt.Prompter
	Out         io.Writer
	Cache       *redis.Manager
	Logger      hclog.Logger
	PageSize    int
	MaxAttempts int
	Now         func() time.Time
}

// Catalog exposes the menu operations. It owns no connection: every
// statement goes through the manager.
type Catalog struct {
	manager   *db.Manager
	cache     *redis.Manager
	movies    *repository.GenericRepository[models.Movie]
	actors    *repository.GenericRepository[models.Actor]
	casts     *repository.GenericRepository[models.MovieCast]
	registry  *repository.Registry
	validator *validation.Validator
	browser   *pager.Browser
	prompter  prompt.Prompter
	out       io.Writer
	log       hclog.Logger
	now       func() time.Time

	linker    *Linker
	movieSide *EntityHandler
	actorSide *EntityHandler
}

// New wires a catalog around manager
func New(manager *db.Manager, opts Options) *Catalog {
	log := opts.Logger
	if log == nil {
		log = manager.Logger()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	validator := validation.New(opts.Prompter, out, log)
	validator.Now = now
	if opts.MaxAttempts > 0 {
		validator.MaxAttempts = opts.MaxAttempts
	}

	browser := pager.New(opts.Prompter, out)
	if opts.PageSize > 0 {
		browser.PageSize = opts.PageSize
	}
	if opts.MaxAttempts > 0 {
		browser.MaxAttempts = opts.MaxAttempts
	}

	c := &Catalog{
		manager:   manager,
		cache:     opts.Cache,
		movies:    repository.New(manager, models.Movies, opts.Cache),
		actors:    repository.New(manager, models.Actors, opts.Cache),
		casts:     repository.New(manager, models.Casts, opts.Cache),
		registry:  models.Registry(),
		validator: validator,
		browser:   browser,
		prompter:  opts.Prompter,
		out:       out,
		log:       log.Named("catalog"),
		now:       now,
	}

	if c.cache.Enabled() {
		// Entries left by an earlier session may describe rows it never committed
		if err := c.cache.InvalidateStore(context.Background(), manager.StoreID()); err != nil {
			c.log.Warn("cache reset failed", "error", err)
		}
		// Cached searches may include rows that a rollback just removed
		manager.OnRollback(func() {
			if err := c.cache.Flush(context.Background()); err != nil {
				c.log.Warn("cache flush after rollback failed", "error", err)
			}
		})
	}

	c.movieSide = c.movieHandler()
	c.actorSide = c.actorHandler()
	c.linker = &Linker{
		manager:   manager,
		casts:     c.casts,
		validator: validator,
		browser:   browser,
		prompter:  opts.Prompter,
		out:       out,
		log:       c.log.Named("link"),
	}
	return c
}

// Validator returns the validator used for all input
func (c *Catalog) Validator() *validation.Validator {
	return c.validator
}

// Browser returns the pager used for all listings
func (c *Catalog) Browser() *pager.Browser {
	return c.browser
}

// ask prompts once and trims the answer
func (c *Catalog) ask(message string) (string, error) {
	return ask(c.prompter, message)
}

func ask(p prompt.Prompter, message string) (string, error) {
	if p == nil {
		return "", io.EOF
	}
	answer, err := p.Prompt(message)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// isYes accepts the affirmative answers of every yes/no question
func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y", "1":
		return true
	}
	return false
}

func confirm(p prompt.Prompter, message string) (bool, error) {
	answer, err := ask(p, message)
	if err != nil {
		return false, err
	}
	return isYes(answer), nil
}

// handleNoItemsFound lets the user search again, list everything, or give up
func (c *Catalog) handleNoItemsFound(ctx context.Context, itemName string,
	showAll func(ctx context.Context) error,
	retry func(ctx context.Context) (string, error)) (string, error) {
	warning.Fprintf(c.out, "No %s found with that search.\n", itemName)

	for {
		choice, err := c.ask(fmt.Sprintf(
			"What would you like to do next?\n1. Search again for a %s\n2. Show all %ss\n3. Exit to the main menu\nPlease enter the option number (1-3): ",
			itemName, itemName))
		if err != nil {
			return "", err
		}

		switch strings.ToLower(choice) {
		case "1":
			fmt.Fprintf(c.out, "Let's try searching again for the %s...\n", itemName)
			return retry(ctx)
		case "2":
			fmt.Fprintf(c.out, "Showing all %ss...\n", itemName)
			return "", showAll(ctx)
		case "3", "exit", "q":
			return "", nil
		default:
			warning.Fprintln(c.out, "Invalid option. Please select 1, 2, or 3.")
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func pluralize(n int64, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
