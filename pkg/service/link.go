package service

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/models"
	"github.com/ammar0144/kinodb/pkg/pager"
	"github.com/ammar0144/kinodb/pkg/prompt"
	"github.com/ammar0144/kinodb/pkg/repository"
	"github.com/ammar0144/kinodb/pkg/validation"
)

// State is a step of the insert-and-link workflow
type State string

const (
	StateCollectingPrimary   State = "collecting_primary"
	StateFoundExisting       State = "found_existing"
	StateCreatingNew         State = "creating_new"
	StateReferenceOffer      State = "reference_offer"
	StateCounterpartSearch   State = "counterpart_search"
	StateCounterpartResolved State = "counterpart_resolved"
	StateDeclined            State = "declined"
	StateLinking             State = "linking"
	StateDone                State = "done"
	StateAborted             State = "aborted"
)

// EntityHandler is one side of a movie/actor link
type EntityHandler struct {
	// Name is the lower-case display name ("movie", "actor")
	Name      string
	KeyPrompt string
	Kind      validation.FieldKind

	// LinkColumn is the movie_cast column holding this side's key
	LinkColumn string
	Bind       func(link *models.MovieCast, id int64)

	Lookup func(ctx context.Context, key string) (int64, bool, error)
	// Search returns natural keys containing keyword, ignoring case
	Search func(ctx context.Context, keyword string) ([]string, error)
	// Create collects the remaining fields and inserts one row. ok is false
	// when the user gave up.
	Create func(ctx context.Context, key string) (id int64, ok bool, err error)
	// Guard, when set, runs before Create and may return an existing row to reuse
	Guard func(ctx context.Context, key string) (id int64, reusedKey string, ok bool, err error)
}

// Request starts one run of the workflow
type Request struct {
	Side        *EntityHandler
	Counterpart *EntityHandler

	// Key is the natural key if already known; it is validated like typed input
	Key string
	// CounterpartKey skips the reference offer and searches for it directly
	CounterpartKey string
	SkipGuard      bool
	NoReference    bool
}

// Outcome reports where a run ended. Trail lists every state visited.
type Outcome struct {
	State          State
	Trail          []State
	Key            string
	ID             int64
	CounterpartKey string
	CounterpartID  int64
	Created        bool
	Linked         bool
	AlreadyLinked  bool
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trail = append(o.Trail, s)
}

// Linker runs the insert-and-link workflow for any pair of entity handlers
type Linker struct {
	manager   *db.Manager
	casts     *repository.GenericRepository[models.MovieCast]
	validator *validation.Validator
	browser   *pager.Browser
	prompter  prompt.Prompter
	out       io.Writer
	log       hclog.Logger
}

// Run collects or finds the primary entity, then optionally links it to a
// counterpart. Everything runs inside one savepoint: a storage failure at
// any step undoes the whole run, including a row created earlier in it.
// Giving up at a prompt ends in StateAborted with a nil error and keeps
// whatever was already stored.
func (l *Linker) Run(ctx context.Context, req Request) (Outcome, error) {
	out, err := l.runScoped(ctx, req)
	if err != nil {
		if db.IsStorage(err) {
			failure.Fprintf(l.out, "Could not save the %s: %v. Nothing was changed.\n", req.Side.Name, err)
			l.log.Error("workflow rolled back", "entity", req.Side.Name, "error", err)
		}
		return out, err
	}
	return out, nil
}

func (l *Linker) runScoped(ctx context.Context, req Request) (Outcome, error) {
	var out Outcome
	err := l.manager.WithSavepoint(ctx, func(ctx context.Context) error {
		return l.run(ctx, req, &out)
	})
	if err != nil {
		out.enter(StateAborted)
	}
	return out, err
}

func (l *Linker) run(ctx context.Context, req Request, out *Outcome) error {
	side, other := req.Side, req.Counterpart

	out.enter(StateCollectingPrimary)
	key, err := l.collectKey(req)
	if err != nil {
		return err
	}
	if key == "" {
		return l.abort(out, fmt.Sprintf("No valid %s entered.", side.Name))
	}
	out.Key = key

	id, found, err := side.Lookup(ctx, key)
	if err != nil {
		return err
	}

	if !found && side.Guard != nil && !req.SkipGuard {
		reuseID, reusedKey, reused, err := side.Guard(ctx, key)
		if err != nil {
			return err
		}
		if reused {
			id, found, out.Key = reuseID, true, reusedKey
		}
	}

	if found {
		out.enter(StateFoundExisting)
		out.ID = id
		warning.Fprintf(l.out, "%s '%s' already exists. Not adding a duplicate.\n", capitalize(side.Name), out.Key)
	} else {
		out.enter(StateCreatingNew)
		var ok bool
		err = l.manager.WithSavepoint(ctx, func(ctx context.Context) error {
			var createErr error
			id, ok, createErr = side.Create(ctx, key)
			return createErr
		})
		if err != nil {
			return err
		}
		if !ok {
			return l.abort(out, fmt.Sprintf("%s was not added.", capitalize(side.Name)))
		}
		out.ID, out.Created = id, true
		success.Fprintf(l.out, "%s '%s' with id %d added.\n", capitalize(side.Name), key, id)
	}

	if req.NoReference || other == nil {
		out.enter(StateDone)
		return nil
	}

	keyword := req.CounterpartKey
	if keyword == "" {
		out.enter(StateReferenceOffer)
		yes, err := confirm(l.prompter, fmt.Sprintf(
			"Would you like to add a %s reference to this %s? [yes, y, 1] or go back to the main menu [no, n]: ",
			other.Name, side.Name))
		if err != nil {
			return err
		}
		if !yes {
			out.enter(StateDeclined)
			out.enter(StateDone)
			return nil
		}

		if keyword, err = ask(l.prompter, fmt.Sprintf("Please enter the %s to search in database: ", other.Name)); err != nil {
			return err
		}
		if validation.IsExit(keyword) {
			return l.abort(out, "")
		}
	}

	out.enter(StateCounterpartSearch)
	counterpartKey, counterpartID, resolved, err := l.resolveCounterpart(ctx, req, keyword)
	if err != nil {
		return err
	}
	switch resolved {
	case resolveAborted:
		return l.abort(out, "")
	case resolveDeclined:
		fmt.Fprintf(l.out, "%s was not added. %s remains unlinked.\n", capitalize(other.Name), capitalize(side.Name))
		out.enter(StateDeclined)
		out.enter(StateDone)
		return nil
	}
	out.enter(StateCounterpartResolved)
	out.CounterpartKey, out.CounterpartID = counterpartKey, counterpartID

	out.enter(StateLinking)
	linked, err := l.link(ctx, side, other, out.ID, counterpartID)
	if err != nil {
		return err
	}
	if linked {
		out.Linked = true
		success.Fprintf(l.out, "Reference between %s %s and %s %s added successfully.\n",
			other.Name, counterpartKey, side.Name, out.Key)
	} else {
		out.AlreadyLinked = true
		warning.Fprintf(l.out, "%s '%s' is already linked to %s '%s'.\n",
			capitalize(other.Name), counterpartKey, side.Name, out.Key)
	}
	out.enter(StateDone)
	return nil
}

type resolution int

const (
	resolveFound resolution = iota
	resolveDeclined
	resolveAborted
)

// resolveCounterpart finds the counterpart by keyword, lets the user pick one
// of several matches, or offers to create it when nothing matches
func (l *Linker) resolveCounterpart(ctx context.Context, req Request, keyword string) (string, int64, resolution, error) {
	other := req.Counterpart

	matches, err := other.Search(ctx, keyword)
	if err != nil {
		return "", 0, resolveAborted, err
	}

	var selected string
	switch len(matches) {
	case 0:
		yes, err := confirm(l.prompter, fmt.Sprintf(
			"There is no such %s in the database, would you like to add a %s? [yes, y, 1]: ", other.Name, other.Name))
		if err != nil {
			return "", 0, resolveAborted, err
		}
		if !yes {
			return "", 0, resolveDeclined, nil
		}

		sub, err := l.runScoped(ctx, Request{
			Side:        other,
			Counterpart: req.Side,
			Key:         keyword,
			SkipGuard:   true,
			NoReference: true,
		})
		if err != nil {
			return "", 0, resolveAborted, err
		}
		if sub.State != StateDone {
			failure.Fprintf(l.out, "Failed to add %s.\n", other.Name)
			return "", 0, resolveAborted, nil
		}
		return sub.Key, sub.ID, resolveFound, nil
	case 1:
		selected = matches[0]
	default:
		result, err := l.browser.Browse(matches, "found "+other.Name, true)
		if err != nil {
			return "", 0, resolveAborted, err
		}
		if result.Exit {
			return "", 0, resolveAborted, nil
		}
		selected = result.Item
	}

	id, found, err := other.Lookup(ctx, selected)
	if err != nil {
		return "", 0, resolveAborted, err
	}
	if !found {
		return "", 0, resolveAborted, fmt.Errorf("%s %q disappeared during lookup", other.Name, selected)
	}
	return selected, id, resolveFound, nil
}

// link inserts the movie_cast pair unless it already exists
func (l *Linker) link(ctx context.Context, side, other *EntityHandler, id, counterpartID int64) (bool, error) {
	pair := map[string]interface{}{
		side.LinkColumn:  id,
		other.LinkColumn: counterpartID,
	}
	exists, err := l.casts.Exists(ctx, pair)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	var cast models.MovieCast
	side.Bind(&cast, id)
	other.Bind(&cast, counterpartID)

	err = l.manager.WithSavepoint(ctx, func(ctx context.Context) error {
		return l.casts.Insert(ctx, []models.MovieCast{cast})
	})
	if err != nil {
		return false, err
	}
	l.log.Debug("linked", "movie_id", cast.MovieID, "actor_id", cast.ActorID)
	return true, nil
}

func (l *Linker) collectKey(req Request) (string, error) {
	var (
		ok  bool
		key string
		err error
	)
	if req.Key != "" {
		ok, key, err = l.validator.ValidateText(req.Key, req.Side.Kind)
	} else {
		ok, key, err = l.validator.PromptText(req.Side.KeyPrompt, req.Side.Kind)
	}
	if err != nil || !ok {
		return "", err
	}
	return key, nil
}

// abort ends the run at an input step. Rows stored before it stay, so the
// savepoint is released rather than rolled back.
func (l *Linker) abort(out *Outcome, message string) error {
	if message != "" {
		warning.Fprintln(l.out, message)
	}
	out.enter(StateAborted)
	return nil
}
