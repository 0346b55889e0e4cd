package service

import (
	"context"

	"github.com/ammar0144/kinodb/pkg/models"
	"github.com/ammar0144/kinodb/pkg/validation"
)

func (c *Catalog) actorHandler() *EntityHandler {
	return &EntityHandler{
		Name:       models.ActorModel,
		KeyPrompt:  "Enter the actor's name: ",
		Kind:       validation.KindNameOrGenre,
		LinkColumn: "actor_id",
		Bind:       func(link *models.MovieCast, id int64) { link.ActorID = id },
		Lookup: func(ctx context.Context, name string) (int64, bool, error) {
			return c.actors.GetID(ctx, name)
		},
		Search: func(ctx context.Context, keyword string) ([]string, error) {
			rows, err := c.actors.FindByKeyword(ctx, keyword, []string{"name"}, "name")
			if err != nil {
				return nil, err
			}
			return distinct(firstColumn(rows)), nil
		},
		Create: c.createActor,
	}
}

// InsertActor adds an actor, or finds the existing one, and links it to a
// movie. With movieTitle set the movie is searched for directly; otherwise
// the user is asked whether to add a reference.
func (c *Catalog) InsertActor(ctx context.Context, name, movieTitle string) (Outcome, error) {
	return c.linker.Run(ctx, Request{
		Side:           c.actorSide,
		Counterpart:    c.movieSide,
		Key:            name,
		CounterpartKey: movieTitle,
	})
}

func (c *Catalog) createActor(ctx context.Context, name string) (int64, bool, error) {
	ok, year, err := c.validator.PromptYear("Enter the actor's birth year: ", validation.YearBirth)
	if err != nil || !ok {
		return 0, false, err
	}

	id, err := c.actors.InsertOne(ctx, models.Actor{Name: name, BirthYear: year})
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// distinct drops repeated values, keeping the first occurrence
func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
