// Package models declares the movie, actor and cast records and the
// descriptors the generic repository uses to store them.
package models

import (
	"github.com/ammar0144/kinodb/pkg/db"
	"github.com/ammar0144/kinodb/pkg/repository"
)

// Registry names used for reverse lookups
const (
	MovieModel     = "movie"
	ActorModel     = "actor"
	MovieCastModel = "movie_cast"
)

// Movie is one film. Genre is optional.
type Movie struct {
	ID          int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Title       string  `gorm:"column:title;not null"`
	ReleaseYear int     `gorm:"column:release_year;not null"`
	Genre       *string `gorm:"column:genre"`
}

// TableName returns the database table name for GORM
func (Movie) TableName() string { return db.MoviesTable }

// Actor is one performer
type Actor struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string `gorm:"column:name;not null"`
	BirthYear int    `gorm:"column:birth_year;not null"`
}

// TableName returns the database table name for GORM
func (Actor) TableName() string { return db.ActorsTable }

// MovieCast links a movie to an actor. The pair is the primary key.
type MovieCast struct {
	MovieID int64 `gorm:"column:movie_id;primaryKey"`
	ActorID int64 `gorm:"column:actor_id;primaryKey"`
}

// TableName returns the database table name for GORM
func (MovieCast) TableName() string { return db.MovieCastTable }

// StringPtr returns nil for an empty string, for optional columns
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Movies describes the movies table
var Movies = repository.Model[Movie]{
	Name:             MovieModel,
	Table:            db.MoviesTable,
	PrimaryKey:       "id",
	IdentifierColumn: "title",
	Columns: []repository.Column[Movie]{
		{Name: "title", Value: func(m Movie) interface{} { return m.Title }},
		{Name: "release_year", Value: func(m Movie) interface{} { return m.ReleaseYear }},
		{Name: "genre", Value: func(m Movie) interface{} {
			if m.Genre == nil {
				return nil
			}
			return *m.Genre
		}},
	},
}

// Actors describes the actors table
var Actors = repository.Model[Actor]{
	Name:             ActorModel,
	Table:            db.ActorsTable,
	PrimaryKey:       "id",
	IdentifierColumn: "name",
	Columns: []repository.Column[Actor]{
		{Name: "name", Value: func(a Actor) interface{} { return a.Name }},
		{Name: "birth_year", Value: func(a Actor) interface{} { return a.BirthYear }},
	},
}

// Casts describes the movie_cast association. It has no surrogate key and no identifier.
var Casts = repository.Model[MovieCast]{
	Name:  MovieCastModel,
	Table: db.MovieCastTable,
	Columns: []repository.Column[MovieCast]{
		{Name: "movie_id", Value: func(c MovieCast) interface{} { return c.MovieID }},
		{Name: "actor_id", Value: func(c MovieCast) interface{} { return c.ActorID }},
	},
}

// Registry returns a registry holding all three models
func Registry() *repository.Registry {
	return repository.NewRegistry(Movies.Info(), Actors.Info(), Casts.Info())
}
