package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type book struct {
	Title string
	Pages int
}

func TestModelInfo(t *testing.T) {
	model := Model[book]{
		Name:             "book",
		Table:            "books",
		PrimaryKey:       "id",
		IdentifierColumn: "title",
		Columns: []Column[book]{
			{Name: "title", Value: func(b book) interface{} { return b.Title }},
			{Name: "pages", Value: func(b book) interface{} { return b.Pages }},
		},
	}

	info := model.Info()
	assert.Equal(t, []string{"title", "pages"}, info.Columns)
	assert.True(t, info.HasIdentifier())
	assert.True(t, info.HasColumn("id"))
	assert.True(t, info.HasColumn("pages"))
	assert.False(t, info.HasColumn("author"))
	assert.False(t, info.HasColumn(""))

	assoc := ModelInfo{Name: "shelf_book", Table: "shelf_books", Columns: []string{"shelf_id", "book_id"}}
	assert.False(t, assoc.HasIdentifier())
	assert.False(t, assoc.HasColumn(""))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(ModelInfo{Name: "a"}, ModelInfo{Name: "b"})
	registry.Register(ModelInfo{Name: "a", Table: "as"})

	assert.Equal(t, []string{"a", "b"}, registry.Names())

	info, err := registry.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "as", info.Table)

	_, err = registry.Lookup("c")
	assert.ErrorIs(t, err, ErrUnknownModel)
}
