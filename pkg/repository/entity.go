package repository

import "fmt"

// Column pairs a data column with the accessor that reads its value from a record.
// Accessors are listed in column order; the surrogate key is never one of them.
type Column[T any] struct {
	Name  string
	Value func(T) interface{}
}

// Model describes how records of type T are stored.
// An empty PrimaryKey or IdentifierColumn means the model has none.
type Model[T any] struct {
	// Name is the registry name used for reverse lookups ("movie", "actor")
	Name string

	// Table is the database table name
	Table string

	// Columns lists the data columns with their accessors
	Columns []Column[T]

	// PrimaryKey is the surrogate key column
	PrimaryKey string

	// IdentifierColumn is the natural key used to check for existing rows
	IdentifierColumn string
}

// Info returns the untyped view of the model
func (m Model[T]) Info() ModelInfo {
	columns := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		columns[i] = c.Name
	}
	return ModelInfo{
		Name:             m.Name,
		Table:            m.Table,
		Columns:          columns,
		PrimaryKey:       m.PrimaryKey,
		IdentifierColumn: m.IdentifierColumn,
	}
}

// ModelInfo is the type-erased model metadata
type ModelInfo struct {
	Name             string
	Table            string
	Columns          []string
	PrimaryKey       string
	IdentifierColumn string
}

// HasIdentifier reports whether natural-key lookups are possible
func (i ModelInfo) HasIdentifier() bool {
	return i.IdentifierColumn != "" && i.PrimaryKey != ""
}

// HasColumn reports whether name is a data column or the primary key
func (i ModelInfo) HasColumn(name string) bool {
	if name == "" {
		return false
	}
	if name == i.PrimaryKey {
		return true
	}
	for _, c := range i.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Registry maps model names to their metadata
type Registry struct {
	models map[string]ModelInfo
	order  []string
}

// NewRegistry creates a registry holding the given models
func NewRegistry(models ...ModelInfo) *Registry {
	r := &Registry{models: make(map[string]ModelInfo, len(models))}
	for _, m := range models {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a model
func (r *Registry) Register(info ModelInfo) {
	if _, exists := r.models[info.Name]; !exists {
		r.order = append(r.order, info.Name)
	}
	r.models[info.Name] = info
}

// Lookup returns the model registered under name
func (r *Registry) Lookup(name string) (ModelInfo, error) {
	info, ok := r.models[name]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return info, nil
}

// Names returns the registered model names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
