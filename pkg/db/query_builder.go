package db

import (
	"fmt"
	"strings"
)

// Builder output is shared by the record handler and the services. Tables,
// columns and expressions are written into the statement verbatim and must
// come from model descriptors or constants; user text only ever travels as a
// condition value, which is bound.

// Operator represents SQL comparison operators
type Operator string

const (
	Equal              Operator = "="
	NotEqual           Operator = "<>"
	GreaterThanOrEqual Operator = ">="
	Like               Operator = "LIKE"
	IsNull             Operator = "IS NULL"
	IsNotNull          Operator = "IS NOT NULL"
)

// JoinType represents SQL JOIN types
type JoinType string

const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
)

// likeEscape is the escape character used by LIKE conditions
const likeEscape = `\`

// Condition represents a WHERE clause condition
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// JoinClause represents a JOIN operation
type JoinClause struct {
	Type      JoinType
	Table     string
	Condition string
}

// Builder helps build SQL statements for one table
type Builder struct {
	table      string
	selectCols []string
	distinct   bool
	joins      []JoinClause
	where      []Condition
	groupBy    []string
	orderBy    []string
	limit      int
}

// NewBuilder starts a statement on table, which may carry an alias ("movies m")
func NewBuilder(table string) *Builder {
	return &Builder{
		table:      table,
		selectCols: []string{"*"},
	}
}

// Select sets the columns (or expressions) to select
func (b *Builder) Select(cols ...string) *Builder {
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	b.selectCols = cols
	return b
}

// Distinct enables DISTINCT selection
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// Where adds a condition; conditions are joined with AND.
// Field may be an expression such as "casefold(title)".
func (b *Builder) Where(field string, operator Operator, value interface{}) *Builder {
	b.where = append(b.where, Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	})
	return b
}

// Join adds a JOIN clause
func (b *Builder) Join(joinType JoinType, table, condition string) *Builder {
	b.joins = append(b.joins, JoinClause{
		Type:      joinType,
		Table:     table,
		Condition: condition,
	})
	return b
}

// InnerJoin adds an INNER JOIN
func (b *Builder) InnerJoin(table, condition string) *Builder {
	return b.Join(InnerJoin, table, condition)
}

// LeftJoin adds a LEFT JOIN
func (b *Builder) LeftJoin(table, condition string) *Builder {
	return b.Join(LeftJoin, table, condition)
}

// GroupBy adds GROUP BY columns
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

// OrderBy adds an ORDER BY clause
func (b *Builder) OrderBy(field string, desc bool) *Builder {
	return b.OrderByCollate(field, "", desc)
}

// OrderByCollate adds an ORDER BY clause compared with the named collation
func (b *Builder) OrderByCollate(field, collation string, desc bool) *Builder {
	order := field
	if collation != "" {
		order += " COLLATE " + collation
	}
	if desc {
		order += " DESC"
	} else {
		order += " ASC"
	}
	b.orderBy = append(b.orderBy, order)
	return b
}

// Limit caps the number of rows; zero or less means no limit
func (b *Builder) Limit(limit int) *Builder {
	b.limit = max(limit, 0)
	return b
}

// BuildSelect builds a SELECT query
func (b *Builder) BuildSelect() (string, []interface{}) {
	var query strings.Builder
	var args []interface{}

	query.WriteString("SELECT ")
	if b.distinct {
		query.WriteString("DISTINCT ")
	}
	query.WriteString(strings.Join(b.selectCols, ", "))
	query.WriteString(" FROM ")
	query.WriteString(b.table)

	for _, join := range b.joins {
		query.WriteString(" ")
		query.WriteString(string(join.Type))
		query.WriteString(" ")
		query.WriteString(join.Table)
		query.WriteString(" ON ")
		query.WriteString(join.Condition)
	}

	if len(b.where) > 0 {
		conditions := make([]string, 0, len(b.where))
		for _, cond := range b.where {
			condSQL, condArgs := buildCondition(cond)
			conditions = append(conditions, condSQL)
			args = append(args, condArgs...)
		}
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conditions, " AND "))
	}

	if len(b.groupBy) > 0 {
		query.WriteString(" GROUP BY ")
		query.WriteString(strings.Join(b.groupBy, ", "))
	}

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limit > 0 {
		fmt.Fprintf(&query, " LIMIT %d", b.limit)
	}

	return query.String(), args
}

// buildCondition renders one condition and the values it binds
func buildCondition(cond Condition) (string, []interface{}) {
	switch cond.Operator {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", cond.Field, cond.Operator), nil
	case Like:
		return fmt.Sprintf("%s LIKE ? ESCAPE '%s'", cond.Field, likeEscape), []interface{}{cond.Value}
	default:
		return fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), []interface{}{cond.Value}
	}
}

// BuildInsert builds one multi-row INSERT with a placeholder group per row.
// It returns the statement and the number of values it expects.
func (b *Builder) BuildInsert(columns []string, rows int) (string, int) {
	if len(columns) == 0 || rows <= 0 {
		return "", 0
	}

	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	groups := make([]string, rows)
	for i := range groups {
		groups[i] = group
	}

	var query strings.Builder
	query.WriteString("INSERT INTO ")
	query.WriteString(b.table)
	query.WriteString(" (")
	query.WriteString(strings.Join(columns, ", "))
	query.WriteString(") VALUES ")
	query.WriteString(strings.Join(groups, ", "))

	return query.String(), len(columns) * rows
}

// EscapeLike escapes LIKE wildcards so the value matches literally
func EscapeLike(value string) string {
	replacer := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return replacer.Replace(value)
}

// ContainsPattern turns a keyword into a substring LIKE pattern
func ContainsPattern(keyword string) string {
	return "%" + EscapeLike(keyword) + "%"
}
