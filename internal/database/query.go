package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/relicmart/internal/errs"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected: the operator position cannot
// be parameterised.
var validOps = map[string]bool{
	"=":  true,
	"!=": true,
	"<>": true,
	"<":  true,
	">":  true,
	"<=": true,
	">=": true,
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

// argList accumulates bind arguments and hands out placeholders.
type argList struct {
	dialect Dialect
	args    []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return a.dialect.Placeholder(len(a.args))
}

// condition is one AND-ed term of a WHERE clause.
type condition interface {
	render(d Dialect, a *argList) (string, error)
}

type compare struct {
	column string
	op     string
	value  any
}

func (c compare) render(d Dialect, a *argList) (string, error) {
	op := strings.ToUpper(c.op)
	if !validOps[op] {
		return "", errs.Newf(errs.ErrKindValidation, "unsupported WHERE operator: %q", c.op)
	}
	return fmt.Sprintf("%s %s %s", d.Quote(c.column), op, a.add(c.value)), nil
}

type in struct {
	column string
	values []any
}

func (c in) render(d Dialect, a *argList) (string, error) {
	ph := make([]string, len(c.values))
	for i, v := range c.values {
		ph[i] = a.add(v)
	}
	return fmt.Sprintf("%s IN (%s)", d.Quote(c.column), strings.Join(ph, ", ")), nil
}

type search struct {
	columns []string
	term    string
}

func (c search) render(d Dialect, a *argList) (string, error) {
	pattern := "%" + escapeLike(strings.ToLower(c.term)) + "%"
	parts := make([]string, len(c.columns))
	for i, col := range c.columns {
		parts[i] = fmt.Sprintf("LOWER(%s) LIKE %s", d.Quote(col), a.add(pattern))
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

// escapeLike neutralises LIKE wildcards so a search term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func renderWhere(d Dialect, a *argList, conds []condition) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		s, err := c.render(d, a)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func quoteAll(d Dialect, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// --- SELECT ---

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string, always passed as args.
//
//	sql, args, err := Select("dnd", DialectPostgres).
//	    Columns("Id", "Name").
//	    Where("Price", ">=", 100).
//	    OrderBy("Created_At", Desc).
//	    Limit(12).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []string
	where   []condition
	orderBy []orderClause
	limit   *int
	offset  *int
}

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a comparison. Multiple conditions are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, compare{column, op, value})
	return b
}

// WhereIn adds "column IN (…)". An empty list is ignored.
func (b *SelectBuilder) WhereIn(column string, values ...any) *SelectBuilder {
	if len(values) > 0 {
		b.where = append(b.where, in{column, values})
	}
	return b
}

// WhereSearch adds a case-insensitive substring match of term against any
// of columns. An empty term is ignored.
func (b *SelectBuilder) WhereSearch(term string, columns ...string) *SelectBuilder {
	if term != "" && len(columns) > 0 {
		b.where = append(b.where, search{columns, term})
	}
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
func (b *SelectBuilder) Build() (string, []any, error) {
	d := b.dialect
	a := &argList{dialect: d}

	cols := "*"
	if len(b.columns) > 0 {
		cols = quoteAll(d, b.columns)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(d.Quote(b.table))

	where, err := renderWhere(d, a, b.where)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(where)

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", d.Quote(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(a.add(*b.limit))
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(a.add(*b.offset))
	}

	return sb.String(), a.args, nil
}

// BuildCount produces "SELECT COUNT(*)" over the same WHERE clause,
// ignoring columns, ordering and paging.
func (b *SelectBuilder) BuildCount() (string, []any, error) {
	d := b.dialect
	a := &argList{dialect: d}
	where, err := renderWhere(d, a, b.where)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + d.Quote(b.table) + where, a.args, nil
}

// --- INSERT ---

// InsertBuilder constructs a single-row parameterized INSERT.
type InsertBuilder struct {
	table     string
	dialect   Dialect
	columns   []string
	values    []any
	returning []string
}

// Insert starts a new InsertBuilder.
func Insert(table string, d Dialect) *InsertBuilder {
	return &InsertBuilder{table: table, dialect: d}
}

// Set adds one column/value pair.
func (b *InsertBuilder) Set(column string, value any) *InsertBuilder {
	b.columns = append(b.columns, column)
	b.values = append(b.values, value)
	return b
}

// Returning asks for the listed columns back. Ignored by dialects without
// RETURNING support.
func (b *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	b.returning = cols
	return b
}

// Build produces the final SQL string and argument slice.
func (b *InsertBuilder) Build() (string, []any, error) {
	if len(b.columns) == 0 {
		return "", nil, errs.New(errs.ErrKindValidation, "insert without columns")
	}
	d := b.dialect
	a := &argList{dialect: d}

	ph := make([]string, len(b.values))
	for i, v := range b.values {
		ph[i] = a.add(v)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(b.table), quoteAll(d, b.columns), strings.Join(ph, ", "))
	if len(b.returning) > 0 && d.SupportsReturning() {
		sql += " RETURNING " + quoteAll(d, b.returning)
	}
	return sql, a.args, nil
}

// --- UPDATE ---

// UpdateBuilder constructs a parameterized UPDATE.
type UpdateBuilder struct {
	table     string
	dialect   Dialect
	sets      []string
	values    []any
	raw       []string
	where     []condition
	returning []string
}

// Update starts a new UpdateBuilder.
func Update(table string, d Dialect) *UpdateBuilder {
	return &UpdateBuilder{table: table, dialect: d}
}

// Set assigns a bound value to column.
func (b *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	b.sets = append(b.sets, column)
	b.values = append(b.values, value)
	return b
}

// Touch sets column to the server's current timestamp.
func (b *UpdateBuilder) Touch(column string) *UpdateBuilder {
	b.raw = append(b.raw, column)
	return b
}

// Where adds a comparison. Multiple conditions are combined with AND.
func (b *UpdateBuilder) Where(column, op string, value any) *UpdateBuilder {
	b.where = append(b.where, compare{column, op, value})
	return b
}

// Returning asks for the listed columns back. Ignored by dialects without
// RETURNING support.
func (b *UpdateBuilder) Returning(cols ...string) *UpdateBuilder {
	b.returning = cols
	return b
}

// Build produces the final SQL string and argument slice.
func (b *UpdateBuilder) Build() (string, []any, error) {
	if len(b.sets) == 0 && len(b.raw) == 0 {
		return "", nil, errs.New(errs.ErrKindValidation, "update without columns")
	}
	d := b.dialect
	a := &argList{dialect: d}

	parts := make([]string, 0, len(b.sets)+len(b.raw))
	for i, col := range b.sets {
		parts = append(parts, fmt.Sprintf("%s = %s", d.Quote(col), a.add(b.values[i])))
	}
	for _, col := range b.raw {
		parts = append(parts, fmt.Sprintf("%s = CURRENT_TIMESTAMP", d.Quote(col)))
	}

	where, err := renderWhere(d, a, b.where)
	if err != nil {
		return "", nil, err
	}

	sql := "UPDATE " + d.Quote(b.table) + " SET " + strings.Join(parts, ", ") + where
	if len(b.returning) > 0 && d.SupportsReturning() {
		sql += " RETURNING " + quoteAll(d, b.returning)
	}
	return sql, a.args, nil
}

// --- DELETE ---

// DeleteBuilder constructs a parameterized DELETE.
type DeleteBuilder struct {
	table   string
	dialect Dialect
	where   []condition
}

// Delete starts a new DeleteBuilder.
func Delete(table string, d Dialect) *DeleteBuilder {
	return &DeleteBuilder{table: table, dialect: d}
}

// Where adds a comparison. Multiple conditions are combined with AND.
func (b *DeleteBuilder) Where(column, op string, value any) *DeleteBuilder {
	b.where = append(b.where, compare{column, op, value})
	return b
}

// Build produces the final SQL string and argument slice. A DELETE without
// a WHERE clause is refused.
func (b *DeleteBuilder) Build() (string, []any, error) {
	if len(b.where) == 0 {
		return "", nil, errs.New(errs.ErrKindValidation, "delete without condition")
	}
	d := b.dialect
	a := &argList{dialect: d}
	where, err := renderWhere(d, a, b.where)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + d.Quote(b.table) + where, a.args, nil
}
