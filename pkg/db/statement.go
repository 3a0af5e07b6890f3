package db

import (
	"sort"
	"strconv"
	"strings"
)

// Compact statement builders assembling full statements around a Where
// clause. Each implements Statement; SQL() renders into a fresh bindings
// instance every call, so one builder can safely be rendered more than once.

// Select builds a SELECT statement.
type Select struct {
	table    string
	fields   []string
	where    *Where
	orderBy  []string
	limit    int
	offset   int
	bindings *Bindings
}

func NewSelect(table string) *Select {
	return &Select{table: table, where: NewWhere(), limit: -1, bindings: NewBindings()}
}

// Fields sets the selected columns; the default is *.
func (s *Select) Fields(fields ...string) *Select {
	s.fields = fields
	return s
}

// Where exposes the condition tree for chaining.
func (s *Select) Where() *Where { return s.where }

// SetWhere replaces the condition tree, cloning it so later mutation of the
// caller's instance does not leak in.
func (s *Select) SetWhere(w *Where) *Select {
	if w != nil {
		s.where = w.Clone()
	}
	return s
}

func (s *Select) OrderBy(field, direction string) *Select {
	dir := strings.ToUpper(direction)
	if dir != "DESC" {
		dir = "ASC"
	}
	s.orderBy = append(s.orderBy, field+" "+dir)
	return s
}

func (s *Select) Limit(n int) *Select {
	s.limit = n
	return s
}

func (s *Select) Offset(n int) *Select {
	s.offset = n
	return s
}

func (s *Select) SQL() (string, error) {
	if s.table == "" {
		return "", errorf("select: table name is empty")
	}
	b := NewBindings()

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(s.fields) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(s.fields, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(s.table)

	if err := appendWhere(&sb, s.where, b); err != nil {
		return "", err
	}
	if len(s.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(s.orderBy, ", "))
	}
	if s.limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(s.limit))
		if s.offset > 0 {
			sb.WriteString(" OFFSET ")
			sb.WriteString(strconv.Itoa(s.offset))
		}
	}

	s.bindings = b
	return sb.String(), nil
}

func (s *Select) Bindings() *Bindings { return s.bindings }

// Insert builds a single- or multi-row INSERT statement. The first row fixes
// the column set; every row must cover it.
type Insert struct {
	table    string
	columns  []string
	rows     [][]any
	bindings *Bindings
}

func NewInsert(table string) *Insert {
	return &Insert{table: table, bindings: NewBindings()}
}

// Add appends one row of values. Columns are taken from the first row's keys
// in sorted order.
func (i *Insert) Add(row map[string]any) *Insert {
	if i.columns == nil {
		cols := make([]string, 0, len(row))
		for c := range row {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		i.columns = cols
	}
	values := make([]any, len(i.columns))
	for n, c := range i.columns {
		values[n] = row[c]
	}
	i.rows = append(i.rows, values)
	return i
}

func (i *Insert) SQL() (string, error) {
	if i.table == "" {
		return "", errorf("insert: table name is empty")
	}
	if len(i.rows) == 0 {
		return "", errorf("insert into %q: no rows to insert", i.table)
	}
	b := NewBindings()

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(i.table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(i.columns, ", "))
	sb.WriteString(") VALUES ")

	for r, row := range i.rows {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for n, v := range row {
			if n > 0 {
				sb.WriteString(", ")
			}
			if e, ok := v.(Expr); ok {
				sb.WriteString(string(e))
				continue
			}
			sb.WriteString(":")
			sb.WriteString(b.MakeAndSet(i.columns[n], v))
		}
		sb.WriteString(")")
	}

	i.bindings = b
	return sb.String(), nil
}

func (i *Insert) Bindings() *Bindings { return i.bindings }

// Update builds an UPDATE statement from a set list plus a Where clause.
type Update struct {
	table    string
	cols     []string
	values   map[string]any
	where    *Where
	bindings *Bindings
}

func NewUpdate(table string) *Update {
	return &Update{table: table, values: make(map[string]any), where: NewWhere(), bindings: NewBindings()}
}

// Set assigns one column. An Expr value is rendered verbatim, which is how
// increments ("age + 1") are expressed.
func (u *Update) Set(column string, value any) *Update {
	if _, ok := u.values[column]; !ok {
		u.cols = append(u.cols, column)
	}
	u.values[column] = value
	return u
}

// SetMap assigns columns from a map in sorted order.
func (u *Update) SetMap(values map[string]any) *Update {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		u.Set(c, values[c])
	}
	return u
}

func (u *Update) Where() *Where { return u.where }

func (u *Update) SetWhere(w *Where) *Update {
	if w != nil {
		u.where = w.Clone()
	}
	return u
}

func (u *Update) SQL() (string, error) {
	if u.table == "" {
		return "", errorf("update: table name is empty")
	}
	if len(u.cols) == 0 {
		return "", errorf("update %q: no columns to set", u.table)
	}
	b := NewBindings()

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(u.table)
	sb.WriteString(" SET ")
	for n, c := range u.cols {
		if n > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c)
		sb.WriteString(" = ")
		if e, ok := u.values[c].(Expr); ok {
			sb.WriteString(string(e))
			continue
		}
		sb.WriteString(":")
		sb.WriteString(b.MakeAndSet(c, u.values[c]))
	}
	if err := appendWhere(&sb, u.where, b); err != nil {
		return "", err
	}

	u.bindings = b
	return sb.String(), nil
}

func (u *Update) Bindings() *Bindings { return u.bindings }

// Delete builds a DELETE statement.
type Delete struct {
	table    string
	where    *Where
	bindings *Bindings
}

func NewDelete(table string) *Delete {
	return &Delete{table: table, where: NewWhere(), bindings: NewBindings()}
}

func (d *Delete) Where() *Where { return d.where }

func (d *Delete) SetWhere(w *Where) *Delete {
	if w != nil {
		d.where = w.Clone()
	}
	return d
}

func (d *Delete) SQL() (string, error) {
	if d.table == "" {
		return "", errorf("delete: table name is empty")
	}
	b := NewBindings()

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(d.table)
	if err := appendWhere(&sb, d.where, b); err != nil {
		return "", err
	}

	d.bindings = b
	return sb.String(), nil
}

func (d *Delete) Bindings() *Bindings { return d.bindings }

func appendWhere(sb *strings.Builder, w *Where, b *Bindings) error {
	if w == nil || w.IsEmpty() {
		return nil
	}
	frag, err := w.Render(b)
	if err != nil {
		return err
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(frag)
	return nil
}
