package db

import (
	"fmt"
	"strings"
)

// Operator is a comparison operator accepted by the condition tree.
type Operator string

const (
	OpEq         Operator = "="
	OpNeq        Operator = "!="
	OpGt         Operator = ">"
	OpLt         Operator = "<"
	OpGte        Operator = ">="
	OpLte        Operator = "<="
	OpIs         Operator = "IS"
	OpIsNot      Operator = "IS NOT"
	OpBetween    Operator = "BETWEEN"
	OpNotBetween Operator = "NOT BETWEEN"
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT IN"
	OpLike       Operator = "LIKE"
	OpNotLike    Operator = "NOT LIKE"
)

var operators = map[Operator]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpLt: {}, OpGte: {}, OpLte: {},
	OpIs: {}, OpIsNot: {}, OpBetween: {}, OpNotBetween: {},
	OpIn: {}, OpNotIn: {}, OpLike: {}, OpNotLike: {},
}

// Expr is a raw SQL fragment rendered verbatim, never bound. It is the one
// sanctioned escape from parameter binding and must be opted into by type;
// plain string values are always bound.
type Expr string

// GroupFunc builds a parenthesized sub-group. It receives a fresh empty tree
// and must return a non-nil tree (usually the one it was given).
type GroupFunc func(*Where) *Where

const (
	linkAnd = "AND"
	linkOr  = "OR"
)

// node is one condition. Exactly one of group/field is used.
type node struct {
	link  string
	field string
	op    Operator
	value any
	group *Where
}

// Where is a composable AND/OR tree of conditions rendered to a SQL boolean
// expression plus bound parameters. The zero of NewWhere is empty; building
// errors are deferred and surface from Render.
type Where struct {
	nodes    []node
	bindings *Bindings
	err      error
}

func NewWhere() *Where {
	return &Where{bindings: NewBindings()}
}

func (w *Where) add(link, field string, op Operator, value any) *Where {
	if w.err != nil {
		return w
	}
	if _, ok := operators[op]; !ok {
		w.err = errorf("unsupported operator %q for field %q", string(op), field)
		return w
	}
	w.nodes = append(w.nodes, node{link: link, field: field, op: op, value: value})
	return w
}

// opAndValue interprets the trailing arguments of Where/OrWhere: one argument
// is a value compared with "=", two are an operator and a value.
func (w *Where) opAndValue(field string, args []any) (Operator, any, bool) {
	switch len(args) {
	case 1:
		return OpEq, args[0], true
	case 2:
		switch op := args[0].(type) {
		case Operator:
			return op, args[1], true
		case string:
			return Operator(strings.ToUpper(op)), args[1], true
		}
		w.err = errorf("operator for field %q must be a string or Operator, got %T", field, args[0])
	default:
		w.err = errorf("where on field %q takes a value or an operator and a value, got %d arguments", field, len(args))
	}
	return "", nil, false
}

// Where appends an AND condition: Where(field, value) or
// Where(field, operator, value).
func (w *Where) Where(field string, args ...any) *Where {
	if w.err != nil {
		return w
	}
	op, value, ok := w.opAndValue(field, args)
	if !ok {
		return w
	}
	return w.add(linkAnd, field, op, value)
}

// OrWhere appends an OR condition; see Where.
func (w *Where) OrWhere(field string, args ...any) *Where {
	if w.err != nil {
		return w
	}
	op, value, ok := w.opAndValue(field, args)
	if !ok {
		return w
	}
	return w.add(linkOr, field, op, value)
}

func (w *Where) group(link string, fn GroupFunc) *Where {
	if w.err != nil {
		return w
	}
	sub := fn(NewWhere())
	if sub == nil {
		w.err = errorf("where function didn't return anything")
		return w
	}
	if sub.err != nil {
		w.err = sub.err
		return w
	}
	w.nodes = append(w.nodes, node{link: link, group: sub})
	return w
}

// WhereGroup appends a parenthesized sub-group built by fn.
func (w *Where) WhereGroup(fn GroupFunc) *Where { return w.group(linkAnd, fn) }

// OrWhereGroup appends an OR-linked parenthesized sub-group built by fn.
func (w *Where) OrWhereGroup(fn GroupFunc) *Where { return w.group(linkOr, fn) }

func (w *Where) tree(link string, sub *Where) *Where {
	if w.err != nil {
		return w
	}
	if sub == nil {
		w.err = errorf("where tree is nil")
		return w
	}
	if sub.err != nil {
		w.err = sub.err
		return w
	}
	w.nodes = append(w.nodes, node{link: link, group: sub.Clone()})
	return w
}

// WhereTree grafts an existing tree in as a parenthesized sub-group. The tree
// is deep-copied, so the caller may keep mutating its own instance.
func (w *Where) WhereTree(sub *Where) *Where { return w.tree(linkAnd, sub) }

// OrWhereTree is WhereTree with an OR link.
func (w *Where) OrWhereTree(sub *Where) *Where { return w.tree(linkOr, sub) }

func (w *Where) WhereNull(field string) *Where      { return w.add(linkAnd, field, OpIs, Expr("NULL")) }
func (w *Where) OrWhereNull(field string) *Where    { return w.add(linkOr, field, OpIs, Expr("NULL")) }
func (w *Where) WhereNotNull(field string) *Where   { return w.add(linkAnd, field, OpIsNot, Expr("NULL")) }
func (w *Where) OrWhereNotNull(field string) *Where { return w.add(linkOr, field, OpIsNot, Expr("NULL")) }

func (w *Where) WhereBetween(field string, lo, hi any) *Where {
	return w.add(linkAnd, field, OpBetween, []any{lo, hi})
}

func (w *Where) OrWhereBetween(field string, lo, hi any) *Where {
	return w.add(linkOr, field, OpBetween, []any{lo, hi})
}

func (w *Where) WhereNotBetween(field string, lo, hi any) *Where {
	return w.add(linkAnd, field, OpNotBetween, []any{lo, hi})
}

func (w *Where) OrWhereNotBetween(field string, lo, hi any) *Where {
	return w.add(linkOr, field, OpNotBetween, []any{lo, hi})
}

func (w *Where) WhereIn(field string, values []any) *Where {
	return w.add(linkAnd, field, OpIn, values)
}

func (w *Where) OrWhereIn(field string, values []any) *Where {
	return w.add(linkOr, field, OpIn, values)
}

func (w *Where) WhereNotIn(field string, values []any) *Where {
	return w.add(linkAnd, field, OpNotIn, values)
}

func (w *Where) OrWhereNotIn(field string, values []any) *Where {
	return w.add(linkOr, field, OpNotIn, values)
}

func (w *Where) WhereLike(field, pattern string) *Where {
	return w.add(linkAnd, field, OpLike, pattern)
}

func (w *Where) OrWhereLike(field, pattern string) *Where {
	return w.add(linkOr, field, OpLike, pattern)
}

func (w *Where) WhereNotLike(field, pattern string) *Where {
	return w.add(linkAnd, field, OpNotLike, pattern)
}

func (w *Where) OrWhereNotLike(field, pattern string) *Where {
	return w.add(linkOr, field, OpNotLike, pattern)
}

// IsEmpty reports whether no conditions were added; callers use it to decide
// whether a WHERE clause is needed at all.
func (w *Where) IsEmpty() bool { return len(w.nodes) == 0 }

// Bindings returns the bindings produced by the most recent Render call that
// was given a nil destination.
func (w *Where) Bindings() *Bindings { return w.bindings }

// Clone deep-copies the tree: nodes, nested groups and accumulated bindings
// are all independent of the original.
func (w *Where) Clone() *Where {
	c := &Where{
		nodes:    make([]node, len(w.nodes)),
		bindings: w.bindings.Clone(),
		err:      w.err,
	}
	copy(c.nodes, w.nodes)
	for i := range c.nodes {
		if c.nodes[i].group != nil {
			c.nodes[i].group = c.nodes[i].group.Clone()
		}
	}
	return c
}

// Render walks the nodes in order and produces the SQL fragment, emitting
// bindings into b as a side effect. A nil b renders into the tree's own
// bindings. Nested groups render into a fresh instance which is then absorbed.
func (w *Where) Render(b *Bindings) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	if b == nil {
		// Parameter names differ per render, so the previous render's slots
		// are stale; start the instance bindings over.
		w.bindings = NewBindings()
		b = w.bindings
	}

	var sb strings.Builder
	for i, n := range w.nodes {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(n.link)
			sb.WriteString(" ")
		}
		if n.group != nil {
			nested := NewBindings()
			frag, err := n.group.Render(nested)
			if err != nil {
				return "", err
			}
			if err := b.Absorb(nested); err != nil {
				return "", err
			}
			sb.WriteString("(")
			sb.WriteString(frag)
			sb.WriteString(")")
			continue
		}
		frag, err := renderNode(n, b)
		if err != nil {
			return "", err
		}
		sb.WriteString(frag)
	}
	return sb.String(), nil
}

func renderNode(n node, b *Bindings) (string, error) {
	if e, ok := n.value.(Expr); ok {
		return fmt.Sprintf("%s %s %s", n.field, n.op, string(e)), nil
	}

	switch n.op {
	case OpBetween, OpNotBetween:
		pair, ok := n.value.([]any)
		if !ok || len(pair) != 2 {
			return "", errorf("%s on field %q requires exactly two values", n.op, n.field)
		}
		lo := b.MakeAndSet(n.field, pair[0])
		hi := b.MakeAndSet(n.field, pair[1])
		return fmt.Sprintf("(%s %s :%s AND :%s)", n.field, n.op, lo, hi), nil

	case OpIn, OpNotIn:
		values, ok := n.value.([]any)
		if !ok || len(values) == 0 {
			return "", errorf("%s on field %q requires a non-empty list of values", n.op, n.field)
		}
		names := make([]string, len(values))
		for i, v := range values {
			names[i] = ":" + b.MakeAndSet(n.field, v)
		}
		return fmt.Sprintf("(%s %s (%s))", n.field, n.op, strings.Join(names, ",")), nil

	case OpIs, OpIsNot:
		if n.value == nil {
			return fmt.Sprintf("%s %s NULL", n.field, n.op), nil
		}
		return "", errorf("%s on field %q accepts only NULL", n.op, n.field)

	default:
		if _, isSlice := n.value.([]any); isSlice {
			return "", errorf("operator %q on field %q does not accept a list of values", n.op, n.field)
		}
		name := b.MakeAndSet(n.field, n.value)
		return fmt.Sprintf("%s %s :%s", n.field, n.op, name), nil
	}
}
