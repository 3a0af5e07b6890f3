package db

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// bindSeq is process-wide so that two trees rendered into the same statement
// can never hand out the same parameter name. It wraps well below the point
// where the counter suffix would overflow anything.
var bindSeq atomic.Uint64

const bindSeqWrap = 1_000_000_000

func nextBindSeq() uint64 {
	return bindSeq.Add(1) % bindSeqWrap
}

// Binding is one named parameter slot and its value.
type Binding struct {
	Name  string
	Value any
}

// Bindings is an ordered collection of named parameter slots. Names are
// unique within one instance; iteration order matches insertion order.
// Instances are cheap and never shared between unrelated queries.
type Bindings struct {
	index map[string]int
	list  []Binding
}

func NewBindings() *Bindings {
	return &Bindings{index: make(map[string]int)}
}

// MakeAndSet derives a collision-free parameter name from field, stores the
// value under it and returns the name. Repeated use of the same field (IN,
// BETWEEN) yields distinct names thanks to the process-wide counter.
func (b *Bindings) MakeAndSet(field string, value any) string {
	name := bindParamToken(field)
	// Uniqueness comes from the counter; the loop only covers the counter
	// wrapping onto a name this instance already holds.
	for {
		candidate := name + "_" + strconv.FormatUint(nextBindSeq(), 10)
		if _, taken := b.index[candidate]; !taken {
			b.set(candidate, value)
			return candidate
		}
	}
}

// Set stores a value under an explicit name. Duplicate names are rejected.
func (b *Bindings) Set(name string, value any) error {
	if _, taken := b.index[name]; taken {
		return errorf("bind parameter %q is already set", name)
	}
	b.set(name, value)
	return nil
}

func (b *Bindings) set(name string, value any) {
	b.index[name] = len(b.list)
	b.list = append(b.list, Binding{Name: name, Value: value})
}

// Absorb appends every entry from other, used when a nested condition
// sub-tree is flattened into its parent.
func (b *Bindings) Absorb(other *Bindings) error {
	if other == nil {
		return nil
	}
	for _, e := range other.list {
		if err := b.Set(e.Name, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// List returns the entries in insertion order.
func (b *Bindings) List() []Binding {
	out := make([]Binding, len(b.list))
	copy(out, b.list)
	return out
}

// Map returns the name to value mapping handed to the driver.
func (b *Bindings) Map() map[string]any {
	out := make(map[string]any, len(b.list))
	for _, e := range b.list {
		out[e.Name] = e.Value
	}
	return out
}

func (b *Bindings) Len() int { return len(b.list) }

// Has reports whether a parameter name is set.
func (b *Bindings) Has(name string) bool {
	_, ok := b.index[name]
	return ok
}

// Clone returns an independent copy; mutating one never affects the other.
func (b *Bindings) Clone() *Bindings {
	c := NewBindings()
	for _, e := range b.list {
		c.set(e.Name, e.Value)
	}
	return c
}

// bindParamToken strips the characters that are illegal in a bind-parameter
// token (dots, parentheses, the * wildcard) and lower-cases the rest.
func bindParamToken(field string) string {
	var sb strings.Builder
	for _, r := range field {
		switch r {
		case '.', '(', ')', '*', ' ':
			// dropped
		default:
			sb.WriteRune(r)
		}
	}
	token := strings.ToLower(sb.String())
	if token == "" {
		token = "p"
	}
	return token
}
