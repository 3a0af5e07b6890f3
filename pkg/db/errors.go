package db

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is the sentinel matched by errors.Is for every *NotFoundError.
var ErrNotFound = errors.New("activesql: record not found")

// Error reports a domain invariant violation detected before any SQL runs:
// a malformed condition tree, a save/destroy/reload without the required
// primary key data, a composite key mismatch.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "activesql: " + e.Reason }

func errorf(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned by the OrFail finder variants when no row matched.
// It is distinct from a plain nil result so call sites can pick either style.
type NotFoundError struct {
	Entity string
	Where  string
}

func (e *NotFoundError) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("activesql: %s: record not found", e.Entity)
	}
	return fmt.Sprintf("activesql: %s: record not found for %s", e.Entity, e.Where)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// QueryError wraps a driver-level preparation or execution failure together
// with enough context to reproduce it: the adapter name, the SQL with bound
// values substituted back in, the bindings snapshot, and whether the statement
// had reached prepared form.
type QueryError struct {
	Adapter  string
	SQL      string
	Bindings []Binding
	Prepared bool
	Err      error
}

func (e *QueryError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "activesql: query failed on adapter %q: %v", e.Adapter, e.Err)
	if e.SQL != "" {
		fmt.Fprintf(&sb, " (sql: %s)", e.SQL)
	}
	if len(e.Bindings) > 0 {
		sb.WriteString(" (bindings:")
		for _, b := range e.Bindings {
			fmt.Fprintf(&sb, " %s=%v", b.Name, b.Value)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *QueryError) Unwrap() error { return e.Err }
