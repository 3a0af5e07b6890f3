package db

import (
	"fmt"
	"iter"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Row is a single record keyed by column name.
type Row map[string]any

// Statement is anything that can produce SQL text plus the bindings that go
// with it: the Select/Insert/Update/Delete builders, or ad-hoc caller types.
type Statement interface {
	SQL() (string, error)
	Bindings() *Bindings
}

// Query owns one SQL statement and its bindings, and executes it against an
// adapter resolved through the registry. It holds mutable executed-state tied
// to one prepared handle, so an instance is single-use and must not be shared
// between concurrent callers.
type Query struct {
	reg      *Registry
	stmt     any // string or Statement
	bindings *Bindings
	adapter  string

	executed bool
	buildErr error
	sqlText  string
	rows     *sqlx.Rows
	result   interface {
		LastInsertId() (int64, error)
		RowsAffected() (int64, error)
	}
}

// NewQuery builds an executor around raw SQL (string) or a Statement.
func NewQuery(reg *Registry, stmt any) *Query {
	return &Query{reg: reg, stmt: stmt, bindings: NewBindings()}
}

// OnAdapter selects the logical connection; empty means the default.
func (q *Query) OnAdapter(name string) *Query {
	q.adapter = name
	return q
}

// WithBindings replaces the query's bindings.
func (q *Query) WithBindings(b *Bindings) *Query {
	if b != nil {
		q.bindings = b
	}
	return q
}

// Bind sets one named parameter. Errors (duplicate names) surface from Exec.
func (q *Query) Bind(name string, value any) *Query {
	if err := q.bindings.Set(name, value); err != nil {
		q.stmtErr(err)
	}
	return q
}

// BindMap sets parameters from a map, in sorted key order.
func (q *Query) BindMap(values map[string]any) *Query {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Bind(k, values[k])
	}
	return q
}

func (q *Query) stmtErr(err error) {
	if q.buildErr == nil {
		q.buildErr = err
	}
}

// resolveSQL materializes the SQL text, folding a Statement's bindings into
// the query's own.
func (q *Query) resolveSQL() (string, error) {
	if q.sqlText != "" {
		return q.sqlText, nil
	}
	switch s := q.stmt.(type) {
	case string:
		q.sqlText = s
	case Statement:
		text, err := s.SQL()
		if err != nil {
			return "", err
		}
		if err := q.bindings.Absorb(s.Bindings()); err != nil {
			return "", err
		}
		q.sqlText = text
	default:
		return "", errorf("query statement must be a string or Statement, got %T", q.stmt)
	}
	return q.sqlText, nil
}

var placeholderRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// checkPlaceholders catches a placeholder/bindings mismatch before the driver
// does, with a clearer message than the driver would produce.
func (q *Query) checkPlaceholders(sqlText string) error {
	var missing []string
	for _, m := range placeholderRe.FindAllStringSubmatch(sqlText, -1) {
		if !q.bindings.Has(m[1]) {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		return errorf("statement expects %d parameter(s) with no binding: %s",
			len(missing), strings.Join(missing, ", "))
	}
	return nil
}

// selectish reports whether the statement produces a result set, which
// decides between Queryx and Exec on the prepared handle.
func selectish(sqlText string) bool {
	head := strings.ToUpper(firstWord(sqlText))
	switch head {
	case "SELECT", "WITH", "PRAGMA", "SHOW", "EXPLAIN", "VALUES", "DESCRIBE":
		return true
	}
	return false
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' {
			return s[:i]
		}
	}
	return s
}

// Exec prepares and runs the statement. It is idempotent: once executed,
// further calls (including the implicit ones from the fetch methods) are
// no-ops. Driver failures come back as *QueryError.
func (q *Query) Exec() error {
	if q.executed {
		return nil
	}
	if q.buildErr != nil {
		return q.buildErr
	}

	sqlText, err := q.resolveSQL()
	if err != nil {
		return err
	}
	if err := q.checkPlaceholders(sqlText); err != nil {
		return q.failure(err, false)
	}

	adapter, err := q.reg.Adapter(q.adapter)
	if err != nil {
		return err
	}
	stmt, err := adapter.Prepare(sqlText)
	if err != nil {
		return q.failure(err, false)
	}

	args := q.bindings.Map()
	if selectish(sqlText) {
		rows, err := stmt.Queryx(args)
		if err != nil {
			return q.failure(err, true)
		}
		q.rows = rows
	} else {
		res, err := stmt.Exec(args)
		if err != nil {
			return q.failure(err, true)
		}
		q.result = res
	}
	q.executed = true

	logged, err := q.Debug(true)
	if err != nil {
		logged = sqlText
	}
	logger.Printf("query executed on %q: %s", q.adapterName(), logged)
	return nil
}

func (q *Query) adapterName() string {
	if q.adapter != "" {
		return q.adapter
	}
	return "default"
}

// failure wraps a low-level error with the adapter name, the reconstructed
// debug SQL and the bindings snapshot, and logs it.
func (q *Query) failure(err error, prepared bool) error {
	debugSQL, derr := q.Debug(true)
	if derr != nil {
		debugSQL = q.sqlText
	}
	qe := &QueryError{
		Adapter:  q.adapterName(),
		SQL:      debugSQL,
		Bindings: q.bindings.List(),
		Prepared: prepared,
		Err:      err,
	}
	logger.Printf("query failed on %q: %v", qe.Adapter, qe)
	return qe
}

// Debug re-renders the SQL with every bound parameter substituted by its
// literal representation. For logging and diagnostics only; the result is
// never executed. Value kinds with no literal form raise an error instead of
// being silently stringified.
func (q *Query) Debug(oneLine bool) (string, error) {
	sqlText, err := q.resolveSQL()
	if err != nil {
		return "", err
	}
	out, err := substitutePlaceholders(sqlText, q.bindings.Map())
	if err != nil {
		return "", err
	}
	if oneLine {
		out = strings.Join(strings.Fields(out), " ")
	}
	return out, nil
}

// substitutePlaceholders inlines bound values into the segments of sqlText
// outside single-quoted literals. Quoted runs (including '' escapes) pass
// through untouched, so placeholder-shaped text inside them stays intact.
func substitutePlaceholders(sqlText string, values map[string]any) (string, error) {
	var sb strings.Builder
	var substErr error
	replace := func(segment string) {
		sb.WriteString(placeholderRe.ReplaceAllStringFunc(segment, func(token string) string {
			v, ok := values[token[1:]]
			if !ok {
				return token
			}
			lit, err := literal(v)
			if err != nil {
				if substErr == nil {
					substErr = err
				}
				return token
			}
			return lit
		}))
	}

	start := 0
	for i := 0; i < len(sqlText); i++ {
		if sqlText[i] != '\'' {
			continue
		}
		replace(sqlText[start:i])
		end := i + 1
		for end < len(sqlText) {
			if sqlText[end] != '\'' {
				end++
				continue
			}
			if end+1 < len(sqlText) && sqlText[end+1] == '\'' {
				end += 2
				continue
			}
			end++
			break
		}
		sb.WriteString(sqlText[i:end])
		start = end
		i = end - 1
	}
	replace(sqlText[start:])

	if substErr != nil {
		return "", substErr
	}
	return sb.String(), nil
}

// literal renders one bound value as a SQL literal.
func literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case []byte:
		return "'" + strings.ReplaceAll(string(x), "'", "''") + "'", nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(x), nil
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", x), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return "'" + x.Format(time.RFC3339) + "'", nil
	case Expr:
		return string(x), nil
	default:
		return "", errorf("cannot render %T as a SQL literal", v)
	}
}

func (q *Query) ensureExecuted() error {
	if q.executed {
		return nil
	}
	return q.Exec()
}

// FetchAll returns every row as an ordered column map. Executes the query if
// Exec was not called yet.
func (q *Query) FetchAll() ([]Row, error) {
	if err := q.ensureExecuted(); err != nil {
		return nil, err
	}
	if q.rows == nil {
		return nil, errorf("statement did not produce a result set")
	}
	defer q.rows.Close()

	var out []Row
	for q.rows.Next() {
		row := make(Row)
		if err := q.rows.MapScan(row); err != nil {
			return nil, q.failure(err, true)
		}
		normalizeRow(row)
		out = append(out, row)
	}
	if err := q.rows.Err(); err != nil {
		return nil, q.failure(err, true)
	}
	return out, nil
}

// FetchRow returns the first row, or nil when the result set is empty. The
// remainder of the result set is discarded.
func (q *Query) FetchRow() (Row, error) {
	if err := q.ensureExecuted(); err != nil {
		return nil, err
	}
	if q.rows == nil {
		return nil, errorf("statement did not produce a result set")
	}
	defer q.rows.Close()

	if !q.rows.Next() {
		if err := q.rows.Err(); err != nil {
			return nil, q.failure(err, true)
		}
		return nil, nil
	}
	row := make(Row)
	if err := q.rows.MapScan(row); err != nil {
		return nil, q.failure(err, true)
	}
	normalizeRow(row)
	return row, nil
}

// Rows returns a lazy, single-pass sequence over the result set. Nothing is
// materialized up front; stopping the iteration closes the cursor. The
// sequence is not restartable.
func (q *Query) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if err := q.ensureExecuted(); err != nil {
			yield(nil, err)
			return
		}
		if q.rows == nil {
			yield(nil, errorf("statement did not produce a result set"))
			return
		}
		defer q.rows.Close()

		for q.rows.Next() {
			row := make(Row)
			if err := q.rows.MapScan(row); err != nil {
				yield(nil, q.failure(err, true))
				return
			}
			normalizeRow(row)
			if !yield(row, nil) {
				return
			}
		}
		if err := q.rows.Err(); err != nil {
			yield(nil, q.failure(err, true))
		}
	}
}

// FetchAllAs scans every row into T via struct tags (sqlx StructScan).
func FetchAllAs[T any](q *Query) ([]T, error) {
	if err := q.ensureExecuted(); err != nil {
		return nil, err
	}
	if q.rows == nil {
		return nil, errorf("statement did not produce a result set")
	}
	defer q.rows.Close()

	var out []T
	for q.rows.Next() {
		var item T
		if err := q.rows.StructScan(&item); err != nil {
			return nil, q.failure(err, true)
		}
		out = append(out, item)
	}
	if err := q.rows.Err(); err != nil {
		return nil, q.failure(err, true)
	}
	return out, nil
}

// AffectedRows reports the row count of an executed write statement.
func (q *Query) AffectedRows() (int64, error) {
	if err := q.ensureExecuted(); err != nil {
		return 0, err
	}
	if q.result == nil {
		return 0, errorf("statement did not report affected rows")
	}
	return q.result.RowsAffected()
}

// LastInsertID reports the generated key of an executed insert. It reads from
// the statement's own result, so it is correct even with pooled connections.
func (q *Query) LastInsertID() (int64, error) {
	if err := q.ensureExecuted(); err != nil {
		return 0, err
	}
	if q.result == nil {
		return 0, errorf("statement did not report a generated key")
	}
	return q.result.LastInsertId()
}

// normalizeRow converts driver byte slices to strings so map rows compare and
// print predictably across engines.
func normalizeRow(row Row) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}
