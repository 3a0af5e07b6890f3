package db

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Definition describes one entity: its table, primary key and connection.
// Zero values get sensible defaults: the table name is derived from Name
// (separators become underscores, lower-cased), the primary key is "id", and
// keys auto-increment unless NoAutoIncrement is set.
type Definition struct {
	Name            string
	Table           string
	PrimaryKey      []string
	NoAutoIncrement bool
	Adapter         string
}

func (d Definition) normalized() Definition {
	if d.Table == "" {
		d.Table = defaultTableName(d.Name)
	}
	if len(d.PrimaryKey) == 0 {
		d.PrimaryKey = []string{"id"}
	}
	return d
}

func defaultTableName(name string) string {
	r := strings.NewReplacer(".", "_", "/", "_", "\\", "_", "-", "_", " ", "_")
	return strings.ToLower(r.Replace(name))
}

// Entity is the per-entity handle carrying the static operation surface:
// finders, counters and mutators that translate a where-like argument into
// condition trees and delegate to the statement builders and executor.
type Entity struct {
	reg *Registry
	def Definition
}

func NewEntity(reg *Registry, def Definition) *Entity {
	return &Entity{reg: reg, def: def.normalized()}
}

func (e *Entity) Definition() Definition { return e.def }
func (e *Entity) Table() string          { return e.def.Table }

// toWhere translates the where-like argument every finder accepts: nil (no
// conditions), a *Where tree (used as-is), a column map (AND of equalities,
// nil values as IS NULL, slices as IN), or a scalar matched against a
// single-column primary key.
func (e *Entity) toWhere(where any) (*Where, error) {
	switch x := where.(type) {
	case nil:
		return NewWhere(), nil
	case *Where:
		return x, nil
	case map[string]any:
		w := NewWhere()
		cols := make([]string, 0, len(x))
		for c := range x {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			switch v := x[c].(type) {
			case nil:
				w.WhereNull(c)
			case []any:
				w.WhereIn(c, v)
			default:
				w.Where(c, v)
			}
		}
		return w, nil
	default:
		if len(e.def.PrimaryKey) != 1 {
			return nil, errorf("%s: scalar lookup needs a single-column primary key, have %d columns",
				e.def.Name, len(e.def.PrimaryKey))
		}
		return NewWhere().Where(e.def.PrimaryKey[0], where), nil
	}
}

func (e *Entity) selectStmt(where any, fields ...string) (*Select, error) {
	w, err := e.toWhere(where)
	if err != nil {
		return nil, err
	}
	s := NewSelect(e.def.Table).SetWhere(w)
	if len(fields) > 0 {
		s.Fields(fields...)
	}
	return s, nil
}

func (e *Entity) query(stmt any) *Query {
	return NewQuery(e.reg, stmt).OnAdapter(e.def.Adapter)
}

// Create inserts unconditionally. When the primary key auto-increments and no
// value was supplied, the generated key is fetched right after the insert and
// folded into the returned record.
func (e *Entity) Create(data map[string]any) (*Record, error) {
	if len(data) == 0 {
		return nil, errorf("%s: create needs a non-empty data map", e.def.Name)
	}
	q := e.query(NewInsert(e.def.Table).Add(data))
	if err := q.Exec(); err != nil {
		return nil, err
	}

	rec := e.record(data)
	if e.autoIncrement() {
		pk := e.def.PrimaryKey[0]
		if _, supplied := data[pk]; !supplied {
			id, err := q.LastInsertID()
			if err != nil {
				return nil, err
			}
			rec.Set(pk, id)
		}
	}
	rec.markPersisted()
	return rec, nil
}

func (e *Entity) autoIncrement() bool {
	return !e.def.NoAutoIncrement && len(e.def.PrimaryKey) == 1
}

// FetchOne returns the first matching record, or nil when nothing matched.
func (e *Entity) FetchOne(where any) (*Record, error) {
	s, err := e.selectStmt(where)
	if err != nil {
		return nil, err
	}
	s.Limit(1)
	row, err := e.query(s).FetchRow()
	if err != nil || row == nil {
		return nil, err
	}
	rec := e.record(row)
	rec.markPersisted()
	return rec, nil
}

// FetchOneOrFail is FetchOne with an empty result turned into *NotFoundError.
func (e *Entity) FetchOneOrFail(where any) (*Record, error) {
	rec, err := e.FetchOne(where)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &NotFoundError{Entity: e.def.Name, Where: fmt.Sprintf("%v", where)}
	}
	return rec, nil
}

// Fetch returns every matching record.
func (e *Entity) Fetch(where any, fields ...string) ([]*Record, error) {
	s, err := e.selectStmt(where, fields...)
	if err != nil {
		return nil, err
	}
	rows, err := e.query(s).FetchAll()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec := e.record(row)
		rec.markPersisted()
		out = append(out, rec)
	}
	return out, nil
}

// FetchWithKey returns matching records keyed by their primary key value.
// Requires a single-column key.
func (e *Entity) FetchWithKey(where any) (map[any]*Record, error) {
	if len(e.def.PrimaryKey) != 1 {
		return nil, errorf("%s: FetchWithKey needs a single-column primary key", e.def.Name)
	}
	records, err := e.Fetch(where)
	if err != nil {
		return nil, err
	}
	pk := e.def.PrimaryKey[0]
	out := make(map[any]*Record, len(records))
	for _, rec := range records {
		key, err := rec.Get(pk)
		if err != nil {
			return nil, err
		}
		out[key] = rec
	}
	return out, nil
}

// All returns every record of the table, optionally ordered.
func (e *Entity) All(orderField, orderDirection string) ([]*Record, error) {
	s := NewSelect(e.def.Table)
	if orderField != "" {
		s.OrderBy(orderField, orderDirection)
	}
	rows, err := e.query(s).FetchAll()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec := e.record(row)
		rec.markPersisted()
		out = append(out, rec)
	}
	return out, nil
}

// FetchKeyValue returns a keyField → valueField projection of the matches.
func (e *Entity) FetchKeyValue(keyField, valueField string, where any) (map[any]any, error) {
	s, err := e.selectStmt(where, keyField, valueField)
	if err != nil {
		return nil, err
	}
	rows, err := e.query(s).FetchAll()
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, len(rows))
	for _, row := range rows {
		out[row[keyField]] = row[valueField]
	}
	return out, nil
}

// FetchArrayOf returns the single field from every matching row.
func (e *Entity) FetchArrayOf(field string, where any) ([]any, error) {
	s, err := e.selectStmt(where, field)
	if err != nil {
		return nil, err
	}
	rows, err := e.query(s).FetchAll()
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row[field])
	}
	return out, nil
}

// FetchOneValue returns the field from the first matching row, nil if none.
func (e *Entity) FetchOneValue(field string, where any) (any, error) {
	s, err := e.selectStmt(where, field)
	if err != nil {
		return nil, err
	}
	s.Limit(1)
	row, err := e.query(s).FetchRow()
	if err != nil || row == nil {
		return nil, err
	}
	return row[field], nil
}

// FetchOneValueOrFail is FetchOneValue with an empty result turned into
// *NotFoundError.
func (e *Entity) FetchOneValueOrFail(field string, where any) (any, error) {
	v, err := e.FetchOneValue(field, where)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &NotFoundError{Entity: e.def.Name, Where: fmt.Sprintf("%v", where)}
	}
	return v, nil
}

// Count returns the number of matching rows.
func (e *Entity) Count(where any) (int64, error) {
	s, err := e.selectStmt(where, "COUNT(*) AS total")
	if err != nil {
		return 0, err
	}
	row, err := e.query(s).FetchRow()
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return toInt64(row["total"])
}

// IsUnique reports whether no row holds value in field, optionally excluding
// rows where field equals exception (the record being edited, typically).
func (e *Entity) IsUnique(field string, value, exception any) (bool, error) {
	w := NewWhere().Where(field, value)
	if exception != nil {
		w.Where(field, OpNeq, exception)
	}
	n, err := e.Count(w)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Increment adds amount to field on every matching row and returns the
// affected row count.
func (e *Entity) Increment(field string, where any, amount int) (int64, error) {
	w, err := e.toWhere(where)
	if err != nil {
		return 0, err
	}
	u := NewUpdate(e.def.Table).
		Set(field, Expr(fmt.Sprintf("%s + %d", field, amount))).
		SetWhere(w)
	return e.query(u).AffectedRows()
}

// Update applies the data map to every matching row, returning the affected
// row count.
func (e *Entity) Update(data map[string]any, where any) (int64, error) {
	if len(data) == 0 {
		return 0, errorf("%s: update needs a non-empty data map", e.def.Name)
	}
	w, err := e.toWhere(where)
	if err != nil {
		return 0, err
	}
	u := NewUpdate(e.def.Table).SetMap(data).SetWhere(w)
	return e.query(u).AffectedRows()
}

// Delete removes every matching row, returning the affected row count.
func (e *Entity) Delete(where any) (int64, error) {
	w, err := e.toWhere(where)
	if err != nil {
		return 0, err
	}
	d := NewDelete(e.def.Table).SetWhere(w)
	return e.query(d).AffectedRows()
}

// Select returns a select builder over the entity's table, for queries the
// canned finders do not cover.
func (e *Entity) Select() *Select { return NewSelect(e.def.Table) }

// Begin, Commit and Rollback forward to the entity's adapter; the adapter
// owns transaction depth.

func (e *Entity) Begin() error {
	a, err := e.reg.Adapter(e.def.Adapter)
	if err != nil {
		return err
	}
	return a.Begin()
}

func (e *Entity) Commit() error {
	a, err := e.reg.Adapter(e.def.Adapter)
	if err != nil {
		return err
	}
	return a.Commit()
}

func (e *Entity) Rollback() error {
	a, err := e.reg.Adapter(e.def.Adapter)
	if err != nil {
		return err
	}
	return a.Rollback()
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		var n int64
		_, err := fmt.Sscan(string(x), &n)
		return n, err
	case string:
		var n int64
		_, err := fmt.Sscan(x, &n)
		return n, err
	default:
		return 0, errorf("cannot read %T as a row count", v)
	}
}

// SaveNoop is returned by Record.Save when the dirty diff was empty and no
// database round-trip occurred. It is a success variant, not a failure code,
// and is distinct from a real affected-row count of zero (an UPDATE that ran
// but matched nothing).
const SaveNoop int64 = -1

// Record is one entity instance tracking its last-known-persisted state
// against its current in-memory state. original is nil exactly when the
// record was never associated with a stored row.
type Record struct {
	entity   *Entity
	keys     []string
	data     map[string]any
	original map[string]any
}

// NewRecord builds a record. When the initial data carries every primary key
// column the record is considered already persisted.
func (e *Entity) NewRecord(data map[string]any) *Record {
	rec := e.record(data)
	if data != nil && len(e.missingKeyColumns(data)) == 0 {
		rec.markPersisted()
	}
	return rec
}

func (e *Entity) record(data map[string]any) *Record {
	rec := &Record{entity: e}
	if data != nil {
		rec.data = make(map[string]any, len(data))
		cols := make([]string, 0, len(data))
		for c := range data {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			rec.keys = append(rec.keys, c)
			rec.data[c] = data[c]
		}
	}
	return rec
}

func (e *Entity) missingKeyColumns(data map[string]any) []string {
	var missing []string
	for _, pk := range e.def.PrimaryKey {
		if _, ok := data[pk]; !ok {
			missing = append(missing, pk)
		}
	}
	return missing
}

func (r *Record) Entity() *Entity { return r.entity }

// Get returns the value of a column. Reading before any data was set is an
// error, matching the original dynamic-property semantics.
func (r *Record) Get(key string) (any, error) {
	if r.data == nil {
		return nil, errorf("%s: record data was never set", r.entity.def.Name)
	}
	return r.data[key], nil
}

// Set assigns a column on the in-memory record; nothing is written until
// Save.
func (r *Record) Set(key string, value any) *Record {
	if r.data == nil {
		r.data = make(map[string]any)
	}
	if _, ok := r.data[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.data[key] = value
	return r
}

// Data returns a copy of the current in-memory state.
func (r *Record) Data() (map[string]any, error) {
	if r.data == nil {
		return nil, errorf("%s: record data was never set", r.entity.def.Name)
	}
	out := make(map[string]any, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out, nil
}

// IsPersisted reports whether the record is associated with a stored row.
func (r *Record) IsPersisted() bool { return r.original != nil }

func (r *Record) markPersisted() {
	r.original = make(map[string]any, len(r.data))
	for k, v := range r.data {
		r.original[k] = v
	}
}

// Save writes the record. A never-persisted record is inserted; a persisted
// one gets an UPDATE touching exactly the changed columns. An empty diff
// returns SaveNoop without any database round-trip. Composite keys must be
// fully present before anything is sent to storage.
func (r *Record) Save() (int64, error) {
	if r.data == nil {
		return 0, errorf("%s: cannot save a record with no data", r.entity.def.Name)
	}
	if r.original == nil {
		return r.insert()
	}
	if missing := r.entity.missingKeyColumns(r.original); len(missing) > 0 {
		return 0, errorf("%s: cannot save, primary key column(s) missing: %s",
			r.entity.def.Name, strings.Join(missing, ", "))
	}

	toUpdate := r.changedColumns()
	if len(toUpdate) == 0 {
		return SaveNoop, nil
	}

	u := NewUpdate(r.entity.def.Table)
	for _, c := range toUpdate {
		u.Set(c, r.data[c])
	}
	w := NewWhere()
	for _, pk := range r.entity.def.PrimaryKey {
		w.Where(pk, r.original[pk])
	}
	u.SetWhere(w)

	affected, err := r.entity.query(u).AffectedRows()
	if err != nil {
		return 0, err
	}
	r.markPersisted()
	return affected, nil
}

func (r *Record) insert() (int64, error) {
	data, err := r.Data()
	if err != nil {
		return 0, err
	}
	q := r.entity.query(NewInsert(r.entity.def.Table).Add(data))
	if err := q.Exec(); err != nil {
		return 0, err
	}
	if r.entity.autoIncrement() {
		pk := r.entity.def.PrimaryKey[0]
		if _, supplied := data[pk]; !supplied {
			id, err := q.LastInsertID()
			if err != nil {
				return 0, err
			}
			r.Set(pk, id)
		}
	}
	r.markPersisted()
	return q.AffectedRows()
}

// changedColumns diffs current against original data in column order.
//
// Comparison policy: two values are unchanged when they are equal under
// strict comparison or, for two scalar values, when their printed forms
// match ("5" and 5 are the same value). Composite values fall back to
// reflect.DeepEqual. This deliberately loose scalar policy avoids spurious
// updates from type coercion and is part of the observable contract.
func (r *Record) changedColumns() []string {
	var changed []string
	for _, c := range r.keys {
		original, existed := r.original[c]
		if !existed || !valuesEqual(original, r.data[c]) {
			changed = append(changed, c)
		}
	}
	return changed
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isScalar(a) && isScalar(b) {
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
	return reflect.DeepEqual(a, b)
}

func isScalar(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	}
	return false
}

// pkWhere builds the primary key condition from the current data; every key
// column must be present.
func (r *Record) pkWhere() (*Where, error) {
	if r.data == nil {
		return nil, errorf("%s: record data was never set", r.entity.def.Name)
	}
	if missing := r.entity.missingKeyColumns(r.data); len(missing) > 0 {
		return nil, errorf("%s: primary key column(s) missing: %s",
			r.entity.def.Name, strings.Join(missing, ", "))
	}
	w := NewWhere()
	for _, pk := range r.entity.def.PrimaryKey {
		w.Where(pk, r.data[pk])
	}
	return w, nil
}

// Reload re-fetches the record by primary key and replaces both current and
// original data with the fresh row. A concurrently deleted row surfaces as
// *NotFoundError.
func (r *Record) Reload() error {
	w, err := r.pkWhere()
	if err != nil {
		return err
	}
	s := NewSelect(r.entity.def.Table).SetWhere(w).Limit(1)
	row, err := r.entity.query(s).FetchRow()
	if err != nil {
		return err
	}
	if row == nil {
		return &NotFoundError{Entity: r.entity.def.Name, Where: "reload by primary key"}
	}

	fresh := r.entity.record(row)
	r.keys = fresh.keys
	r.data = fresh.data
	r.markPersisted()
	return nil
}

// Destroy deletes the stored row. The in-memory object stays usable but is
// orphaned from storage; a later Save would insert it again.
func (r *Record) Destroy() (int64, error) {
	w, err := r.pkWhere()
	if err != nil {
		return 0, err
	}
	d := NewDelete(r.entity.def.Table).SetWhere(w)
	affected, err := r.entity.query(d).AffectedRows()
	if err != nil {
		return 0, err
	}
	r.original = nil
	return affected, nil
}
