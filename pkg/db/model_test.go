package db

import (
	"strings"
	"testing"
)

func TestDefinitionDefaults(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "App.Models.UserProfile"})
	def := e.Definition()
	if def.Table != "app_models_userprofile" {
		t.Errorf("table = %q", def.Table)
	}
	if len(def.PrimaryKey) != 1 || def.PrimaryKey[0] != "id" {
		t.Errorf("pk = %v", def.PrimaryKey)
	}
	if !e.autoIncrement() {
		t.Error("auto-increment should default on")
	}
}

func TestDefinitionNoAutoIncrementForComposite(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "member", PrimaryKey: []string{"group_id", "user_id"}})
	if e.autoIncrement() {
		t.Error("composite keys never auto-increment")
	}
}

func TestToWhereScalar(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "user"})
	w, err := e.toWhere(5)
	if err != nil {
		t.Fatalf("toWhere failed: %v", err)
	}
	frag, _ := w.Render(NewBindings())
	if !strings.HasPrefix(frag, "id = :") {
		t.Errorf("frag = %q", frag)
	}
}

func TestToWhereScalarCompositeKeyFails(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "member", PrimaryKey: []string{"a", "b"}})
	if _, err := e.toWhere(5); err == nil {
		t.Fatal("scalar lookup against a composite key should fail")
	}
}

func TestToWhereMap(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "user"})
	w, err := e.toWhere(map[string]any{
		"role":       "admin",
		"deleted_at": nil,
		"id":         []any{1, 2},
	})
	if err != nil {
		t.Fatalf("toWhere failed: %v", err)
	}
	b := NewBindings()
	frag, err := w.Render(b)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(frag, "deleted_at IS NULL") {
		t.Errorf("frag = %q", frag)
	}
	if !strings.Contains(frag, "id IN (:") {
		t.Errorf("frag = %q", frag)
	}
	if !strings.Contains(frag, "role = :") {
		t.Errorf("frag = %q", frag)
	}
	if b.Len() != 3 {
		t.Errorf("bindings = %d, want 3", b.Len())
	}
}

func TestToWhereTreePassthrough(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "user"})
	in := NewWhere().Where("a", 1)
	out, err := e.toWhere(in)
	if err != nil {
		t.Fatalf("toWhere failed: %v", err)
	}
	if out != in {
		t.Error("an explicit tree should pass through unchanged")
	}
}

func TestValuesEqualPolicy(t *testing.T) {
	cases := []struct {
		a, b any
		want bool
	}{
		{5, 5, true},
		{5, "5", true}, // scalar string-form fallback
		{int64(5), 5, true},
		{5.0, "5", true},
		{5, 6, false},
		{"a", "b", false},
		{nil, nil, true},
		{nil, 0, false},
		{true, true, true},
		{[]any{1}, []any{1}, true},
		{[]any{1}, []any{2}, false},
	}
	for _, c := range cases {
		if got := valuesEqual(c.a, c.b); got != c.want {
			t.Errorf("valuesEqual(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestChangedColumns(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "user"})
	rec := e.NewRecord(map[string]any{"id": 1, "name": "Ann", "age": 30})
	if !rec.IsPersisted() {
		t.Fatal("record with pk data should start persisted")
	}
	if changed := rec.changedColumns(); len(changed) != 0 {
		t.Fatalf("fresh record reports changes: %v", changed)
	}

	rec.Set("age", "30") // same scalar value, different type
	if changed := rec.changedColumns(); len(changed) != 0 {
		t.Errorf("type-coerced equal value reported as change: %v", changed)
	}

	rec.Set("name", "Zoe")
	changed := rec.changedColumns()
	if len(changed) != 1 || changed[0] != "name" {
		t.Errorf("changed = %v, want [name]", changed)
	}

	rec.Set("email", "z@example.com")
	changed = rec.changedColumns()
	if len(changed) != 2 {
		t.Errorf("changed = %v, want name and email", changed)
	}
}

func TestRecordNotPersistedWithoutKey(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "user"})
	rec := e.NewRecord(map[string]any{"name": "Ann"})
	if rec.IsPersisted() {
		t.Error("record without pk data must not start persisted")
	}
}

func TestRecordGetBeforeDataSet(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "user"})
	rec := e.NewRecord(nil)
	if _, err := rec.Get("name"); err == nil {
		t.Fatal("reading a record with no data should raise")
	}
	if _, err := rec.Data(); err == nil {
		t.Fatal("Data on a record with no data should raise")
	}
	rec.Set("name", "Ann")
	if v, err := rec.Get("name"); err != nil || v != "Ann" {
		t.Errorf("Get after Set = %v, %v", v, err)
	}
}

func TestSaveRequiresCompositeKeyColumns(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "member", PrimaryKey: []string{"group_id", "user_id"}})
	rec := e.NewRecord(map[string]any{"group_id": 1, "user_id": 2, "role": "admin"})
	// Drop a key column from the persisted snapshot to simulate a bad load.
	delete(rec.original, "user_id")

	rec.Set("role", "owner")
	if _, err := rec.Save(); err == nil {
		t.Fatal("save with a missing composite key column should raise before any SQL")
	}
}

func TestDestroyRequiresKey(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "user"})
	rec := e.NewRecord(map[string]any{"name": "Ann"})
	if _, err := rec.Destroy(); err == nil {
		t.Fatal("destroy without pk data should raise")
	}
}

func TestReloadRequiresKey(t *testing.T) {
	e := NewEntity(nil, Definition{Name: "user"})
	rec := e.NewRecord(map[string]any{"name": "Ann"})
	if err := rec.Reload(); err == nil {
		t.Fatal("reload without pk data should raise")
	}
}
