package db

import (
	"strings"
	"testing"
)

func mustSQL(t *testing.T, s Statement) string {
	t.Helper()
	text, err := s.SQL()
	if err != nil {
		t.Fatalf("SQL failed: %v", err)
	}
	return text
}

func TestSelectDefaults(t *testing.T) {
	s := NewSelect("user")
	if got := mustSQL(t, s); got != "SELECT * FROM user" {
		t.Errorf("sql = %q", got)
	}
}

func TestSelectFull(t *testing.T) {
	s := NewSelect("user").Fields("id", "name")
	s.Where().Where("active", true)
	s.OrderBy("name", "desc").Limit(10).Offset(20)

	got := mustSQL(t, s)
	if !strings.HasPrefix(got, "SELECT id, name FROM user WHERE active = :") {
		t.Errorf("sql = %q", got)
	}
	if !strings.HasSuffix(got, " ORDER BY name DESC LIMIT 10 OFFSET 20") {
		t.Errorf("sql = %q", got)
	}
	if s.Bindings().Len() != 1 {
		t.Errorf("bindings = %d, want 1", s.Bindings().Len())
	}
}

func TestSelectRenderTwiceForCountAndPage(t *testing.T) {
	// The same logical filter reused for a COUNT and the paged SELECT must
	// not cross-contaminate bound values.
	filter := NewWhere().Where("age", ">", 18)

	count := NewSelect("user").Fields("COUNT(*) AS total").SetWhere(filter)
	page := NewSelect("user").SetWhere(filter).Limit(10)

	countSQL := mustSQL(t, count)
	pageSQL := mustSQL(t, page)
	if !strings.Contains(countSQL, "WHERE age > :") || !strings.Contains(pageSQL, "WHERE age > :") {
		t.Fatalf("count = %q, page = %q", countSQL, pageSQL)
	}
	if count.Bindings().Len() != 1 || page.Bindings().Len() != 1 {
		t.Errorf("bindings: count = %d, page = %d, want 1 each",
			count.Bindings().Len(), page.Bindings().Len())
	}
}

func TestInsertSingleRow(t *testing.T) {
	i := NewInsert("user").Add(map[string]any{"name": "Ann", "age": 30})
	got := mustSQL(t, i)
	if !strings.HasPrefix(got, "INSERT INTO user (age, name) VALUES (:") {
		t.Errorf("sql = %q", got)
	}
	if i.Bindings().Len() != 2 {
		t.Errorf("bindings = %d, want 2", i.Bindings().Len())
	}
}

func TestInsertMultiRow(t *testing.T) {
	i := NewInsert("user").
		Add(map[string]any{"name": "Ann"}).
		Add(map[string]any{"name": "Bob"})
	got := mustSQL(t, i)
	if strings.Count(got, "(:") != 2 {
		t.Errorf("sql = %q, want two value groups", got)
	}
	if i.Bindings().Len() != 2 {
		t.Errorf("bindings = %d, want 2", i.Bindings().Len())
	}
}

func TestInsertEmpty(t *testing.T) {
	if _, err := NewInsert("user").SQL(); err == nil {
		t.Fatal("insert with no rows should fail")
	}
}

func TestUpdateShape(t *testing.T) {
	u := NewUpdate("user").Set("name", "Zoe")
	u.Where().Where("id", 7)

	got := mustSQL(t, u)
	if !strings.HasPrefix(got, "UPDATE user SET name = :") {
		t.Errorf("sql = %q", got)
	}
	if !strings.Contains(got, " WHERE id = :") {
		t.Errorf("sql = %q", got)
	}
	if u.Bindings().Len() != 2 {
		t.Errorf("bindings = %d, want 2", u.Bindings().Len())
	}
}

func TestUpdateExprVerbatim(t *testing.T) {
	u := NewUpdate("user").Set("age", Expr("age + 1"))
	u.Where().Where("id", 7)

	got := mustSQL(t, u)
	if !strings.Contains(got, "SET age = age + 1") {
		t.Errorf("sql = %q", got)
	}
	if u.Bindings().Len() != 1 {
		t.Errorf("bindings = %d, want 1 (only the id)", u.Bindings().Len())
	}
}

func TestUpdateNoColumns(t *testing.T) {
	if _, err := NewUpdate("user").SQL(); err == nil {
		t.Fatal("update with no columns should fail")
	}
}

func TestDeleteShape(t *testing.T) {
	d := NewDelete("user")
	if got := mustSQL(t, d); got != "DELETE FROM user" {
		t.Errorf("sql = %q", got)
	}

	d.Where().Where("id", 7)
	got := mustSQL(t, d)
	if !strings.HasPrefix(got, "DELETE FROM user WHERE id = :") {
		t.Errorf("sql = %q", got)
	}
}
