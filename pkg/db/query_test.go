package db

import (
	"strings"
	"testing"
	"time"
)

func TestDebugSubstitutesLiterals(t *testing.T) {
	q := NewQuery(nil, "SELECT * FROM user WHERE name = :name AND age > :age").
		Bind("name", "O'Brien").
		Bind("age", 42)

	got, err := q.Debug(false)
	if err != nil {
		t.Fatalf("Debug failed: %v", err)
	}
	if !strings.Contains(got, "'O''Brien'") {
		t.Errorf("debug = %q, want escaped 'O''Brien'", got)
	}
	if !strings.Contains(got, "age > 42") {
		t.Errorf("debug = %q, want inlined 42", got)
	}
	if strings.Contains(got, ":name") || strings.Contains(got, ":age") {
		t.Errorf("debug = %q, placeholders must not remain", got)
	}
}

func TestDebugValueKinds(t *testing.T) {
	q := NewQuery(nil, "UPDATE t SET a = :a, b = :b, c = :c, d = :d, e = :e").
		Bind("a", nil).
		Bind("b", true).
		Bind("c", false).
		Bind("d", 1.5).
		Bind("e", time.Date(2023, 1, 15, 10, 0, 0, 0, time.UTC))

	got, err := q.Debug(false)
	if err != nil {
		t.Fatalf("Debug failed: %v", err)
	}
	for _, want := range []string{"a = NULL", "b = TRUE", "c = FALSE", "d = 1.5", "e = '2023-01-15T10:00:00Z'"} {
		if !strings.Contains(got, want) {
			t.Errorf("debug = %q, want %q", got, want)
		}
	}
}

func TestDebugLeavesQuotedTextAlone(t *testing.T) {
	q := NewQuery(nil, "SELECT * FROM t WHERE note = ':id' AND memo = 'it''s :id' AND id = :id").
		Bind("id", 7)

	got, err := q.Debug(false)
	if err != nil {
		t.Fatalf("Debug failed: %v", err)
	}
	if !strings.Contains(got, "note = ':id'") {
		t.Errorf("debug = %q, quoted placeholder text was rewritten", got)
	}
	if !strings.Contains(got, "memo = 'it''s :id'") {
		t.Errorf("debug = %q, escaped quote handling broke the literal", got)
	}
	if !strings.Contains(got, "id = 7") {
		t.Errorf("debug = %q, want the real placeholder substituted", got)
	}
}

func TestDebugRejectsUnsupportedKinds(t *testing.T) {
	q := NewQuery(nil, "SELECT :v").Bind("v", []int{1, 2})
	if _, err := q.Debug(false); err == nil {
		t.Fatal("array value should not be stringifiable")
	}
}

func TestDebugOneLine(t *testing.T) {
	q := NewQuery(nil, "SELECT *\n  FROM user\n  WHERE id = :id").Bind("id", 5)
	got, err := q.Debug(true)
	if err != nil {
		t.Fatalf("Debug failed: %v", err)
	}
	if got != "SELECT * FROM user WHERE id = 5" {
		t.Errorf("debug = %q", got)
	}
}

func TestDebugFromStatement(t *testing.T) {
	s := NewSelect("user")
	s.Where().Where("name", "Ann")
	got, err := NewQuery(nil, s).Debug(true)
	if err != nil {
		t.Fatalf("Debug failed: %v", err)
	}
	if !strings.Contains(got, "name = 'Ann'") {
		t.Errorf("debug = %q", got)
	}
}

func TestCheckPlaceholdersMissing(t *testing.T) {
	q := NewQuery(nil, "SELECT * FROM t WHERE a = :a AND b = :b").Bind("a", 1)
	if _, err := q.resolveSQL(); err != nil {
		t.Fatalf("resolveSQL failed: %v", err)
	}
	err := q.checkPlaceholders(q.sqlText)
	if err == nil {
		t.Fatal("missing binding should be detected")
	}
	if !strings.Contains(err.Error(), "b") || !strings.Contains(err.Error(), "no binding") {
		t.Errorf("err = %v, want a clear parameter mismatch message", err)
	}
}

func TestSelectishDetection(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":                  true,
		"  with x as (select 1)":    true,
		"PRAGMA table_info(user)":   true,
		"INSERT INTO t VALUES (1)":  false,
		"UPDATE t SET a = 1":        false,
		"DELETE FROM t":             false,
		"CREATE TABLE t (id INT)":   false,
	}
	for sqlText, want := range cases {
		if got := selectish(sqlText); got != want {
			t.Errorf("selectish(%q) = %v, want %v", sqlText, got, want)
		}
	}
}

func TestQueryRejectsUnknownStatementType(t *testing.T) {
	q := NewQuery(nil, 42)
	if err := q.Exec(); err == nil {
		t.Fatal("int statement should be rejected")
	}
}
