package filter

import (
	"strings"
	"testing"
)

func TestNewTag(t *testing.T) {
	c, err := NewTag("kind", OpEq, "news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Field() != "kind" || c.Op() != OpEq || c.IsNumeric() {
		t.Errorf("unexpected condition: %v", c)
	}
	if len(c.Values()) != 1 || c.Values()[0] != "news" {
		t.Errorf("Values() = %v", c.Values())
	}
}

func TestNewTag_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		field string
		op    Op
		value string
		want  string
	}{
		{"empty field", "", OpEq, "x", "required"},
		{"reserved field", "__id", OpEq, "x", "reserved"},
		{"range op", "kind", OpGt, "x", "not valid"},
		{"empty value", "kind", OpEq, "", "value is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTag(tt.field, tt.op, tt.value)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestNewNumeric_Invalid(t *testing.T) {
	if _, err := NewNumeric("updated", OpIn, 1); err == nil {
		t.Error("expected error for in on numeric field")
	}
	if _, err := NewNumeric("", OpGt, 1); err == nil {
		t.Error("expected error for empty field")
	}
}

func TestNewIn_Invalid(t *testing.T) {
	if _, err := NewIn("mapped_urls"); err == nil {
		t.Error("expected error for empty set")
	}
	if _, err := NewIn("mapped_urls", "a", ""); err == nil {
		t.Error("expected error for empty member")
	}
}

func TestMatchNumber(t *testing.T) {
	tests := []struct {
		op   Op
		v    float64
		want bool
	}{
		{OpEq, 10, true},
		{OpEq, 11, false},
		{OpNe, 11, true},
		{OpGt, 10, false},
		{OpGt, 11, true},
		{OpGte, 10, true},
		{OpLt, 9, true},
		{OpLt, 10, false},
		{OpLte, 10, true},
	}
	for _, tt := range tests {
		c, err := NewNumeric("updated", tt.op, 10)
		if err != nil {
			t.Fatal(err)
		}
		if got := c.MatchNumber(tt.v); got != tt.want {
			t.Errorf("updated %s 10 on %g = %v, want %v", tt.op, tt.v, got, tt.want)
		}
	}
}

func TestMatchTags(t *testing.T) {
	eq, _ := NewTag("kind", OpEq, "news")
	ne, _ := NewTag("kind", OpNe, "news")
	in, _ := NewIn("mapped_urls", "a", "b")

	if !eq.MatchTags([]string{"news"}) {
		t.Error("eq should match")
	}
	if eq.MatchTags([]string{"blog"}) {
		t.Error("eq should not match")
	}
	if ne.MatchTags([]string{"news"}) {
		t.Error("ne should not match")
	}
	if !ne.MatchTags(nil) {
		t.Error("ne should match a missing value")
	}
	if !in.MatchTags([]string{"x", "b"}) {
		t.Error("in should match any member")
	}
	if in.MatchTags([]string{"c"}) {
		t.Error("in should not match")
	}
}

func TestNew_TooManyConditions(t *testing.T) {
	conds := make([]Condition, MaxConditions+1)
	for i := range conds {
		conds[i], _ = NewNumeric("updated", OpGt, float64(i))
	}
	if _, err := New(conds...); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New(conds[:MaxConditions]...); err != nil {
		t.Fatalf("unexpected error at limit: %v", err)
	}
}

func TestExpression_FieldsAndAnd(t *testing.T) {
	a, _ := NewNumeric("updated", OpGte, 5)
	b, _ := NewTag("kind", OpEq, "news")
	c, _ := NewNumeric("updated", OpLt, 50)
	e, err := New(a, b, c)
	if err != nil {
		t.Fatal(err)
	}
	fields := e.Fields()
	if len(fields) != 2 || fields[0] != "updated" || fields[1] != "kind" {
		t.Errorf("Fields() = %v", fields)
	}

	ids := e.And(NewIDs("x", "y"))
	if len(ids.Conditions()) != 4 {
		t.Errorf("And() conditions = %d, want 4", len(ids.Conditions()))
	}
	if len(e.Conditions()) != 3 {
		t.Error("And() must not modify the receiver")
	}
	last := ids.Conditions()[3]
	if last.Field() != IDField || last.Op() != OpIn {
		t.Errorf("id condition = %v", last)
	}
}

func TestExpression_String(t *testing.T) {
	a, _ := NewNumeric("updated", OpGte, 5)
	b, _ := NewTag("kind", OpEq, "news")
	e, _ := New(a, b)
	if got := e.String(); got != `updated gte 5 AND kind eq "news"` {
		t.Errorf("String() = %q", got)
	}
}
