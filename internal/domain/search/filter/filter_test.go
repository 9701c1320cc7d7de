package filter

import (
	"strings"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestNewRangeFilter(t *testing.T) {
	tests := []struct {
		name             string
		gt, gte, lt, lte *float64
		wantErr          string
	}{
		{name: "lower inclusive", gte: f64(3)},
		{name: "bounded", gt: f64(1), lte: f64(10)},
		{name: "no bounds", wantErr: "at least one"},
		{name: "gt and gte", gt: f64(1), gte: f64(2), wantErr: "gt and gte"},
		{name: "lt and lte", lt: f64(1), lte: f64(2), wantErr: "lt and lte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRangeFilter(tt.gt, tt.gte, tt.lt, tt.lte)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.GT() != tt.gt || r.GTE() != tt.gte || r.LT() != tt.lt || r.LTE() != tt.lte {
				t.Errorf("bounds not preserved: %+v", r)
			}
		})
	}
}

func TestConditions(t *testing.T) {
	m, err := NewMatch("location", "berlin")
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsMatch() || m.IsRange() || m.Key() != "location" || m.Match() != "berlin" {
		t.Errorf("match condition = %+v", m)
	}

	r, _ := NewRangeFilter(nil, f64(5), nil, nil)
	rc, err := NewRange("years_experience", r)
	if err != nil {
		t.Fatal(err)
	}
	if rc.IsMatch() || !rc.IsRange() || *rc.Range().GTE() != 5 {
		t.Errorf("range condition = %+v", rc)
	}

	if _, err := NewMatch("", "x"); err == nil {
		t.Error("expected error for empty match key")
	}
	if _, err := NewMatch("location", ""); err == nil {
		t.Error("expected error for empty match value")
	}
	if _, err := NewRange("", r); err == nil {
		t.Error("expected error for empty range key")
	}
}

func conditions(n int) []Condition {
	out := make([]Condition, n)
	for i := range out {
		out[i], _ = NewMatch("skill", "go")
	}
	return out
}

func TestNewExpression_Limits(t *testing.T) {
	if _, err := NewExpression(conditions(MaxConditionsPerGroup), nil, nil); err != nil {
		t.Errorf("at limit: %v", err)
	}

	over := conditions(MaxConditionsPerGroup + 1)
	for name, args := range map[string][3][]Condition{
		"must":     {over, nil, nil},
		"should":   {nil, over, nil},
		"must_not": {nil, nil, over},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewExpression(args[0], args[1], args[2])
			if err == nil || !strings.Contains(err.Error(), name) {
				t.Fatalf("error = %v, want mention of %q", err, name)
			}
		})
	}
}

func TestExpression_Groups(t *testing.T) {
	expr, err := NewExpression(conditions(2), conditions(1), conditions(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(expr.Must()) != 2 || len(expr.Should()) != 1 || len(expr.MustNot()) != 3 {
		t.Errorf("groups = %d/%d/%d", len(expr.Must()), len(expr.Should()), len(expr.MustNot()))
	}
	if expr.IsEmpty() {
		t.Error("expression with conditions reported empty")
	}

	empty, err := NewExpression(nil, nil, nil)
	if err != nil || !empty.IsEmpty() {
		t.Errorf("empty expression: %v, IsEmpty=%v", err, empty.IsEmpty())
	}
}
