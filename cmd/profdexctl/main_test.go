package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/profdex/internal/domain"
	dombatch "github.com/kailas-cloud/profdex/internal/domain/batch"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &out
	err := a.Run(append([]string{"profdexctl"}, args...))
	return out.String(), err
}

func TestCommands_RequiredFlags(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"search", "--namespace", "acme"}, "query"},
		{[]string{"search", "--query", "go"}, "namespace"},
		{[]string{"ingest", "--namespace", "acme"}, "file"},
		{[]string{"namespace", "clear"}, "namespace"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestIndexDelete_RequiresConfirmation(t *testing.T) {
	_, err := runApp(t, "index", "delete")
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("expected confirmation error, got %v", err)
	}
}

func TestNamespaceClear_InvalidNamespace(t *testing.T) {
	_, err := runApp(t, "namespace", "clear", "--namespace", "a*b")
	if !errors.Is(err, domain.ErrNamespaceRequired) {
		t.Fatalf("expected ErrNamespaceRequired, got %v", err)
	}
}

func TestIngest_MissingFile(t *testing.T) {
	_, err := runApp(t, "ingest", "--namespace", "acme", "--file", "/nonexistent/records.jsonl")
	if err == nil || !strings.Contains(err.Error(), "open") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestReadRecords(t *testing.T) {
	input := `{"record_id":"r1","name":"Ada","skills":"go, rust","attributes":{"years":7,"seniority":"senior"}}

{"record_id":"r2","namespace":"globex","name":"Grace","headline":"Compiler engineer"}
`
	recs, err := readRecords(strings.NewReader(input), domain.MustNamespace("acme"))
	if err != nil {
		t.Fatalf("readRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Namespace().String() != "acme" || recs[0].Fields().Skills != "go, rust" {
		t.Errorf("unexpected first record: %s %+v", recs[0].Namespace(), recs[0].Fields())
	}
	if recs[0].Numerics()["years"] != 7 || recs[0].Tags()["seniority"] != "senior" {
		t.Errorf("attributes lost: %v %v", recs[0].Numerics(), recs[0].Tags())
	}
	if recs[1].Namespace().String() != "globex" {
		t.Errorf("explicit namespace not kept: %s", recs[1].Namespace())
	}
}

func TestReadRecords_Errors(t *testing.T) {
	tests := map[string]string{
		"malformed json":    `{"record_id":`,
		"missing id":        `{"name":"Ada"}`,
		"invalid namespace": `{"record_id":"r1","namespace":"a:b"}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readRecords(strings.NewReader("\n"+input), domain.MustNamespace("acme"))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "line 2") {
				t.Errorf("error %q lacks line number", err)
			}
		})
	}
}

func TestParseFilters(t *testing.T) {
	expr, err := parseFilters([]string{"location=Berlin", "years>=5", "years<10", "remote=true"})
	if err != nil {
		t.Fatalf("parseFilters: %v", err)
	}
	if len(expr.Must()) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(expr.Must()))
	}
	if !expr.Matches(map[string]string{"location": "berlin", "remote": "true"}, map[string]float64{"years": 7}) {
		t.Error("expected match")
	}
	if expr.Matches(map[string]string{"location": "berlin", "remote": "true"}, map[string]float64{"years": 10}) {
		t.Error("upper bound is exclusive")
	}
}

func TestParseFilters_Invalid(t *testing.T) {
	for _, spec := range []string{"noop", "=value", "years>=abc", "key="} {
		if _, err := parseFilters([]string{spec}); err == nil {
			t.Errorf("expected error for %q", spec)
		}
	}
}

func TestSplitFilter(t *testing.T) {
	tests := []struct {
		in           string
		key, op, val string
	}{
		{"years>=5", "years", ">=", "5"},
		{"years <= 5", "years", "<=", "5"},
		{"years>5", "years", ">", "5"},
		{"title=a>b", "title", "=", "a>b"},
	}
	for _, tt := range tests {
		key, op, val, ok := splitFilter(tt.in)
		if !ok || key != tt.key || op != tt.op || val != tt.val {
			t.Errorf("splitFilter(%q) = %q %q %q %v", tt.in, key, op, val, ok)
		}
	}
}

func TestAddSummary(t *testing.T) {
	a := dombatch.Summary{BatchID: "b1", Total: 2, Indexed: 1, Invalid: 1}
	b := dombatch.Summary{BatchID: "b2", Total: 3, Indexed: 1, EmbeddingFailed: 1, UpsertFailed: 1}

	got := addSummary(addSummary(dombatch.Summary{}, a), b)
	if got.BatchID != "b1" || got.Total != 5 || got.Indexed != 2 ||
		got.Invalid != 1 || got.EmbeddingFailed != 1 || got.UpsertFailed != 1 {
		t.Errorf("unexpected sum: %+v", got)
	}
}
