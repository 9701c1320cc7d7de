package db

import (
	"strings"
	"testing"
)

func profileIndex() *IndexBuilder {
	return NewIndex("profdex:profiles:idx", "profdex:rec:").
		ExactTag(NamespaceField).
		Tag("location").
		Numeric("years_experience").
		HNSW(VectorField, 1536, DistanceCosine, 16, 200)
}

func TestIndexBuilder_ProfileIndex(t *testing.T) {
	def, err := profileIndex().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if def.Name != "profdex:profiles:idx" || def.Prefix != "profdex:rec:" {
		t.Errorf("unexpected definition: %+v", def)
	}
	if len(def.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(def.Fields))
	}
	ns := def.Fields[0]
	if ns.Name != NamespaceField || ns.Kind != FieldTag || !ns.CaseSensitive {
		t.Errorf("namespace field = %+v", ns)
	}
	if loc := def.Fields[1]; loc.Kind != FieldTag || loc.CaseSensitive {
		t.Errorf("location field = %+v", loc)
	}
	if def.Fields[2].Kind != FieldNumeric {
		t.Errorf("years_experience kind = %s", def.Fields[2].Kind)
	}

	v := def.Vector()
	if v == nil {
		t.Fatal("no vector field")
	}
	if v.Dim != 1536 || v.Metric != DistanceCosine || v.M != 16 || v.EFConstruction != 200 {
		t.Errorf("vector field = %+v", v)
	}
}

func TestIndexBuilder_BuildCopiesFields(t *testing.T) {
	b := profileIndex()
	first, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	first.Fields[0].Name = "mutated"

	second, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if second.Fields[0].Name != NamespaceField {
		t.Error("Build must not share the field slice with earlier results")
	}
}

func TestIndexDefinition_Validate(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
		want string
	}{
		{"empty name", NewIndex("", "p:").HNSW("v", 4, DistanceL2, 0, 0), "invalid index name"},
		{"bad name", NewIndex("idx with space", "p:").HNSW("v", 4, DistanceL2, 0, 0), "invalid index name"},
		{"no prefix", NewIndex("idx", "").HNSW("v", 4, DistanceL2, 0, 0), "prefix"},
		{"no vector", NewIndex("idx", "p:").Tag("a"), "exactly one vector"},
		{"two vectors", NewIndex("idx", "p:").HNSW("v", 4, DistanceL2, 0, 0).HNSW("w", 4, DistanceL2, 0, 0), "exactly one vector"},
		{"zero dim", NewIndex("idx", "p:").HNSW("v", 0, DistanceL2, 0, 0), "positive dimension"},
		{"unknown metric", NewIndex("idx", "p:").HNSW("v", 4, "HAMMING", 0, 0), "unknown metric"},
		{"duplicate", NewIndex("idx", "p:").Tag("a").Numeric("a").HNSW("v", 4, DistanceL2, 0, 0), "duplicate"},
		{"empty field", NewIndex("idx", "p:").Tag("").HNSW("v", 4, DistanceL2, 0, 0), "no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestIndexDefinition_UnknownKind(t *testing.T) {
	def := IndexDefinition{Name: "idx", Prefix: "p:", Fields: []IndexField{{Name: "x", Kind: FieldKind(9)}}}
	if err := def.Validate(); err == nil || !strings.Contains(err.Error(), "FieldKind(9)") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for _, s := range []string{"idx", "profdex:profiles:idx", "a-b_c"} {
		if !IsValidIdentifier(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []string{"", "a b", "a*b", "idx{1}"} {
		if IsValidIdentifier(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}
