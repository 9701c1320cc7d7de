package db

import (
	"errors"
	"fmt"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
	// DistanceIP is inner product distance.
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
)

// FieldKind enumerates the FT schema field kinds of a profile index.
type FieldKind int

const (
	// FieldTag is an exact-match TAG field.
	FieldTag FieldKind = iota
	// FieldNumeric is a range-filterable NUMERIC field.
	FieldNumeric
	// FieldVector is an HNSW FLOAT32 VECTOR field.
	FieldVector
)

func (k FieldKind) String() string {
	switch k {
	case FieldTag:
		return "TAG"
	case FieldNumeric:
		return "NUMERIC"
	case FieldVector:
		return "VECTOR"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// IndexField is one SCHEMA entry of FT.CREATE.
type IndexField struct {
	Name string
	Kind FieldKind

	// TAG
	CaseSensitive bool

	// VECTOR
	Dim            int
	Metric         DistanceMetric
	M              int // max edges per node, 0 keeps the server default
	EFConstruction int // build-time candidate list, 0 keeps the server default
}

// IndexDefinition is an FT index over HASH keys sharing one prefix.
type IndexDefinition struct {
	Name   string
	Prefix string
	Fields []IndexField
}

// Validate checks that the definition is well-formed: a valid name, a key prefix,
// unique field names and exactly one vector field.
func (d *IndexDefinition) Validate() error {
	if !IsValidIdentifier(d.Name) {
		return fmt.Errorf("invalid index name %q", d.Name)
	}
	if d.Prefix == "" {
		return errors.New("index key prefix is required")
	}

	seen := make(map[string]bool, len(d.Fields))
	vectors := 0
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case FieldTag, FieldNumeric:
		case FieldVector:
			vectors++
			if f.Dim <= 0 {
				return fmt.Errorf("vector field %q requires a positive dimension", f.Name)
			}
			switch f.Metric {
			case DistanceCosine, DistanceIP, DistanceL2:
			default:
				return fmt.Errorf("vector field %q has unknown metric %q", f.Name, f.Metric)
			}
		default:
			return fmt.Errorf("field %q has unknown kind %s", f.Name, f.Kind)
		}
	}
	if vectors != 1 {
		return fmt.Errorf("index needs exactly one vector field, got %d", vectors)
	}
	return nil
}

// Vector returns the vector field, or nil when there is none.
func (d *IndexDefinition) Vector() *IndexField {
	for i := range d.Fields {
		if d.Fields[i].Kind == FieldVector {
			return &d.Fields[i]
		}
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
