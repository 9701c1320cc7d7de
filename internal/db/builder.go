package db

// IndexBuilder assembles an IndexDefinition field by field.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a definition for an index over HASH keys starting with prefix.
func NewIndex(name, prefix string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name, Prefix: prefix}}
}

// Tag adds a case-insensitive TAG field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Kind: FieldTag})
	return b
}

// ExactTag adds a CASESENSITIVE TAG field, used for partition keys.
func (b *IndexBuilder) ExactTag(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Kind: FieldTag, CaseSensitive: true})
	return b
}

// Numeric adds a NUMERIC field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Kind: FieldNumeric})
	return b
}

// HNSW adds the FLOAT32 vector field.
func (b *IndexBuilder) HNSW(name string, dim int, metric DistanceMetric, m, efConstruction int) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:           name,
		Kind:           FieldVector,
		Dim:            dim,
		Metric:         metric,
		M:              m,
		EFConstruction: efConstruction,
	})
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	def := b.def
	def.Fields = append([]IndexField(nil), b.def.Fields...)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
