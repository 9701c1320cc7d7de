package db

import "github.com/kailas-cloud/profdex/internal/domain/search/filter"

// NamespaceField is the TAG field every profile index carries; KNN queries are
// always prefiltered on it.
const NamespaceField = "namespace"

// VectorField is the hash field holding the FLOAT32 embedding blob.
const VectorField = "vector"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Namespace    string // required; rendered as the mandatory @namespace prefilter
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
	Metric       DistanceMetric // selects distance -> similarity conversion
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
