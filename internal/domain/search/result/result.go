// Package result holds the transient per-query search values: candidates,
// reranked results and the assembled ranked response.
package result

import "github.com/kailas-cloud/profdex/internal/domain/record"

// Source identifies which retrieval path produced candidates.
type Source string

// Retrieval sources.
const (
	SourceVector   Source = "vector"
	SourceFallback Source = "fallback"
	SourceNone     Source = "none"
)

// Candidate is a record returned by retrieval together with its similarity score.
type Candidate struct {
	record     record.Record
	similarity float64
	source     Source
}

// NewCandidate creates a retrieval candidate.
func NewCandidate(r record.Record, similarity float64, source Source) Candidate {
	return Candidate{record: r, similarity: similarity, source: source}
}

// Record returns the candidate record.
func (c Candidate) Record() record.Record { return c.record }

// ID returns the record identifier.
func (c Candidate) ID() string { return c.record.ID() }

// Similarity returns the retrieval similarity score.
func (c Candidate) Similarity() float64 { return c.similarity }

// Source returns the retrieval path.
func (c Candidate) Source() Source { return c.source }

// Reranked is a candidate augmented with a reranker score and justifications.
// Score and similarity are on different scales and are never blended.
type Reranked struct {
	Candidate
	score  float64
	pros   []string
	scored bool
}

// NewReranked creates a successfully scored result.
func NewReranked(c Candidate, score float64, pros []string) Reranked {
	if pros == nil {
		pros = []string{}
	}
	return Reranked{Candidate: c, score: score, pros: pros, scored: true}
}

// NewFallback creates a result for a candidate whose chunk could not be scored.
func NewFallback(c Candidate, score float64) Reranked {
	return Reranked{Candidate: c, score: score, pros: []string{}}
}

// Score returns the reranker score.
func (r Reranked) Score() float64 { return r.score }

// Pros returns the justification strings.
func (r Reranked) Pros() []string { return r.pros }

// Scored reports whether the score came from the reranker rather than the fallback.
func (r Reranked) Scored() bool { return r.scored }

// Response is the ordered, paged output of one search.
type Response struct {
	Results        []Reranked
	Total          int
	Page           int
	PageSize       int
	Source         Source
	RewrittenQuery string
	Degraded       bool
	FailedChunks   int
	// EmbeddingTokens is the upstream token cost of embedding the query; 0 on a cache hit.
	EmbeddingTokens int
}
