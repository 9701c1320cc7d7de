package rerank

import (
	"context"

	"github.com/kailas-cloud/profdex/internal/domain/search/result"
)

// Score is the relevance judgement for one candidate.
type Score struct {
	Score float64
	Pros  []string
}

// Scorer judges one chunk of candidates against a query. It must return
// exactly one Score per candidate, in candidate order.
type Scorer interface {
	ScoreChunk(ctx context.Context, query string, chunk []result.Candidate) ([]Score, error)
}

// Submitter runs tasks on a bounded pool, blocking while it is saturated.
type Submitter interface {
	Submit(task func()) error
}

// Generator produces a JSON object from a system and user prompt.
type Generator interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}
