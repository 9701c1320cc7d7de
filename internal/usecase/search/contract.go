package search

import (
	"context"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
	"github.com/kailas-cloud/profdex/internal/usecase/rerank"
	"github.com/kailas-cloud/profdex/internal/usecase/retrieve"
)

// Retriever produces candidates for a query.
type Retriever interface {
	Retrieve(
		ctx context.Context, ns domain.Namespace, query string, topK int, filters filter.Expression,
	) (retrieve.Outcome, error)
}

// Rewriter optionally expands a query. It never fails.
type Rewriter interface {
	Rewrite(ctx context.Context, raw string) (string, bool)
}

// Reranker scores candidates against the original query.
type Reranker interface {
	Rerank(ctx context.Context, query string, cands []result.Candidate) rerank.Outcome
}
