package retrieve

import (
	"context"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
)

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index runs namespace-scoped KNN queries.
type Index interface {
	Query(
		ctx context.Context, ns domain.Namespace,
		vector []float32, topK int, filters filter.Expression,
	) ([]result.Candidate, error)
}

// RecordScanner reads a bounded slice of a namespace for the fallback path.
type RecordScanner interface {
	ScanNamespace(ctx context.Context, ns domain.Namespace, limit int) ([]record.Record, error)
}
