package ingest

import (
	"context"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/repository/index"
)

// Embedder vectorizes record text, one text or a sub-batch at a time.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Index stores embedded records.
type Index interface {
	UpsertBatch(ctx context.Context, ns domain.Namespace, items []index.Item) error
}
