package health

import (
	"context"

	"github.com/kailas-cloud/profdex/internal/domain"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexDescriber reports the vector index state.
type IndexDescriber interface {
	Describe(ctx context.Context) (domain.IndexInfo, error)
}
