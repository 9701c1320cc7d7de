package indexadmin

import (
	"context"

	"github.com/kailas-cloud/profdex/internal/domain"
)

// Index is the administrative surface of the vector index.
type Index interface {
	EnsureIndex(ctx context.Context, spec domain.IndexSpec) (domain.IndexInfo, bool, error)
	Describe(ctx context.Context) (domain.IndexInfo, error)
	DeleteIndex(ctx context.Context) error
	ClearNamespace(ctx context.Context, ns domain.Namespace) (int, error)
}
