// Package record is the profile record store used by the substring fallback path.
package record

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	domrec "github.com/kailas-cloud/profdex/internal/domain/record"
)

// fetchBatch bounds the number of HGETALLs pipelined in one round-trip.
const fetchBatch = 256

// store is the consumer interface for the record store (ISP).
type store interface {
	Scan(ctx context.Context, pattern string, limit int) ([]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repo reads stored profile records directly, bypassing the vector index.
type Repo struct {
	store     store
	keyPrefix string
	logger    *zap.Logger
}

// New creates a record repository.
func New(s store, keyPrefix string, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, keyPrefix: keyPrefix, logger: logger}
}

// ScanNamespace returns up to limit records of one namespace. A non-positive
// limit is rejected: the fallback path must never scan a namespace unbounded.
func (r *Repo) ScanNamespace(ctx context.Context, ns domain.Namespace, limit int) ([]domrec.Record, error) {
	if ns.IsZero() {
		return nil, domain.ErrNamespaceRequired
	}
	if limit <= 0 {
		return nil, fmt.Errorf("scan limit must be positive: %w", domain.ErrInvalidRequest)
	}

	keys, err := r.store.Scan(ctx, NamespacePattern(r.keyPrefix, ns), limit)
	if err != nil {
		return nil, fmt.Errorf("scan namespace %s: %w", ns, err)
	}

	records := make([]domrec.Record, 0, len(keys))
	for start := 0; start < len(keys); start += fetchBatch {
		end := min(start+fetchBatch, len(keys))
		hashes, err := r.store.HGetAllMulti(ctx, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("fetch records %s: %w", ns, err)
		}
		for i, m := range hashes {
			if len(m) == 0 {
				continue // deleted between SCAN and HGETALL
			}
			rec, err := FromHash(m)
			if err != nil {
				r.logger.Warn("Skipping malformed record", zap.String("key", keys[start+i]), zap.Error(err))
				continue
			}
			if rec.Namespace() != ns {
				continue
			}
			records = append(records, rec)
		}
	}
	return records, nil
}
